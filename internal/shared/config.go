package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server     ServerConfig     `toml:"server" json:"server"`
	Database   DatabaseConfig   `toml:"database" json:"database"`
	Executor   ExecutorConfig   `toml:"executor" json:"executor"`
	Hub        HubConfig        `toml:"hub" json:"hub"`
	Automation AutomationConfig `toml:"automation" json:"automation"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host        string   `toml:"host" json:"host"`
	Port        int      `toml:"port" json:"port"`
	LogLevel    string   `toml:"log_level" json:"log_level"`
	CORSOrigins []string `toml:"cors_origins" json:"cors_origins"`
	RateLimit   float64  `toml:"rate_limit" json:"rate_limit"`
	RateBurst   int      `toml:"rate_burst" json:"rate_burst"`
}

// Addr returns the host:port pair the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver       string `toml:"driver" json:"driver"`
	Path         string `toml:"path" json:"path"`
	URL          string `toml:"url" json:"url"`
	MaxOpenConns int    `toml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns" json:"max_idle_conns"`
}

// ExecutorConfig controls worker admission and in-memory retention.
type ExecutorConfig struct {
	MaxWorkers      int           `toml:"max_workers" json:"max_workers"`
	Retention       time.Duration `toml:"retention" json:"retention"`
	RetentionSweep  time.Duration `toml:"retention_sweep" json:"retention_sweep"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" json:"shutdown_timeout"`
}

// HubConfig controls status broadcast behavior.
type HubConfig struct {
	Buffer int  `toml:"buffer" json:"buffer"`
	Scoped bool `toml:"scoped" json:"scoped"`
}

// AutomationConfig points at the external purchase automation service.
type AutomationConfig struct {
	Mode    string        `toml:"mode" json:"mode"`
	BaseURL string        `toml:"base_url" json:"base_url"`
	Timeout time.Duration `toml:"timeout" json:"timeout"`
}

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults and environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides values from the process environment.
//
// TIXD_DATABASE_URL wins over DATABASE_URL; TIXD_PORT replaces the listen port.
func (c *Config) ApplyEnv() {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		c.Database.URL = url
	}
	if url := os.Getenv("TIXD_DATABASE_URL"); url != "" {
		c.Database.URL = url
	}
	if port := os.Getenv("TIXD_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
}

// Validate checks the values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.Executor.MaxWorkers < 0 {
		return fmt.Errorf("%w: max_workers must not be negative", ErrInvalidConfig)
	}
	if c.Hub.Buffer < 0 {
		return fmt.Errorf("%w: hub buffer must not be negative", ErrInvalidConfig)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("%w: rate_limit must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Redacted returns a copy safe to expose over the API, with database credentials removed.
func (c *Config) Redacted() Config {
	out := *c
	if out.Database.URL != "" {
		out.Database.URL = ObfuscateURL(out.Database.URL)
	}
	return out
}
