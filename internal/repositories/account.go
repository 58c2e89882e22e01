package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tixd/internal/models"
	"github.com/desertthunder/tixd/internal/shared"
)

const accountColumns = `id, sequence, account_id, username, password, platform, is_active, created_at, updated_at`

// AccountRepository implements [models.Repository] for [models.UserAccount] persistence.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new [AccountRepository] with the given database connection
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account into the database with generated ID and sequence
func (r *AccountRepository) Create(ctx context.Context, account *models.UserAccount) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(ctx, r.db, "user_accounts")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	account.SetID(id)
	account.SetSequence(sequence)

	query := `INSERT INTO user_accounts (` + accountColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		id,
		sequence,
		account.AccountID(),
		account.Username(),
		account.Password(),
		account.Platform(),
		account.Active(),
		account.CreatedAt(),
		account.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// Get retrieves an account by row ID
func (r *AccountRepository) Get(ctx context.Context, id string) (*models.UserAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM user_accounts WHERE id = ?`
	return r.scan(r.db.QueryRowContext(ctx, query, id))
}

// GetByAccountID retrieves an account by its external identifier
func (r *AccountRepository) GetByAccountID(ctx context.Context, accountID string) (*models.UserAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM user_accounts WHERE account_id = ?`
	return r.scan(r.db.QueryRowContext(ctx, query, accountID))
}

// FindOrCreate returns the stored account for a job account, creating it on first use.
func (r *AccountRepository) FindOrCreate(ctx context.Context, account models.Account) (*models.UserAccount, error) {
	existing, err := r.GetByAccountID(ctx, account.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, shared.ErrRecordNotFound) {
		return nil, err
	}

	created := models.NewUserAccount(0, account)
	if err := r.Create(ctx, created); err != nil {
		// another task may have inserted the same account in between
		if existing, getErr := r.GetByAccountID(ctx, account.ID); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return created, nil
}

// Update modifies the credentials and active flag of an existing account
func (r *AccountRepository) Update(ctx context.Context, account *models.UserAccount) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	account.SetUpdatedAt(now)

	query := `UPDATE user_accounts SET username = ?, password = ?, is_active = ?, updated_at = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, account.Username(), account.Password(), account.Active(), now, account.ID())
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: account %s", shared.ErrRecordNotFound, account.ID())
	}
	return nil
}

// List retrieves all accounts matching the given criteria ("platform", "active").
func (r *AccountRepository) List(ctx context.Context, criteria map[string]any) ([]*models.UserAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM user_accounts WHERE 1 = 1`
	args := []any{}

	if platform, ok := criteria["platform"].(string); ok && platform != "" {
		query += " AND platform = ?"
		args = append(args, platform)
	}
	if active, ok := criteria["active"].(bool); ok {
		query += " AND is_active = ?"
		args = append(args, active)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.UserAccount
	for rows.Next() {
		account, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return accounts, nil
}

func (r *AccountRepository) scan(row scanner) (*models.UserAccount, error) {
	var (
		id        string
		sequence  int
		accountID string
		username  string
		password  string
		platform  string
		active    bool
		createdAt time.Time
		updatedAt time.Time
	)

	err := row.Scan(&id, &sequence, &accountID, &username, &password, &platform, &active, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account", shared.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	account := models.NewUserAccount(sequence, models.Account{ID: accountID, Username: username, Password: password, Platform: platform})
	account.SetID(id)
	account.SetActive(active)
	account.SetCreatedAt(createdAt)
	account.SetUpdatedAt(updatedAt)
	return account, nil
}
