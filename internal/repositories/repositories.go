package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/tixd/internal/models"
)

var (
	_ models.Repository[*models.UserAccount] = (*AccountRepository)(nil)
	_ models.Repository[*models.TaskRecord]  = (*TaskRepository)(nil)
)

// NextSequence atomically increments and returns the next sequence number for the given table.
//
// Sequence numbers provide human-readable ordering for entities (e.g., account #3, task #42).
// Must not be called while another transaction is open on a single-connection database.
func NextSequence(ctx context.Context, db *sql.DB, table string) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequenceTable := table + "_sequence"

	_, err = tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET value = value + 1 WHERE id = 1", sequenceTable))
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	var sequence int
	err = tx.QueryRowContext(ctx, fmt.Sprintf("SELECT value FROM %s WHERE id = 1", sequenceTable)).Scan(&sequence)
	if err != nil {
		return 0, fmt.Errorf("failed to get sequence value: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit sequence transaction: %w", err)
	}

	return sequence, nil
}

// scanner is implemented by both [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
