package ledgerdb

import (
	"context"
	"fmt"

	"github.com/adchain-network/settlements/pkg/db/postgres"
)

// initAccounts creates the accounts table.
func (db *DB) initAccounts(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			address TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		);
	`
	return db.Exec(ctx, query)
}

// CreateAccount registers an account. Creating an existing account is a no-op.
func (db *DB) CreateAccount(ctx context.Context, accountID, address string) error {
	query := `
		INSERT INTO accounts (id, address) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`
	if err := db.Exec(ctx, query, accountID, address); err != nil {
		return fmt.Errorf("create account %s: %w", accountID, err)
	}
	return nil
}

// AccountExists reports whether the account is known.
func (db *DB) AccountExists(ctx context.Context, accountID string) (bool, error) {
	return db.accountExists(ctx, db.Pool, accountID)
}

func (db *DB) accountExists(ctx context.Context, exec postgres.Executor, accountID string) (bool, error) {
	var exists bool
	err := exec.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check account %s: %w", accountID, err)
	}
	return exists, nil
}
