package ledgerdb

import (
	"context"
	"fmt"

	models "github.com/adchain-network/settlements/pkg/db/models/ledger"
	"github.com/adchain-network/settlements/pkg/db/postgres"
	"github.com/adchain-network/settlements/pkg/ledger"
	"github.com/jackc/pgx/v5"
)

// initLedgerEntries creates the ledger entry table. The partial index on
// (account_id, status, type) serves every balance sum; tombstoned rows are
// excluded from it.
func (db *DB) initLedgerEntries(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS user_ledger_entries (
			id BIGSERIAL PRIMARY KEY,
			account_id TEXT NOT NULL,
			type SMALLINT NOT NULL,
			amount BIGINT NOT NULL,
			status SMALLINT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			deleted_at TIMESTAMP WITH TIME ZONE
		);

		CREATE INDEX IF NOT EXISTS idx_ledger_account_status_type
			ON user_ledger_entries (account_id, status, type)
			WHERE deleted_at IS NULL;
	`
	return db.Exec(ctx, query)
}

func (db *DB) appendEntry(ctx context.Context, exec postgres.Executor, accountID string, typ models.EntryType, amount int64, status models.EntryStatus) (int64, error) {
	query := `
		INSERT INTO user_ledger_entries (account_id, type, amount, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	var id int64
	err := exec.QueryRow(ctx, query, accountID, int16(typ), amount, int16(status)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append ledger entry for %s: %w", accountID, err)
	}
	return id, nil
}

// Append inserts a new entry outside any transaction.
func (db *DB) Append(ctx context.Context, accountID string, typ models.EntryType, amount int64, status models.EntryStatus) (int64, error) {
	return db.appendEntry(ctx, db.Pool, accountID, typ, amount, status)
}

func (db *DB) sumEntries(ctx context.Context, exec postgres.Executor, accountID string, statuses []models.EntryStatus, types []models.EntryType) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM user_ledger_entries
		WHERE deleted_at IS NULL
		  AND status = ANY($1::smallint[])
		  AND type = ANY($2::smallint[])
		  AND ($3 = '' OR account_id = $3)
	`
	var total int64
	err := exec.QueryRow(ctx, query, models.Statuses16(statuses), models.Types16(types), accountID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum ledger entries: %w", err)
	}
	return total, nil
}

// Balance readings over Accepted entries.

func (db *DB) Balance(ctx context.Context, accountID string) (int64, error) {
	return db.sumEntries(ctx, db.Pool, accountID, models.AcceptedStatuses, models.BalanceTypes)
}

func (db *DB) WalletBalance(ctx context.Context, accountID string) (int64, error) {
	return db.sumEntries(ctx, db.Pool, accountID, models.AcceptedStatuses, models.WalletTypes)
}

func (db *DB) BonusBalance(ctx context.Context, accountID string) (int64, error) {
	return db.sumEntries(ctx, db.Pool, accountID, models.AcceptedStatuses, models.BonusTypes)
}

// Available readings additionally include in-flight reservations.

func (db *DB) AvailableBalance(ctx context.Context, accountID string) (int64, error) {
	return db.sumEntries(ctx, db.Pool, accountID, models.AvailableStatuses, models.BalanceTypes)
}

func (db *DB) AvailableWalletBalance(ctx context.Context, accountID string) (int64, error) {
	return db.sumEntries(ctx, db.Pool, accountID, models.AvailableStatuses, models.WalletTypes)
}

func (db *DB) AvailableBonusBalance(ctx context.Context, accountID string) (int64, error) {
	return db.sumEntries(ctx, db.Pool, accountID, models.AvailableStatuses, models.BonusTypes)
}

// Global aggregates, for operational reconciliation.

func (db *DB) BalanceForAllAccounts(ctx context.Context) (int64, error) {
	return db.sumEntries(ctx, db.Pool, "", models.AcceptedStatuses, models.BalanceTypes)
}

func (db *DB) WalletBalanceForAllAccounts(ctx context.Context) (int64, error) {
	return db.sumEntries(ctx, db.Pool, "", models.AcceptedStatuses, models.WalletTypes)
}

func (db *DB) BonusBalanceForAllAccounts(ctx context.Context) (int64, error) {
	return db.sumEntries(ctx, db.Pool, "", models.AcceptedStatuses, models.BonusTypes)
}

// pgLedgerTx adapts a pgx transaction to the ledger.Tx contract.
type pgLedgerTx struct {
	db *DB
	tx pgx.Tx
}

func (t *pgLedgerTx) Balance(ctx context.Context, accountID string) (int64, error) {
	return t.db.sumEntries(ctx, t.tx, accountID, models.AcceptedStatuses, models.BalanceTypes)
}

func (t *pgLedgerTx) WalletBalance(ctx context.Context, accountID string) (int64, error) {
	return t.db.sumEntries(ctx, t.tx, accountID, models.AcceptedStatuses, models.WalletTypes)
}

func (t *pgLedgerTx) BonusBalance(ctx context.Context, accountID string) (int64, error) {
	return t.db.sumEntries(ctx, t.tx, accountID, models.AcceptedStatuses, models.BonusTypes)
}

func (t *pgLedgerTx) AvailableBalance(ctx context.Context, accountID string) (int64, error) {
	return t.db.sumEntries(ctx, t.tx, accountID, models.AvailableStatuses, models.BalanceTypes)
}

func (t *pgLedgerTx) AvailableWalletBalance(ctx context.Context, accountID string) (int64, error) {
	return t.db.sumEntries(ctx, t.tx, accountID, models.AvailableStatuses, models.WalletTypes)
}

func (t *pgLedgerTx) AvailableBonusBalance(ctx context.Context, accountID string) (int64, error) {
	return t.db.sumEntries(ctx, t.tx, accountID, models.AvailableStatuses, models.BonusTypes)
}

func (t *pgLedgerTx) Append(ctx context.Context, accountID string, typ models.EntryType, amount int64, status models.EntryStatus) (int64, error) {
	return t.db.appendEntry(ctx, t.tx, accountID, typ, amount, status)
}

// InTx runs fn inside a transaction holding a per-account advisory lock, so
// check-then-append sequences on one account cannot interleave.
func (db *DB) InTx(ctx context.Context, accountID string, fn func(tx ledger.Tx) error) error {
	return db.BeginFunc(ctx, func(tx pgx.Tx) error {
		if err := postgres.AcquireAccountLock(ctx, tx, accountID); err != nil {
			return err
		}
		return fn(&pgLedgerTx{db: db, tx: tx})
	})
}

// Transition atomically moves an entry between statuses.
func (db *DB) Transition(ctx context.Context, entryID int64, from, to models.EntryStatus) error {
	query := `
		UPDATE user_ledger_entries
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2 AND deleted_at IS NULL
	`
	tag, err := db.Pool.Exec(ctx, query, entryID, int16(from), int16(to))
	if err != nil {
		return fmt.Errorf("transition entry %d: %w", entryID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// No row moved: distinguish a missing entry from a status mismatch.
	var current int16
	err = db.Pool.QueryRow(ctx,
		`SELECT status FROM user_ledger_entries WHERE id = $1 AND deleted_at IS NULL`, entryID,
	).Scan(&current)
	if postgres.IsNoRows(err) {
		return ledger.ErrEntryNotFound
	}
	if err != nil {
		return fmt.Errorf("transition entry %d: %w", entryID, err)
	}
	return fmt.Errorf("entry %d is %d, expected %d: %w", entryID, current, int16(from), ledger.ErrStatusConflict)
}

// SoftDelete tombstones an entry.
func (db *DB) SoftDelete(ctx context.Context, entryID int64) error {
	query := `
		UPDATE user_ledger_entries
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`
	tag, err := db.Pool.Exec(ctx, query, entryID)
	if err != nil {
		return fmt.Errorf("soft delete entry %d: %w", entryID, err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrEntryNotFound
	}
	return nil
}

// PushBlockedToProcessing bulk-transitions Blocked expense entries.
func (db *DB) PushBlockedToProcessing(ctx context.Context) (int64, error) {
	query := `
		UPDATE user_ledger_entries
		SET status = $1, updated_at = now()
		WHERE status = $2 AND type = ANY($3::smallint[]) AND deleted_at IS NULL
	`
	tag, err := db.Pool.Exec(ctx, query,
		int16(models.StatusProcessing), int16(models.StatusBlocked), models.Types16(models.ExpenseTypes))
	if err != nil {
		return 0, fmt.Errorf("push blocked to processing: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RemoveProcessingExpenses bulk soft-deletes Processing expense entries.
func (db *DB) RemoveProcessingExpenses(ctx context.Context) (int64, error) {
	query := `
		UPDATE user_ledger_entries
		SET deleted_at = now(), updated_at = now()
		WHERE status = $1 AND type = ANY($2::smallint[]) AND deleted_at IS NULL
	`
	tag, err := db.Pool.Exec(ctx, query,
		int16(models.StatusProcessing), models.Types16(models.ExpenseTypes))
	if err != nil {
		return 0, fmt.Errorf("remove processing expenses: %w", err)
	}
	return tag.RowsAffected(), nil
}
