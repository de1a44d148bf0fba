package ledger

import (
	"context"

	models "github.com/adchain-network/settlements/pkg/db/models/ledger"
)

// BalanceReader exposes the per-account balance readings.
//
// Balance/WalletBalance/BonusBalance sum Accepted, non-deleted entries only.
// The Available variants additionally include Blocked and Processing entries,
// so they reflect the funds left after in-flight reservations:
// AvailableBalance(a) == Balance(a) + committed(a).
type BalanceReader interface {
	Balance(ctx context.Context, accountID string) (int64, error)
	WalletBalance(ctx context.Context, accountID string) (int64, error)
	BonusBalance(ctx context.Context, accountID string) (int64, error)
	AvailableBalance(ctx context.Context, accountID string) (int64, error)
	AvailableWalletBalance(ctx context.Context, accountID string) (int64, error)
	AvailableBonusBalance(ctx context.Context, accountID string) (int64, error)
}

// Tx is the view of the store inside a per-account serialized transaction.
type Tx interface {
	BalanceReader

	// Append inserts a new entry and returns its ID. Amount is signed.
	Append(ctx context.Context, accountID string, typ models.EntryType, amount int64, status models.EntryStatus) (int64, error)
}

// Store is the persistence boundary for the ledger: an append-only entry
// table with filtered sums, a per-row status CAS, and soft deletion.
type Store interface {
	BalanceReader

	// InTx runs fn inside a transaction serialized per account: two InTx calls
	// for the same account never interleave, so a balance read followed by an
	// append inside fn cannot race another reservation on that account.
	// Different accounts proceed in parallel.
	InTx(ctx context.Context, accountID string, fn func(tx Tx) error) error

	// Transition atomically moves an entry from one status to another.
	// Returns ErrStatusConflict if the current status differs from `from`,
	// ErrEntryNotFound if no live entry has that ID.
	Transition(ctx context.Context, entryID int64, from, to models.EntryStatus) error

	// SoftDelete tombstones an entry. Irreversible; the entry is excluded
	// from every balance sum from then on but retained for audit.
	SoftDelete(ctx context.Context, entryID int64) error

	// PushBlockedToProcessing transitions all Blocked expense entries to
	// Processing. Returns the number of entries moved.
	PushBlockedToProcessing(ctx context.Context) (int64, error)

	// RemoveProcessingExpenses soft-deletes all Processing expense entries,
	// voiding their reservations. Returns the number of entries removed.
	RemoveProcessingExpenses(ctx context.Context) (int64, error)

	// Global aggregates over all accounts, for operational reconciliation.
	BalanceForAllAccounts(ctx context.Context) (int64, error)
	WalletBalanceForAllAccounts(ctx context.Context) (int64, error)
	BonusBalanceForAllAccounts(ctx context.Context) (int64, error)
}
