package distributor

import (
	"context"

	models "github.com/adchain-network/settlements/pkg/db/models/ledger"
)

// BatchTx is the transactional view a settlement batch runs in. All writes
// either commit together or not at all.
type BatchTx interface {
	// AdvanceProcessedOffset compare-and-sets the payment's high-water mark
	// from `from` to `to`. Returns false when the stored offset no longer
	// matches `from`, i.e. the batch was already distributed.
	AdvanceProcessedOffset(ctx context.Context, paymentID int64, from, to int64) (bool, error)

	// AccountExists reports whether the publisher account is known.
	AccountExists(ctx context.Context, accountID string) (bool, error)

	// InsertNetworkPayment records one per-event share. Returns false when a
	// row with the same (payment, event) idempotency key already exists.
	InsertNetworkPayment(ctx context.Context, np *models.NetworkPayment) (bool, error)

	// AppendIncome appends one Accepted AdIncome ledger entry.
	AppendIncome(ctx context.Context, accountID string, amount int64) (int64, error)
}

// Store is the persistence boundary of the payment distributor.
type Store interface {
	// RegisterAdsPayment records an incoming aggregate receipt, keyed by txid.
	// Registering an already-known txid returns the existing row.
	RegisterAdsPayment(ctx context.Context, txid, sender string, amount int64) (*models.AdsPayment, error)

	// AdsPaymentByTxID fetches a payment by its transaction ID.
	AdsPaymentByTxID(ctx context.Context, txid string) (*models.AdsPayment, error)

	// MarkAdsPaymentProcessed stamps the payment's processed time.
	MarkAdsPaymentProcessed(ctx context.Context, paymentID int64) error

	// NetworkPaymentsByAdsPayment lists the shares distributed for a payment,
	// for reconciliation and tests.
	NetworkPaymentsByAdsPayment(ctx context.Context, paymentID int64) ([]*models.NetworkPayment, error)

	// ProcessBatch runs fn inside one transaction. Concurrent batches for the
	// same payment serialize on the processed-offset compare-and-set.
	ProcessBatch(ctx context.Context, fn func(tx BatchTx) error) error
}
