package ledgerdb

import (
	"context"
	"fmt"

	models "github.com/adchain-network/settlements/pkg/db/models/ledger"
	"github.com/adchain-network/settlements/pkg/db/postgres"
	"github.com/adchain-network/settlements/pkg/distributor"
	"github.com/jackc/pgx/v5"
)

// initPayments creates both payment tables. network_payments carries a
// foreign key to ads_payments, so the order is fixed.
func (db *DB) initPayments(ctx context.Context) error {
	if err := db.initAdsPayments(ctx); err != nil {
		return err
	}
	return db.initNetworkPayments(ctx)
}

// initAdsPayments creates the aggregate receipt table.
func (db *DB) initAdsPayments(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS ads_payments (
			id BIGSERIAL PRIMARY KEY,
			txid TEXT NOT NULL UNIQUE,
			amount BIGINT NOT NULL,
			sender_address TEXT NOT NULL,
			processed_offset BIGINT NOT NULL DEFAULT 0,
			processed_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		);
	`
	return db.Exec(ctx, query)
}

// initNetworkPayments creates the per-event share table. The unique key on
// (ads_payment_id, event_id) is the per-event idempotency guard.
func (db *DB) initNetworkPayments(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS network_payments (
			id BIGSERIAL PRIMARY KEY,
			ads_payment_id BIGINT NOT NULL REFERENCES ads_payments(id),
			event_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			amount BIGINT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			UNIQUE (ads_payment_id, event_id)
		);

		CREATE INDEX IF NOT EXISTS idx_network_payments_account
			ON network_payments (account_id);
	`
	return db.Exec(ctx, query)
}

// RegisterAdsPayment records an incoming receipt, idempotent by txid.
func (db *DB) RegisterAdsPayment(ctx context.Context, txid, sender string, amount int64) (*models.AdsPayment, error) {
	query := `
		INSERT INTO ads_payments (txid, amount, sender_address)
		VALUES ($1, $2, $3)
		ON CONFLICT (txid) DO NOTHING
	`
	if err := db.Exec(ctx, query, txid, amount, sender); err != nil {
		return nil, fmt.Errorf("register ads payment %s: %w", txid, err)
	}
	return db.AdsPaymentByTxID(ctx, txid)
}

// AdsPaymentByTxID fetches a payment by transaction ID.
func (db *DB) AdsPaymentByTxID(ctx context.Context, txid string) (*models.AdsPayment, error) {
	query := `
		SELECT id, txid, amount, sender_address, processed_offset, processed_at, created_at
		FROM ads_payments
		WHERE txid = $1
	`
	var p models.AdsPayment
	err := db.Pool.QueryRow(ctx, query, txid).Scan(
		&p.ID, &p.TxID, &p.Amount, &p.SenderAddress, &p.ProcessedOffset, &p.ProcessedAt, &p.CreatedAt,
	)
	if postgres.IsNoRows(err) {
		return nil, fmt.Errorf("ads payment %s not found", txid)
	}
	if err != nil {
		return nil, fmt.Errorf("get ads payment %s: %w", txid, err)
	}
	return &p, nil
}

// MarkAdsPaymentProcessed stamps the payment's processed time.
func (db *DB) MarkAdsPaymentProcessed(ctx context.Context, paymentID int64) error {
	query := `UPDATE ads_payments SET processed_at = now() WHERE id = $1`
	if err := db.Exec(ctx, query, paymentID); err != nil {
		return fmt.Errorf("mark ads payment %d processed: %w", paymentID, err)
	}
	return nil
}

// NetworkPaymentsByAdsPayment lists distributed shares for a payment.
func (db *DB) NetworkPaymentsByAdsPayment(ctx context.Context, paymentID int64) ([]*models.NetworkPayment, error) {
	query := `
		SELECT id, ads_payment_id, event_id, account_id, amount, created_at
		FROM network_payments
		WHERE ads_payment_id = $1
		ORDER BY id
	`
	rows, err := db.Pool.Query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list network payments for %d: %w", paymentID, err)
	}
	defer rows.Close()

	var out []*models.NetworkPayment
	for rows.Next() {
		var np models.NetworkPayment
		if scanErr := rows.Scan(&np.ID, &np.AdsPaymentID, &np.EventID, &np.AccountID, &np.Amount, &np.CreatedAt); scanErr != nil {
			return nil, scanErr
		}
		out = append(out, &np)
	}
	return out, rows.Err()
}

// pgBatchTx adapts a pgx transaction to the distributor.BatchTx contract.
type pgBatchTx struct {
	db *DB
	tx pgx.Tx
}

func (t *pgBatchTx) AdvanceProcessedOffset(ctx context.Context, paymentID int64, from, to int64) (bool, error) {
	query := `
		UPDATE ads_payments
		SET processed_offset = $3
		WHERE id = $1 AND processed_offset = $2
	`
	tag, err := t.tx.Exec(ctx, query, paymentID, from, to)
	if err != nil {
		return false, fmt.Errorf("advance processed offset for payment %d: %w", paymentID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgBatchTx) AccountExists(ctx context.Context, accountID string) (bool, error) {
	return t.db.accountExists(ctx, t.tx, accountID)
}

func (t *pgBatchTx) InsertNetworkPayment(ctx context.Context, np *models.NetworkPayment) (bool, error) {
	query := `
		INSERT INTO network_payments (ads_payment_id, event_id, account_id, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ads_payment_id, event_id) DO NOTHING
	`
	tag, err := t.tx.Exec(ctx, query, np.AdsPaymentID, np.EventID, np.AccountID, np.Amount)
	if err != nil {
		return false, fmt.Errorf("insert network payment for event %s: %w", np.EventID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgBatchTx) AppendIncome(ctx context.Context, accountID string, amount int64) (int64, error) {
	return t.db.appendEntry(ctx, t.tx, accountID, models.TypeAdIncome, amount, models.StatusAccepted)
}

// ProcessBatch runs fn inside one transaction; the processed-offset
// compare-and-set serializes concurrent batches for the same payment.
func (db *DB) ProcessBatch(ctx context.Context, fn func(tx distributor.BatchTx) error) error {
	return db.BeginFunc(ctx, func(tx pgx.Tx) error {
		return fn(&pgBatchTx{db: db, tx: tx})
	})
}
