package settlement

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	models "github.com/adchain-network/settlements/pkg/db/models/ledger"
	"github.com/adchain-network/settlements/pkg/distributor"
)

// ProcessSettlement ingests one aggregate incoming payment and distributes its
// event shares to publisher accounts. The payment is registered by txid, so a
// redelivered settlement resolves to the same row; a stamped payment is
// short-circuited, and an unstamped one is distributed from offset zero, where
// the processed-offset compare-and-set rejects any batch that already ran.
func (a *App) ProcessSettlement(ctx context.Context, txid, sender string, amount int64, shares []models.EventShare) (*distributor.Result, error) {
	payment, err := a.Payments.RegisterAdsPayment(ctx, txid, sender, amount)
	if err != nil {
		return nil, fmt.Errorf("register payment %s: %w", txid, err)
	}

	if payment.ProcessedAt != nil {
		a.Logger.Info("settlement already processed",
			zap.String("txid", txid),
		)
		return &distributor.Result{AlreadyProcessed: true}, nil
	}

	// Intake always attributes the full share list, so the batch starts at
	// offset zero. A replay after a crash between distribution and the stamp
	// below fails the offset compare-and-set inside the distributor.
	res, err := a.Distributor.ProcessPaymentDetails(ctx, payment, shares, 0)
	if err != nil {
		return nil, err
	}

	// Stamp even when the offset guard fired: the distribution committed on a
	// prior attempt and only the stamp is missing.
	if err := a.Payments.MarkAdsPaymentProcessed(ctx, payment.ID); err != nil {
		return nil, fmt.Errorf("mark payment %s processed: %w", txid, err)
	}

	a.Logger.Info("settlement processed",
		zap.String("txid", txid),
		zap.String("sender", sender),
		zap.Int64("amount", amount),
		zap.Bool("already_processed", res.AlreadyProcessed),
	)
	return res, nil
}
