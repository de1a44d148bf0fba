package settlement

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	models "github.com/adchain-network/settlements/pkg/db/models/ledger"
	ledgercore "github.com/adchain-network/settlements/pkg/ledger"
)

// RunBlockade executes one admission cycle:
//
//  1. push last cycle's Blocked reservations to Processing,
//  2. reserve the current required budget of every account with running
//     campaigns, bonus funds first,
//  3. drop the Processing leftovers, returning them to available funds.
//
// The exchange rate is fetched up front; without it campaign budgets cannot
// be converted to clicks and the whole run is aborted, leaving the previous
// reservations in place.
//
// Cycles never overlap: a concurrent push step would sweep this cycle's fresh
// Blocked reservations into Processing, where the other cycle's cleanup would
// void them.
func (a *App) RunBlockade(ctx context.Context) error {
	a.blockadeMu.Lock()
	defer a.blockadeMu.Unlock()

	now := time.Now()

	rate, err := a.Exchange.FetchExchangeRate(ctx, now)
	if err != nil {
		return fmt.Errorf("blockade aborted: %w", err)
	}

	if _, err := a.Ledger.PushBlockedToProcessing(ctx); err != nil {
		return fmt.Errorf("push blocked to processing: %w", err)
	}

	budgets, err := a.Budgets.FetchRequiredBudgets(ctx, now)
	if err != nil {
		return fmt.Errorf("fetch required budgets: %w", err)
	}

	a.Logger.Info("attempting to create blockades", zap.Int("accounts", len(budgets)))

	group := a.Pool.NewGroup()
	for accountID, b := range budgets {
		required := models.Budget{
			Total:     rate.ToClicks(b.Total),
			Bonusable: rate.ToClicks(b.Bonusable),
		}
		group.SubmitErr(func() error {
			if _, blockErr := a.Ledger.BlockBudget(ctx, accountID, required); blockErr != nil {
				// A failed account keeps its funds unreserved until the next
				// cycle; it must not sink the rest of the batch.
				if ledgercore.IsInsufficientFunds(blockErr) {
					a.Logger.Warn("insufficient funds for blockade",
						zap.String("account_id", accountID),
						zap.Int64("required", required.Total),
					)
				} else {
					a.Logger.Error("blockade failed",
						zap.String("account_id", accountID),
						zap.Error(blockErr),
					)
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("create blockades: %w", err)
	}

	if _, err := a.Ledger.RemoveProcessingExpenses(ctx); err != nil {
		return fmt.Errorf("remove processing expenses: %w", err)
	}

	return nil
}
