package budget

import (
	"context"
	"time"

	models "github.com/adchain-network/settlements/pkg/db/models/ledger"
	"go.uber.org/zap"
)

// Store is the campaign query surface the aggregator needs.
type Store interface {
	// FetchRequiredBudgetsPerAccount sums, per account, the budgets of
	// campaigns that are Active with no end date or an end date after now.
	// Total covers all such campaigns; Bonusable only the untargeted ones.
	FetchRequiredBudgetsPerAccount(ctx context.Context, now time.Time) (map[string]models.Budget, error)
}

// Aggregator derives the per-account budget the admission job must reserve.
// bonusFraction bounds the share of the total that may be drawn from bonus
// funds, regardless of how much untargeted budget the account runs.
type Aggregator struct {
	store         Store
	bonusFraction float64
	logger        *zap.Logger
}

// NewAggregator creates an Aggregator. bonusFraction outside [0,1] is clamped.
func NewAggregator(store Store, bonusFraction float64, logger *zap.Logger) *Aggregator {
	if bonusFraction < 0 {
		bonusFraction = 0
	}
	if bonusFraction > 1 {
		bonusFraction = 1
	}
	return &Aggregator{store: store, bonusFraction: bonusFraction, logger: logger}
}

// FetchRequiredBudgets returns the budget each account's running campaigns
// commit, with the bonus-eligible portion capped by the policy fraction.
func (a *Aggregator) FetchRequiredBudgets(ctx context.Context, now time.Time) (map[string]models.Budget, error) {
	budgets, err := a.store.FetchRequiredBudgetsPerAccount(ctx, now)
	if err != nil {
		return nil, err
	}

	for accountID, b := range budgets {
		limit := int64(a.bonusFraction * float64(b.Total))
		if b.Bonusable > limit {
			b.Bonusable = limit
			budgets[accountID] = b
		}
	}

	a.logger.Debug("fetched required budgets", zap.Int("accounts", len(budgets)))
	return budgets, nil
}
