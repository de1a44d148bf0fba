package ledger

import (
	"context"

	models "github.com/adchain-network/settlements/pkg/db/models/ledger"
	"go.uber.org/zap"
)

// Ledger is the admission controller: it reserves projected campaign spend
// against an account's available funds and manages the reservation lifecycle
// Blocked -> Processing -> {soft-deleted | Accepted}.
type Ledger struct {
	store  Store
	logger *zap.Logger
}

// New creates a Ledger on top of a Store.
func New(store Store, logger *zap.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// Store returns the underlying store.
func (l *Ledger) Store() Store {
	return l.store
}

// BlockAdExpense reserves amount against the account's available funds.
//
// The reservation draws bonus funds first: the bonus portion is stored as a
// Blocked BonusExpense entry and only the remainder as a Blocked AdExpense
// entry, so every entry is tagged with the pool it drew from at creation time.
// Fails with InsufficientFundsError (and performs no mutation) when amount
// exceeds the available balance. The check and the appends execute in one
// per-account serialized transaction, so concurrent reservations cannot
// jointly overcommit.
func (l *Ledger) BlockAdExpense(ctx context.Context, accountID string, amount int64) ([]int64, error) {
	if amount < 0 {
		return nil, ErrInvalidAmount
	}

	var ids []int64
	err := l.store.InTx(ctx, accountID, func(tx Tx) error {
		available, err := tx.AvailableBalance(ctx, accountID)
		if err != nil {
			return err
		}
		if amount > available {
			return &InsufficientFundsError{AccountID: accountID, Requested: amount, Available: available}
		}

		bonus, err := tx.AvailableBonusBalance(ctx, accountID)
		if err != nil {
			return err
		}

		var appendErr error
		ids, appendErr = appendExpenseSplit(ctx, tx, accountID, amount, bonus, models.StatusBlocked)
		return appendErr
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("blocked ad expense",
		zap.String("account_id", accountID),
		zap.Int64("amount", amount),
		zap.Int("entries", len(ids)),
	)
	return ids, nil
}

// BlockBudget reserves a campaign budget like BlockAdExpense, additionally
// capping the bonus-funded portion at b.Bonusable. Targeted campaign spend
// must come out of wallet funds, so the cap keeps bonus draw-down proportional
// to the untargeted share of the budget.
func (l *Ledger) BlockBudget(ctx context.Context, accountID string, b models.Budget) ([]int64, error) {
	if b.Total < 0 || b.Bonusable < 0 {
		return nil, ErrInvalidAmount
	}

	var ids []int64
	err := l.store.InTx(ctx, accountID, func(tx Tx) error {
		available, err := tx.AvailableBalance(ctx, accountID)
		if err != nil {
			return err
		}
		if b.Total > available {
			return &InsufficientFundsError{AccountID: accountID, Requested: b.Total, Available: available}
		}

		bonus, err := tx.AvailableBonusBalance(ctx, accountID)
		if err != nil {
			return err
		}
		if bonus > b.Bonusable {
			bonus = b.Bonusable
		}

		var appendErr error
		ids, appendErr = appendExpenseSplit(ctx, tx, accountID, b.Total, bonus, models.StatusBlocked)
		return appendErr
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("blocked campaign budget",
		zap.String("account_id", accountID),
		zap.Int64("total", b.Total),
		zap.Int64("bonusable", b.Bonusable),
		zap.Int("entries", len(ids)),
	)
	return ids, nil
}

// ProcessAdExpense finalizes spend already covered by a prior reservation,
// appending Accepted expense entries directly with no funds check. The
// bonus-first split mirrors BlockAdExpense, computed over settled balances.
// Must not be used for un-reserved spend.
func (l *Ledger) ProcessAdExpense(ctx context.Context, accountID string, amount int64) ([]int64, error) {
	if amount < 0 {
		return nil, ErrInvalidAmount
	}

	var ids []int64
	err := l.store.InTx(ctx, accountID, func(tx Tx) error {
		bonus, err := tx.BonusBalance(ctx, accountID)
		if err != nil {
			return err
		}

		var appendErr error
		ids, appendErr = appendExpenseSplit(ctx, tx, accountID, amount, bonus, models.StatusAccepted)
		return appendErr
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("processed ad expense",
		zap.String("account_id", accountID),
		zap.Int64("amount", amount),
		zap.Int("entries", len(ids)),
	)
	return ids, nil
}

// appendExpenseSplit writes the bonus-first decomposition of an expense of the
// given magnitude: -min(amount, bonus) as BonusExpense, the remainder as
// AdExpense. Zero-amount parts are not stored.
func appendExpenseSplit(ctx context.Context, tx Tx, accountID string, amount, bonus int64, status models.EntryStatus) ([]int64, error) {
	if bonus < 0 {
		bonus = 0
	}
	bonusPart := amount
	if bonusPart > bonus {
		bonusPart = bonus
	}
	walletPart := amount - bonusPart

	var ids []int64
	if bonusPart > 0 {
		id, err := tx.Append(ctx, accountID, models.TypeBonusExpense, -bonusPart, status)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if walletPart > 0 {
		id, err := tx.Append(ctx, accountID, models.TypeAdExpense, -walletPart, status)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// PushBlockedToProcessing transitions every Blocked expense reservation to
// Processing. A pure status change: both statuses are excluded from settled
// balances and included in available balances, so no reading moves.
func (l *Ledger) PushBlockedToProcessing(ctx context.Context) (int64, error) {
	moved, err := l.store.PushBlockedToProcessing(ctx)
	if err != nil {
		return 0, err
	}
	if moved > 0 {
		l.logger.Info("pushed blocked entries to processing", zap.Int64("entries", moved))
	}
	return moved, nil
}

// RemoveProcessingExpenses soft-deletes every Processing expense reservation,
// returning the committed amounts to their accounts' available balances. This
// is the rollback path for reservations whose measured spend was lower than,
// or never confirmed against, the blocked amount.
func (l *Ledger) RemoveProcessingExpenses(ctx context.Context) (int64, error) {
	removed, err := l.store.RemoveProcessingExpenses(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		l.logger.Info("removed processing expenses", zap.Int64("entries", removed))
	}
	return removed, nil
}

// AcceptEntry finalizes a single Processing reservation as settled spend.
// Used by the subsystem that confirms measured spend against a reservation.
func (l *Ledger) AcceptEntry(ctx context.Context, entryID int64) error {
	return l.store.Transition(ctx, entryID, models.StatusProcessing, models.StatusAccepted)
}
