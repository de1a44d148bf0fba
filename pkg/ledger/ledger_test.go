package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	models "github.com/adchain-network/settlements/pkg/db/models/ledger"
	"github.com/adchain-network/settlements/pkg/ledger"
	"github.com/adchain-network/settlements/pkg/ledger/memory"
)

func newLedger(t *testing.T) (*ledger.Ledger, *memory.Store) {
	t.Helper()
	store := memory.New()
	return ledger.New(store, zaptest.NewLogger(t)), store
}

func seed(t *testing.T, store *memory.Store, accountID string, typ models.EntryType, amount int64, status models.EntryStatus) int64 {
	t.Helper()
	id, err := store.Append(context.Background(), accountID, typ, amount, status)
	require.NoError(t, err)
	return id
}

func entryByID(t *testing.T, store *memory.Store, id int64) *models.LedgerEntry {
	t.Helper()
	for _, e := range store.Entries() {
		if e.ID == id {
			return e
		}
	}
	t.Fatalf("entry %d not found", id)
	return nil
}

func TestBlockAdExpenseDrawsBonusFirst(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)

	// wallet = 100 - 50 = 50, bonus = 200 - 10 = 190, balance = 240.
	seed(t, store, "alice", models.TypeDeposit, 100, models.StatusAccepted)
	seed(t, store, "alice", models.TypeWithdrawal, -50, models.StatusAccepted)
	seed(t, store, "alice", models.TypeBonusIncome, 200, models.StatusAccepted)
	seed(t, store, "alice", models.TypeBonusExpense, -10, models.StatusAccepted)

	// Fully covered by bonus.
	ids, err := l.BlockAdExpense(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	e := entryByID(t, store, ids[0])
	assert.Equal(t, models.TypeBonusExpense, e.Type)
	assert.Equal(t, int64(-10), e.Amount)
	assert.Equal(t, models.StatusBlocked, e.Status)

	// Bonus has 180 left; the remaining 10 comes from the wallet.
	ids, err = l.BlockAdExpense(ctx, "alice", 190)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	bonusPart := entryByID(t, store, ids[0])
	walletPart := entryByID(t, store, ids[1])
	assert.Equal(t, models.TypeBonusExpense, bonusPart.Type)
	assert.Equal(t, int64(-180), bonusPart.Amount)
	assert.Equal(t, models.TypeAdExpense, walletPart.Type)
	assert.Equal(t, int64(-10), walletPart.Amount)

	// Bonus is exhausted, the wallet covers the rest alone.
	ids, err = l.BlockAdExpense(ctx, "alice", 20)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	e = entryByID(t, store, ids[0])
	assert.Equal(t, models.TypeAdExpense, e.Type)
	assert.Equal(t, int64(-20), e.Amount)

	// Everything is reserved now.
	available, err := store.AvailableBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(20), available)

	_, err = l.BlockAdExpense(ctx, "alice", 21)
	require.Error(t, err)
	assert.True(t, ledger.IsInsufficientFunds(err))
}

func TestBlockAdExpenseLeavesSettledBalanceUntouched(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)

	seed(t, store, "alice", models.TypeDeposit, 100, models.StatusAccepted)

	_, err := l.BlockAdExpense(ctx, "alice", 60)
	require.NoError(t, err)

	settled, err := store.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), settled, "blocked reservations must not settle")

	available, err := store.AvailableBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(40), available)
}

func TestBlockAdExpenseRejectsNegativeAmount(t *testing.T) {
	l, _ := newLedger(t)

	_, err := l.BlockAdExpense(context.Background(), "alice", -1)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestBlockAdExpenseInsufficientFundsMutatesNothing(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)

	seed(t, store, "alice", models.TypeDeposit, 30, models.StatusAccepted)

	_, err := l.BlockAdExpense(ctx, "alice", 31)
	require.Error(t, err)

	var insufficientErr *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, "alice", insufficientErr.AccountID)
	assert.Equal(t, int64(31), insufficientErr.Requested)
	assert.Equal(t, int64(30), insufficientErr.Available)

	assert.Len(t, store.Entries(), 1, "a rejected reservation must not write entries")
}

func TestBlockBudgetCapsBonusDraw(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)

	seed(t, store, "alice", models.TypeDeposit, 100, models.StatusAccepted)
	seed(t, store, "alice", models.TypeBonusIncome, 100, models.StatusAccepted)

	// Only 30 of the budget is bonus-eligible even though 100 bonus is there.
	ids, err := l.BlockBudget(ctx, "alice", models.Budget{Total: 80, Bonusable: 30})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	bonusPart := entryByID(t, store, ids[0])
	walletPart := entryByID(t, store, ids[1])
	assert.Equal(t, models.TypeBonusExpense, bonusPart.Type)
	assert.Equal(t, int64(-30), bonusPart.Amount)
	assert.Equal(t, models.TypeAdExpense, walletPart.Type)
	assert.Equal(t, int64(-50), walletPart.Amount)
}

func TestProcessAdExpenseSettlesImmediately(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)

	seed(t, store, "alice", models.TypeDeposit, 100, models.StatusAccepted)
	seed(t, store, "alice", models.TypeBonusIncome, 40, models.StatusAccepted)

	ids, err := l.ProcessAdExpense(ctx, "alice", 70)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	for _, id := range ids {
		assert.Equal(t, models.StatusAccepted, entryByID(t, store, id).Status)
	}

	settled, err := store.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(70), settled)

	bonus, err := store.BonusBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bonus, "bonus pool drains first")
}

func TestReservationLifecycle(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)

	seed(t, store, "alice", models.TypeDeposit, 100, models.StatusAccepted)

	ids, err := l.BlockAdExpense(ctx, "alice", 60)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	moved, err := l.PushBlockedToProcessing(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), moved)

	// Processing still counts against available funds.
	available, err := store.AvailableBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(40), available)

	removed, err := l.RemoveProcessingExpenses(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// Voided reservations return to available funds.
	available, err = store.AvailableBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), available)
}

func TestBulkOpsIgnoreNonExpenseEntries(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)

	seed(t, store, "alice", models.TypeDeposit, 100, models.StatusAccepted)
	withdrawalID := seed(t, store, "alice", models.TypeWithdrawal, -25, models.StatusProcessing)
	blockedWithdrawalID := seed(t, store, "alice", models.TypeWithdrawal, -15, models.StatusBlocked)

	_, err := l.BlockAdExpense(ctx, "alice", 10)
	require.NoError(t, err)

	moved, err := l.PushBlockedToProcessing(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), moved)
	assert.Equal(t, models.StatusBlocked, entryByID(t, store, blockedWithdrawalID).Status)

	removed, err := l.RemoveProcessingExpenses(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// Withdrawals in flight stay in flight.
	e := entryByID(t, store, withdrawalID)
	assert.Equal(t, models.StatusProcessing, e.Status)
	assert.False(t, e.Deleted())
}

func TestAcceptEntrySettlesReservation(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)

	seed(t, store, "alice", models.TypeDeposit, 100, models.StatusAccepted)

	ids, err := l.BlockAdExpense(ctx, "alice", 60)
	require.NoError(t, err)

	_, err = l.PushBlockedToProcessing(ctx)
	require.NoError(t, err)

	require.NoError(t, l.AcceptEntry(ctx, ids[0]))

	settled, err := store.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(40), settled)
}

func TestAcceptEntryStatusConflict(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)

	seed(t, store, "alice", models.TypeDeposit, 100, models.StatusAccepted)

	ids, err := l.BlockAdExpense(ctx, "alice", 60)
	require.NoError(t, err)

	// Still Blocked, not Processing.
	err = l.AcceptEntry(ctx, ids[0])
	assert.ErrorIs(t, err, ledger.ErrStatusConflict)

	err = l.AcceptEntry(ctx, 9999)
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
}

func TestSoftDeletedEntriesAreExcludedFromBalances(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)

	seed(t, store, "alice", models.TypeDeposit, 100, models.StatusAccepted)
	id := seed(t, store, "alice", models.TypeAdExpense, -40, models.StatusAccepted)

	settled, err := store.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(60), settled)

	require.NoError(t, l.Store().SoftDelete(ctx, id))

	settled, err = store.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), settled)
}

func TestBalanceDecomposition(t *testing.T) {
	ctx := context.Background()
	_, store := newLedger(t)

	seed(t, store, "alice", models.TypeDeposit, 200, models.StatusAccepted)
	seed(t, store, "alice", models.TypeWithdrawal, -50, models.StatusAccepted)
	seed(t, store, "alice", models.TypeAdIncome, 30, models.StatusAccepted)
	seed(t, store, "alice", models.TypeAdExpense, -25, models.StatusAccepted)
	seed(t, store, "alice", models.TypeBonusIncome, 90, models.StatusAccepted)
	seed(t, store, "alice", models.TypeBonusExpense, -10, models.StatusAccepted)
	// Unknown entries count toward no reading.
	seed(t, store, "alice", models.TypeUnknown, 1000, models.StatusAccepted)

	wallet, err := store.WalletBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(155), wallet)

	bonus, err := store.BonusBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(80), bonus)

	balance, err := store.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, wallet+bonus, balance)
}

func TestGlobalBalancesSpanAccounts(t *testing.T) {
	ctx := context.Background()
	_, store := newLedger(t)

	seed(t, store, "alice", models.TypeDeposit, 100, models.StatusAccepted)
	seed(t, store, "bob", models.TypeBonusIncome, 40, models.StatusAccepted)
	seed(t, store, "bob", models.TypeDeposit, 10, models.StatusBlocked)

	total, err := store.BalanceForAllAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(140), total)

	wallet, err := store.WalletBalanceForAllAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), wallet)

	bonus, err := store.BonusBalanceForAllAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(40), bonus)
}
