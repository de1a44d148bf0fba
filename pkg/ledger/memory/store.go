// Package memory provides an in-memory implementation of the ledger, budget
// and distributor store contracts. It backs unit tests and local development;
// production deployments use the Postgres store in pkg/db/ledger.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	models "github.com/adchain-network/settlements/pkg/db/models/ledger"
	"github.com/adchain-network/settlements/pkg/distributor"
	"github.com/adchain-network/settlements/pkg/ledger"
	"github.com/puzpuzpuz/xsync/v4"
)

// Store keeps every table in process memory. A single RWMutex guards the
// data; per-account serialization for InTx comes from a lazily created mutex
// per account, mirroring the advisory-lock semantics of the Postgres store.
type Store struct {
	mu sync.RWMutex

	nextEntryID    int64
	nextPaymentID  int64
	nextNetworkID  int64
	nextCampaignID int64

	entries         []*models.LedgerEntry
	accounts        map[string]struct{}
	payments        map[int64]*models.AdsPayment
	paymentsByTx    map[string]int64
	networkPayments []*models.NetworkPayment
	networkKeys     map[string]struct{}
	campaigns       []*models.Campaign

	accountLocks *xsync.Map[string, *sync.Mutex]
	batchMu      sync.Mutex

	now func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		accounts:     make(map[string]struct{}),
		payments:     make(map[int64]*models.AdsPayment),
		paymentsByTx: make(map[string]int64),
		networkKeys:  make(map[string]struct{}),
		accountLocks: xsync.NewMap[string, *sync.Mutex](),
		now:          time.Now,
	}
}

// SetClock overrides the time source. Test helper.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// RegisterAccount makes an account known to the store.
func (s *Store) RegisterAccount(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[accountID] = struct{}{}
}

// AddCampaign inserts a campaign row.
func (s *Store) AddCampaign(c *models.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCampaignID++
	c.ID = s.nextCampaignID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.campaigns = append(s.campaigns, c)
}

// Entries returns a snapshot of all ledger entries, tombstoned ones included.
func (s *Store) Entries() []*models.LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.LedgerEntry, len(s.entries))
	for i, e := range s.entries {
		cp := *e
		out[i] = &cp
	}
	return out
}

func (s *Store) append(accountID string, typ models.EntryType, amount int64, status models.EntryStatus) int64 {
	s.nextEntryID++
	now := s.now()
	s.entries = append(s.entries, &models.LedgerEntry{
		ID:        s.nextEntryID,
		AccountID: accountID,
		Type:      typ,
		Amount:    amount,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	})
	s.accounts[accountID] = struct{}{}
	return s.nextEntryID
}

// Append inserts an entry outside any transaction. Test seeding helper with
// the same semantics as Tx.Append.
func (s *Store) Append(ctx context.Context, accountID string, typ models.EntryType, amount int64, status models.EntryStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.append(accountID, typ, amount, status), nil
}

func inSet[T comparable](v T, set []T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func (s *Store) sum(accountID string, statuses []models.EntryStatus, types []models.EntryType) int64 {
	var total int64
	for _, e := range s.entries {
		if e.Deleted() {
			continue
		}
		if accountID != "" && e.AccountID != accountID {
			continue
		}
		if !inSet(e.Status, statuses) || !inSet(e.Type, types) {
			continue
		}
		total += e.Amount
	}
	return total
}

func (s *Store) readSum(accountID string, statuses []models.EntryStatus, types []models.EntryType) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sum(accountID, statuses, types)
}

// Balance readings (ledger.BalanceReader).

func (s *Store) Balance(ctx context.Context, accountID string) (int64, error) {
	return s.readSum(accountID, models.AcceptedStatuses, models.BalanceTypes), nil
}

func (s *Store) WalletBalance(ctx context.Context, accountID string) (int64, error) {
	return s.readSum(accountID, models.AcceptedStatuses, models.WalletTypes), nil
}

func (s *Store) BonusBalance(ctx context.Context, accountID string) (int64, error) {
	return s.readSum(accountID, models.AcceptedStatuses, models.BonusTypes), nil
}

func (s *Store) AvailableBalance(ctx context.Context, accountID string) (int64, error) {
	return s.readSum(accountID, models.AvailableStatuses, models.BalanceTypes), nil
}

func (s *Store) AvailableWalletBalance(ctx context.Context, accountID string) (int64, error) {
	return s.readSum(accountID, models.AvailableStatuses, models.WalletTypes), nil
}

func (s *Store) AvailableBonusBalance(ctx context.Context, accountID string) (int64, error) {
	return s.readSum(accountID, models.AvailableStatuses, models.BonusTypes), nil
}

func (s *Store) BalanceForAllAccounts(ctx context.Context) (int64, error) {
	return s.readSum("", models.AcceptedStatuses, models.BalanceTypes), nil
}

func (s *Store) WalletBalanceForAllAccounts(ctx context.Context) (int64, error) {
	return s.readSum("", models.AcceptedStatuses, models.WalletTypes), nil
}

func (s *Store) BonusBalanceForAllAccounts(ctx context.Context) (int64, error) {
	return s.readSum("", models.AcceptedStatuses, models.BonusTypes), nil
}

type memTx struct {
	store *Store
}

func (t *memTx) Balance(ctx context.Context, accountID string) (int64, error) {
	return t.store.Balance(ctx, accountID)
}

func (t *memTx) WalletBalance(ctx context.Context, accountID string) (int64, error) {
	return t.store.WalletBalance(ctx, accountID)
}

func (t *memTx) BonusBalance(ctx context.Context, accountID string) (int64, error) {
	return t.store.BonusBalance(ctx, accountID)
}

func (t *memTx) AvailableBalance(ctx context.Context, accountID string) (int64, error) {
	return t.store.AvailableBalance(ctx, accountID)
}

func (t *memTx) AvailableWalletBalance(ctx context.Context, accountID string) (int64, error) {
	return t.store.AvailableWalletBalance(ctx, accountID)
}

func (t *memTx) AvailableBonusBalance(ctx context.Context, accountID string) (int64, error) {
	return t.store.AvailableBonusBalance(ctx, accountID)
}

func (t *memTx) Append(ctx context.Context, accountID string, typ models.EntryType, amount int64, status models.EntryStatus) (int64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.append(accountID, typ, amount, status), nil
}

// InTx serializes fn against other InTx calls on the same account.
func (s *Store) InTx(ctx context.Context, accountID string, fn func(tx ledger.Tx) error) error {
	lock, _ := s.accountLocks.LoadOrStore(accountID, &sync.Mutex{})
	lock.Lock()
	defer lock.Unlock()
	return fn(&memTx{store: s})
}

// Transition compare-and-sets an entry's status.
func (s *Store) Transition(ctx context.Context, entryID int64, from, to models.EntryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID != entryID || e.Deleted() {
			continue
		}
		if e.Status != from {
			return fmt.Errorf("entry %d is %d, expected %d: %w", entryID, e.Status, from, ledger.ErrStatusConflict)
		}
		e.Status = to
		e.UpdatedAt = s.now()
		return nil
	}
	return ledger.ErrEntryNotFound
}

// SoftDelete tombstones an entry.
func (s *Store) SoftDelete(ctx context.Context, entryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID != entryID || e.Deleted() {
			continue
		}
		now := s.now()
		e.DeletedAt = &now
		e.UpdatedAt = now
		return nil
	}
	return ledger.ErrEntryNotFound
}

// PushBlockedToProcessing moves all Blocked expense entries to Processing.
func (s *Store) PushBlockedToProcessing(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var moved int64
	for _, e := range s.entries {
		if e.Deleted() || e.Status != models.StatusBlocked || !inSet(e.Type, models.ExpenseTypes) {
			continue
		}
		e.Status = models.StatusProcessing
		e.UpdatedAt = s.now()
		moved++
	}
	return moved, nil
}

// RemoveProcessingExpenses soft-deletes all Processing expense entries.
func (s *Store) RemoveProcessingExpenses(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for _, e := range s.entries {
		if e.Deleted() || e.Status != models.StatusProcessing || !inSet(e.Type, models.ExpenseTypes) {
			continue
		}
		now := s.now()
		e.DeletedAt = &now
		e.UpdatedAt = now
		removed++
	}
	return removed, nil
}

// Distributor store contract.

// RegisterAdsPayment records an incoming receipt, idempotent by txid.
func (s *Store) RegisterAdsPayment(ctx context.Context, txid, sender string, amount int64) (*models.AdsPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.paymentsByTx[txid]; ok {
		cp := *s.payments[id]
		return &cp, nil
	}
	s.nextPaymentID++
	p := &models.AdsPayment{
		ID:            s.nextPaymentID,
		TxID:          txid,
		Amount:        amount,
		SenderAddress: sender,
		CreatedAt:     s.now(),
	}
	s.payments[p.ID] = p
	s.paymentsByTx[txid] = p.ID
	cp := *p
	return &cp, nil
}

// AdsPaymentByTxID fetches a payment by transaction ID.
func (s *Store) AdsPaymentByTxID(ctx context.Context, txid string) (*models.AdsPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.paymentsByTx[txid]
	if !ok {
		return nil, fmt.Errorf("ads payment %s not found", txid)
	}
	cp := *s.payments[id]
	return &cp, nil
}

// MarkAdsPaymentProcessed stamps the payment's processed time.
func (s *Store) MarkAdsPaymentProcessed(ctx context.Context, paymentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return fmt.Errorf("ads payment %d not found", paymentID)
	}
	now := s.now()
	p.ProcessedAt = &now
	return nil
}

// NetworkPaymentsByAdsPayment lists distributed shares for a payment.
func (s *Store) NetworkPaymentsByAdsPayment(ctx context.Context, paymentID int64) ([]*models.NetworkPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.NetworkPayment
	for _, np := range s.networkPayments {
		if np.AdsPaymentID == paymentID {
			cp := *np
			out = append(out, &cp)
		}
	}
	return out, nil
}

// batchTx stages batch writes and commits them only when fn succeeds.
type batchTx struct {
	store *Store

	offsetPaymentID int64
	offsetTo        int64
	offsetStaged    bool

	stagedNetwork []*models.NetworkPayment
	stagedIncome  []stagedIncome
}

type stagedIncome struct {
	accountID string
	amount    int64
}

func (t *batchTx) AdvanceProcessedOffset(ctx context.Context, paymentID int64, from, to int64) (bool, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	p, ok := t.store.payments[paymentID]
	if !ok {
		return false, fmt.Errorf("ads payment %d not found", paymentID)
	}
	if p.ProcessedOffset != from {
		return false, nil
	}
	t.offsetPaymentID = paymentID
	t.offsetTo = to
	t.offsetStaged = true
	return true, nil
}

func (t *batchTx) AccountExists(ctx context.Context, accountID string) (bool, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	_, ok := t.store.accounts[accountID]
	return ok, nil
}

func (t *batchTx) InsertNetworkPayment(ctx context.Context, np *models.NetworkPayment) (bool, error) {
	key := fmt.Sprintf("%d:%s", np.AdsPaymentID, np.EventID)
	t.store.mu.RLock()
	_, dup := t.store.networkKeys[key]
	t.store.mu.RUnlock()
	if dup {
		return false, nil
	}
	for _, staged := range t.stagedNetwork {
		if staged.AdsPaymentID == np.AdsPaymentID && staged.EventID == np.EventID {
			return false, nil
		}
	}
	cp := *np
	t.stagedNetwork = append(t.stagedNetwork, &cp)
	return true, nil
}

func (t *batchTx) AppendIncome(ctx context.Context, accountID string, amount int64) (int64, error) {
	t.stagedIncome = append(t.stagedIncome, stagedIncome{accountID: accountID, amount: amount})
	return 0, nil
}

// ProcessBatch runs fn against a staged view; writes apply only on success.
// Batches serialize globally, which is stricter than the Postgres store but
// preserves the same observable at-most-once behavior.
func (s *Store) ProcessBatch(ctx context.Context, fn func(tx distributor.BatchTx) error) error {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	tx := &batchTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.offsetStaged {
		s.payments[tx.offsetPaymentID].ProcessedOffset = tx.offsetTo
	}
	now := s.now()
	for _, np := range tx.stagedNetwork {
		s.nextNetworkID++
		np.ID = s.nextNetworkID
		np.CreatedAt = now
		s.networkPayments = append(s.networkPayments, np)
		s.networkKeys[fmt.Sprintf("%d:%s", np.AdsPaymentID, np.EventID)] = struct{}{}
	}
	for _, inc := range tx.stagedIncome {
		s.append(inc.accountID, models.TypeAdIncome, inc.amount, models.StatusAccepted)
	}
	return nil
}

// Budget store contract.

// FetchRequiredBudgetsPerAccount sums running-campaign budgets per account.
func (s *Store) FetchRequiredBudgetsPerAccount(ctx context.Context, now time.Time) (map[string]models.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.Budget)
	for _, c := range s.campaigns {
		if !c.Running(now) {
			continue
		}
		b := out[c.AccountID]
		b.Total += c.Budget
		if !c.Targeted {
			b.Bonusable += c.Budget
		}
		out[c.AccountID] = b
	}
	return out, nil
}
