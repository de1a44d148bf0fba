package ledger

import "time"

// ClicksPerUnit is the number of clicks (the smallest currency subunit used in
// all ledger arithmetic) in one unit of the settlement currency.
const ClicksPerUnit int64 = 100_000_000_000

// EntryType classifies a ledger entry. Deposit/Withdrawal/AdIncome/AdExpense
// move wallet funds; BonusIncome/BonusExpense move bonus funds.
type EntryType int16

const (
	TypeUnknown EntryType = iota
	TypeDeposit
	TypeWithdrawal
	TypeAdIncome
	TypeAdExpense
	TypeBonusIncome
	TypeBonusExpense
)

// EntryStatus is the lifecycle status of a ledger entry. Reserved spend moves
// New -> Blocked -> Processing and is then either accepted or soft-deleted.
type EntryStatus int16

const (
	StatusNew EntryStatus = iota
	StatusBlocked
	StatusProcessing
	StatusAccepted
	StatusRejected
)

// WalletTypes are the entry types that contribute to the wallet balance.
var WalletTypes = []EntryType{TypeDeposit, TypeWithdrawal, TypeAdIncome, TypeAdExpense}

// BonusTypes are the entry types that contribute to the bonus balance.
var BonusTypes = []EntryType{TypeBonusIncome, TypeBonusExpense}

// BalanceTypes is the union of wallet and bonus types. TypeUnknown entries are
// retained for audit but never participate in balances, which keeps
// balance == walletBalance + bonusBalance an identity.
var BalanceTypes = []EntryType{
	TypeDeposit, TypeWithdrawal, TypeAdIncome, TypeAdExpense,
	TypeBonusIncome, TypeBonusExpense,
}

// ExpenseTypes are the types created by expense reservations. Bulk lifecycle
// operations (push to processing, remove processing) touch only these.
var ExpenseTypes = []EntryType{TypeAdExpense, TypeBonusExpense}

// AcceptedStatuses selects settled entries.
var AcceptedStatuses = []EntryStatus{StatusAccepted}

// AvailableStatuses selects entries visible to admission control: settled
// entries plus in-flight reservations.
var AvailableStatuses = []EntryStatus{StatusAccepted, StatusBlocked, StatusProcessing}

// CommittedStatuses selects in-flight reservations only.
var CommittedStatuses = []EntryStatus{StatusBlocked, StatusProcessing}

// LedgerEntry is one signed, append-only money movement on an account.
// Amount is immutable once created; only the status may transition, and
// DeletedAt may be set once as a tombstone.
type LedgerEntry struct {
	ID        int64       `json:"id"`
	AccountID string      `json:"account_id"`
	Type      EntryType   `json:"type"`
	Amount    int64       `json:"amount"` // signed, in clicks
	Status    EntryStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	DeletedAt *time.Time  `json:"deleted_at,omitempty"`
}

// Deleted reports whether the entry has been tombstoned.
func (e *LedgerEntry) Deleted() bool {
	return e.DeletedAt != nil
}

// Statuses16 converts a status set to the smallint[] bind representation used
// by the Postgres store.
func Statuses16(in []EntryStatus) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		out[i] = int16(s)
	}
	return out
}

// Types16 converts a type set to the smallint[] bind representation used by
// the Postgres store.
func Types16(in []EntryType) []int16 {
	out := make([]int16, len(in))
	for i, t := range in {
		out[i] = int16(t)
	}
	return out
}
