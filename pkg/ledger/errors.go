package ledger

import (
	"errors"
	"fmt"
)

// ErrInvalidAmount is returned when a negative magnitude is passed to an
// operation that expects a non-negative one.
var ErrInvalidAmount = errors.New("values need to be non-negative")

// ErrEntryNotFound is returned for operations on an entry ID that does not
// exist or is tombstoned.
var ErrEntryNotFound = errors.New("ledger entry not found")

// ErrStatusConflict is returned by a compare-and-set transition when the
// entry's current status does not match the expected one.
var ErrStatusConflict = errors.New("ledger entry status conflict")

// InsufficientFundsError is returned by BlockAdExpense when the requested
// reservation exceeds the account's available funds. No mutation occurred.
type InsufficientFundsError struct {
	AccountID string
	Requested int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for account %s: requested %d, available %d",
		e.AccountID, e.Requested, e.Available)
}

// IsInsufficientFunds reports whether err is an InsufficientFundsError.
func IsInsufficientFunds(err error) bool {
	var ife *InsufficientFundsError
	return errors.As(err, &ife)
}
