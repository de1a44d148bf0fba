// Package exchange reads settlement-currency exchange rates from the external
// rate gateway. The rate is consulted when budgeting logic converts click
// amounts to the policy currency; fee arithmetic never needs it.
package exchange

import (
	"context"
	"errors"
	"time"

	models "github.com/adchain-network/settlements/pkg/db/models/ledger"
)

// ErrRateUnavailable is returned when no exchange rate can be obtained. It is
// propagated verbatim to callers; this layer performs no retry.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// Rate is one exchange-rate quote: the value of one settlement-currency unit
// expressed in Currency, as of AsOf.
type Rate struct {
	AsOf     time.Time `json:"valid_at"`
	Value    float64   `json:"value"`
	Currency string    `json:"currency"`
}

// FromClicks converts a click amount to the quote currency.
func (r *Rate) FromClicks(clicks int64) float64 {
	return float64(clicks) / float64(models.ClicksPerUnit) * r.Value
}

// ToClicks converts a quote-currency amount, expressed in its smallest
// subunit (one 10^-11th), to clicks at this rate.
func (r *Rate) ToClicks(amount int64) int64 {
	return int64(float64(amount) / r.Value)
}

// Reader fetches the exchange rate effective at a given instant.
type Reader interface {
	FetchExchangeRate(ctx context.Context, asOf time.Time) (*Rate, error)
}
