package ledger

import "time"

// AdsPayment is one aggregate on-chain receipt covering many ad events.
// ProcessedOffset is the high-water mark of event shares already distributed
// for this payment; it only ever advances, and advancing it is the
// at-most-once guard for settlement batches.
type AdsPayment struct {
	ID              int64      `json:"id"`
	TxID            string     `json:"txid"`
	Amount          int64      `json:"amount"` // clicks
	SenderAddress   string     `json:"sender_address"`
	ProcessedOffset int64      `json:"processed_offset"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// NetworkPayment is one distributed per-event share of an AdsPayment.
// Amount is the post-fee publisher credit. (AdsPaymentID, EventID) is the
// per-event idempotency key; rows are created once and never mutated.
type NetworkPayment struct {
	ID           int64     `json:"id"`
	AdsPaymentID int64     `json:"ads_payment_id"`
	EventID      string    `json:"event_id"`
	AccountID    string    `json:"account_id"` // publisher account credited
	Amount       int64     `json:"amount"`     // clicks
	CreatedAt    time.Time `json:"created_at"`
}

// EventShare is one pre-attributed billable event delivered by the upstream
// attribution feed: which publisher earned how much of the aggregate payment.
type EventShare struct {
	EventID            string `json:"event_id"`
	PublisherAccountID string `json:"publisher_account_id"`
	EventValue         int64  `json:"event_value"` // clicks, pre-fee
}
