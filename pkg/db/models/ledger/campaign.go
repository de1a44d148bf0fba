package ledger

import "time"

// CampaignStatus is the activation state of a campaign.
type CampaignStatus int16

const (
	CampaignInactive CampaignStatus = iota
	CampaignActive
	CampaignSuspended
)

// Campaign carries the admission-control view of an advertiser campaign:
// who pays, how much budget it commits per period, and whether its targeting
// is restrictive enough to disqualify it from bonus funding.
type Campaign struct {
	ID        int64          `json:"id"`
	AccountID string         `json:"account_id"`
	Status    CampaignStatus `json:"status"`
	Budget    int64          `json:"budget"` // currency subunits committed per period
	Targeted  bool           `json:"targeted"`
	TimeStart time.Time      `json:"time_start"`
	TimeEnd   *time.Time     `json:"time_end,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Running reports whether the campaign should be funded at the given instant.
func (c *Campaign) Running(now time.Time) bool {
	if c.Status != CampaignActive {
		return false
	}
	return c.TimeEnd == nil || c.TimeEnd.After(now)
}

// Budget is the per-account spend an admission run must reserve: the total
// committed by running campaigns, and the portion eligible to be drawn from
// bonus funds.
type Budget struct {
	Total     int64 `json:"total"`
	Bonusable int64 `json:"bonusable"`
}
