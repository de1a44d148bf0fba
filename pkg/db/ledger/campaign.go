package ledgerdb

import (
	"context"
	"fmt"
	"time"

	models "github.com/adchain-network/settlements/pkg/db/models/ledger"
)

// initCampaigns creates the campaign table.
func (db *DB) initCampaigns(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS campaigns (
			id BIGSERIAL PRIMARY KEY,
			account_id TEXT NOT NULL,
			status SMALLINT NOT NULL DEFAULT 0,
			budget BIGINT NOT NULL,
			targeted BOOLEAN NOT NULL DEFAULT FALSE,
			time_start TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			time_end TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_campaigns_account_status
			ON campaigns (account_id, status);
	`
	return db.Exec(ctx, query)
}

// InsertCampaign stores a campaign row and fills in its ID.
func (db *DB) InsertCampaign(ctx context.Context, c *models.Campaign) error {
	query := `
		INSERT INTO campaigns (account_id, status, budget, targeted, time_start, time_end)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := db.Pool.QueryRow(ctx, query,
		c.AccountID, int16(c.Status), c.Budget, c.Targeted, c.TimeStart, c.TimeEnd,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert campaign for %s: %w", c.AccountID, err)
	}
	return nil
}

// FetchRequiredBudgetsPerAccount sums, per account, the budgets committed by
// campaigns that are Active and not yet ended. Bonusable counts only
// untargeted campaigns; the policy cap is applied by the budget aggregator.
func (db *DB) FetchRequiredBudgetsPerAccount(ctx context.Context, now time.Time) (map[string]models.Budget, error) {
	query := `
		SELECT account_id,
		       COALESCE(SUM(budget), 0),
		       COALESCE(SUM(budget) FILTER (WHERE NOT targeted), 0)
		FROM campaigns
		WHERE status = $1 AND (time_end IS NULL OR time_end > $2)
		GROUP BY account_id
	`
	rows, err := db.Pool.Query(ctx, query, int16(models.CampaignActive), now)
	if err != nil {
		return nil, fmt.Errorf("fetch required budgets: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.Budget)
	for rows.Next() {
		var accountID string
		var b models.Budget
		if scanErr := rows.Scan(&accountID, &b.Total, &b.Bonusable); scanErr != nil {
			return nil, scanErr
		}
		out[accountID] = b
	}
	return out, rows.Err()
}
