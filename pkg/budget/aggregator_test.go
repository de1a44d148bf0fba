package budget_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/adchain-network/settlements/pkg/budget"
	models "github.com/adchain-network/settlements/pkg/db/models/ledger"
	"github.com/adchain-network/settlements/pkg/ledger/memory"
)

func TestFetchRequiredBudgetsFiltersCampaigns(t *testing.T) {
	now := time.Now()
	store := memory.New()

	soon := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	store.AddCampaign(&models.Campaign{AccountID: "alice", Status: models.CampaignActive, Budget: 100})
	store.AddCampaign(&models.Campaign{AccountID: "alice", Status: models.CampaignActive, Budget: 40, Targeted: true, TimeEnd: &soon})
	// None of these count: inactive, suspended, or already ended.
	store.AddCampaign(&models.Campaign{AccountID: "alice", Status: models.CampaignInactive, Budget: 999})
	store.AddCampaign(&models.Campaign{AccountID: "bob", Status: models.CampaignSuspended, Budget: 999})
	store.AddCampaign(&models.Campaign{AccountID: "bob", Status: models.CampaignActive, Budget: 999, TimeEnd: &past})
	store.AddCampaign(&models.Campaign{AccountID: "bob", Status: models.CampaignActive, Budget: 60})

	agg := budget.NewAggregator(store, 1, zaptest.NewLogger(t))
	budgets, err := agg.FetchRequiredBudgets(context.Background(), now)
	require.NoError(t, err)

	require.Len(t, budgets, 2)
	assert.Equal(t, models.Budget{Total: 140, Bonusable: 100}, budgets["alice"])
	assert.Equal(t, models.Budget{Total: 60, Bonusable: 60}, budgets["bob"])
}

func TestFetchRequiredBudgetsAppliesBonusFraction(t *testing.T) {
	now := time.Now()
	store := memory.New()

	store.AddCampaign(&models.Campaign{AccountID: "alice", Status: models.CampaignActive, Budget: 100})

	agg := budget.NewAggregator(store, 0.25, zaptest.NewLogger(t))
	budgets, err := agg.FetchRequiredBudgets(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, models.Budget{Total: 100, Bonusable: 25}, budgets["alice"])
}

func TestNewAggregatorClampsFraction(t *testing.T) {
	now := time.Now()
	store := memory.New()
	store.AddCampaign(&models.Campaign{AccountID: "alice", Status: models.CampaignActive, Budget: 100})

	agg := budget.NewAggregator(store, -1, zaptest.NewLogger(t))
	budgets, err := agg.FetchRequiredBudgets(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), budgets["alice"].Bonusable)

	agg = budget.NewAggregator(store, 7, zaptest.NewLogger(t))
	budgets, err = agg.FetchRequiredBudgets(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(100), budgets["alice"].Bonusable)
}
