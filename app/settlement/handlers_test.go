package settlement_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adchain-network/settlements/app/settlement"
	models "github.com/adchain-network/settlements/pkg/db/models/ledger"
	"github.com/adchain-network/settlements/pkg/exchange"
	"github.com/adchain-network/settlements/pkg/ledger/memory"
)

func newServerApp(t *testing.T, store *memory.Store) *settlement.App {
	t.Helper()
	app := newTestApp(t, store, &stubRates{rate: &exchange.Rate{Value: 1, Currency: "USD"}})
	app.AdminToken = "test-token"
	app.SetupServer()
	return app
}

func doRequest(app *settlement.App, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	app := newServerApp(t, memory.New())

	assert.Equal(t, 200, doRequest(app, "GET", "/healthz", "").Code)
	// Ready() requires a database; the test app runs without one.
	assert.Equal(t, 503, doRequest(app, "GET", "/readyz", "").Code)
}

func TestBalanceEndpointRequiresAuth(t *testing.T) {
	app := newServerApp(t, memory.New())

	assert.Equal(t, 401, doRequest(app, "GET", "/accounts/alice/balance", "").Code)
	assert.Equal(t, 401, doRequest(app, "GET", "/accounts/alice/balance", "wrong").Code)
	assert.Equal(t, 200, doRequest(app, "GET", "/accounts/alice/balance", "test-token").Code)
}

func TestBalanceEndpointReadings(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	app := newServerApp(t, store)

	_, err := store.Append(ctx, "alice", models.TypeDeposit, 100, models.StatusAccepted)
	require.NoError(t, err)
	_, err = store.Append(ctx, "alice", models.TypeBonusIncome, 40, models.StatusAccepted)
	require.NoError(t, err)
	_, err = store.Append(ctx, "alice", models.TypeAdExpense, -30, models.StatusBlocked)
	require.NoError(t, err)

	rec := doRequest(app, "GET", "/accounts/alice/balance", "test-token")
	require.Equal(t, 200, rec.Code)

	var resp settlement.BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.AccountID)
	assert.Equal(t, int64(140), resp.Balance)
	assert.Equal(t, int64(100), resp.WalletBalance)
	assert.Equal(t, int64(40), resp.BonusBalance)
	assert.Equal(t, int64(110), resp.Available)
	assert.Equal(t, int64(70), resp.AvailableWallet)
	assert.Equal(t, int64(40), resp.AvailableBonus)
}

func TestSummaryEndpoint(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	app := newServerApp(t, store)

	_, err := store.Append(ctx, "alice", models.TypeDeposit, 100, models.StatusAccepted)
	require.NoError(t, err)
	_, err = store.Append(ctx, "bob", models.TypeBonusIncome, 40, models.StatusAccepted)
	require.NoError(t, err)

	rec := doRequest(app, "GET", "/ledger/summary", "test-token")
	require.Equal(t, 200, rec.Code)

	var resp settlement.SummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(140), resp.Balance)
	assert.Equal(t, int64(100), resp.WalletBalance)
	assert.Equal(t, int64(40), resp.BonusBalance)
}

func TestBlockadeTrigger(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	app := newServerApp(t, store)

	_, err := store.Append(ctx, "alice", models.TypeDeposit, 500, models.StatusAccepted)
	require.NoError(t, err)
	store.AddCampaign(&models.Campaign{AccountID: "alice", Status: models.CampaignActive, Budget: 300})

	rec := doRequest(app, "POST", "/blockade/run", "test-token")
	require.Equal(t, 200, rec.Code)

	available, err := store.AvailableBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(200), available)
}

func TestBlockadeTriggerFailure(t *testing.T) {
	store := memory.New()
	app := newTestApp(t, store, &stubRates{err: exchange.ErrRateUnavailable})
	app.AdminToken = "test-token"
	app.SetupServer()

	rec := doRequest(app, "POST", "/blockade/run", "test-token")
	assert.Equal(t, 500, rec.Code)
}
