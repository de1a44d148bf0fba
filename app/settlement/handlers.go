package settlement

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/adchain-network/settlements/pkg/utils"
)

// SetupServer sets up the ops HTTP server.
func (a *App) SetupServer() {
	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := utils.Env("ADDR", ":3010")

	r := mux.NewRouter()

	r.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) })).Methods("GET")
	r.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if a.Ready() {
			w.WriteHeader(200)
		} else {
			w.WriteHeader(503)
		}
	})).Methods("GET")

	r.Handle("/accounts/{id}/balance", a.RequireAuth(http.HandlerFunc(a.AccountBalance))).Methods("GET")
	r.Handle("/ledger/summary", a.RequireAuth(http.HandlerFunc(a.LedgerSummary))).Methods("GET")
	r.Handle("/blockade/run", a.RequireAuth(http.HandlerFunc(a.TriggerBlockade))).Methods("POST")

	a.Server = &http.Server{Addr: addr, Handler: r}
}

// BalanceResponse carries every balance reading of one account: the settled
// figures and the available figures net of open reservations.
type BalanceResponse struct {
	AccountID       string `json:"account_id"`
	Balance         int64  `json:"balance"`
	WalletBalance   int64  `json:"wallet_balance"`
	BonusBalance    int64  `json:"bonus_balance"`
	Available       int64  `json:"available_balance"`
	AvailableWallet int64  `json:"available_wallet_balance"`
	AvailableBonus  int64  `json:"available_bonus_balance"`
}

// AccountBalance serves every balance reading for one account.
func (a *App) AccountBalance(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["id"]
	ctx := r.Context()
	store := a.Ledger.Store()

	resp := BalanceResponse{AccountID: accountID}
	readings := []struct {
		dst  *int64
		read func(context.Context, string) (int64, error)
	}{
		{&resp.Balance, store.Balance},
		{&resp.WalletBalance, store.WalletBalance},
		{&resp.BonusBalance, store.BonusBalance},
		{&resp.Available, store.AvailableBalance},
		{&resp.AvailableWallet, store.AvailableWalletBalance},
		{&resp.AvailableBonus, store.AvailableBonusBalance},
	}
	for _, reading := range readings {
		v, err := reading.read(ctx, accountID)
		if err != nil {
			a.writeError(w, http.StatusInternalServerError, err)
			return
		}
		*reading.dst = v
	}

	a.writeJSON(w, resp)
}

// SummaryResponse carries the settled global aggregates used for
// reconciliation against the operator's on-chain holdings.
type SummaryResponse struct {
	Balance       int64 `json:"balance"`
	WalletBalance int64 `json:"wallet_balance"`
	BonusBalance  int64 `json:"bonus_balance"`
}

// LedgerSummary serves the global settled aggregates.
func (a *App) LedgerSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store := a.Ledger.Store()

	var (
		resp SummaryResponse
		err  error
	)
	if resp.Balance, err = store.BalanceForAllAccounts(ctx); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if resp.WalletBalance, err = store.WalletBalanceForAllAccounts(ctx); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if resp.BonusBalance, err = store.BonusBalanceForAllAccounts(ctx); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}

	a.writeJSON(w, resp)
}

// TriggerBlockade runs the blockade cycle on demand, outside its schedule.
func (a *App) TriggerBlockade(w http.ResponseWriter, r *http.Request) {
	if err := a.RunBlockade(r.Context()); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.writeJSON(w, map[string]string{"status": "ok"})
}

func (a *App) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.Logger.Error("write response", zap.Error(err))
	}
}

func (a *App) writeError(w http.ResponseWriter, code int, err error) {
	a.Logger.Error("request failed", zap.Error(err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
