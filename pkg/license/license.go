// Package license resolves the network license terms: the fee fraction taken
// from every distributed event share and the account the fee accrues to.
package license

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adchain-network/settlements/pkg/utils"
)

// Terms is the license server's response payload.
type Terms struct {
	Fee     float64 `json:"fee"`
	Account string  `json:"account"`
}

// Reader resolves license terms, preferring the license server and falling
// back to static environment configuration when no server is configured.
// Fetched terms are held for the configured refresh interval.
type Reader struct {
	logger *zap.Logger
	url    string
	http   *http.Client

	fallbackFee     float64
	fallbackAccount string

	mu        sync.Mutex
	cached    *Terms
	fetchedAt time.Time
	refresh   time.Duration
}

// NewReader builds a Reader from the environment.
//
// LICENSE_URL          license server endpoint (optional)
// LICENSE_FEE          static fee fraction used when no server is set (default 0)
// LICENSE_ACCOUNT      static fee account used when no server is set
// LICENSE_HTTP_TIMEOUT request timeout (default 10s)
// LICENSE_REFRESH      how long fetched terms stay valid (default 10m)
func NewReader(logger *zap.Logger) *Reader {
	return &Reader{
		logger: logger,
		url:    utils.Env("LICENSE_URL", ""),
		http: &http.Client{
			Timeout: utils.EnvDuration("LICENSE_HTTP_TIMEOUT", 10*time.Second),
		},
		fallbackFee:     utils.EnvFloat("LICENSE_FEE", 0),
		fallbackAccount: utils.Env("LICENSE_ACCOUNT", ""),
		refresh:         utils.EnvDuration("LICENSE_REFRESH", 10*time.Minute),
	}
}

// GetFee returns the license fee fraction.
func (r *Reader) GetFee(ctx context.Context) (float64, error) {
	terms, err := r.terms(ctx)
	if err != nil {
		return 0, err
	}
	return terms.Fee, nil
}

// GetAddress returns the account the license fee accrues to.
func (r *Reader) GetAddress(ctx context.Context) (string, error) {
	terms, err := r.terms(ctx)
	if err != nil {
		return "", err
	}
	if terms.Account == "" {
		return "", fmt.Errorf("license account is not configured")
	}
	return terms.Account, nil
}

func (r *Reader) terms(ctx context.Context) (*Terms, error) {
	if r.url == "" {
		return &Terms{Fee: r.fallbackFee, Account: r.fallbackAccount}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil && time.Since(r.fetchedAt) < r.refresh {
		return r.cached, nil
	}

	terms, err := r.fetch(ctx)
	if err != nil {
		// Stale terms beat no terms while the server is down.
		if r.cached != nil {
			r.logger.Warn("license server unreachable, using cached terms", zap.Error(err))
			return r.cached, nil
		}
		return nil, err
	}

	r.cached = terms
	r.fetchedAt = time.Now()
	return terms, nil
}

func (r *Reader) fetch(ctx context.Context) (*Terms, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build license request: %w", err)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch license terms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("license server returned %s", resp.Status)
	}

	var terms Terms
	if err := json.NewDecoder(resp.Body).Decode(&terms); err != nil {
		return nil, fmt.Errorf("decode license terms: %w", err)
	}
	if terms.Fee < 0 || terms.Fee >= 1 {
		return nil, fmt.Errorf("license fee %f out of range [0,1)", terms.Fee)
	}

	r.logger.Debug("Fetched license terms",
		zap.Float64("fee", terms.Fee),
		zap.String("account", terms.Account))
	return &terms, nil
}
