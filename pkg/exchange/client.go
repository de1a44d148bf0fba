package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/adchain-network/settlements/pkg/utils"
)

// Client fetches exchange rates from the rate gateway over HTTP.
type Client struct {
	logger  *zap.Logger
	baseURL string
	http    *http.Client
}

// NewClient builds a Client from the environment.
//
// EXCHANGE_RATE_URL     base URL of the rate gateway (required)
// EXCHANGE_HTTP_TIMEOUT request timeout (default 10s)
func NewClient(logger *zap.Logger) *Client {
	return &Client{
		logger:  logger,
		baseURL: utils.Env("EXCHANGE_RATE_URL", ""),
		http: &http.Client{
			Timeout: utils.EnvDuration("EXCHANGE_HTTP_TIMEOUT", 10*time.Second),
		},
	}
}

// FetchExchangeRate asks the gateway for the rate effective at asOf. Any
// transport, HTTP status or decode failure is wrapped in ErrRateUnavailable.
func (c *Client) FetchExchangeRate(ctx context.Context, asOf time.Time) (*Rate, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: EXCHANGE_RATE_URL is not set", ErrRateUnavailable)
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRateUnavailable, err)
	}
	q := u.Query()
	q.Set("ts", strconv.FormatInt(asOf.Unix(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRateUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRateUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: gateway returned %s", ErrRateUnavailable, resp.Status)
	}

	var rate Rate
	if err := json.NewDecoder(resp.Body).Decode(&rate); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRateUnavailable, err)
	}
	if rate.Value <= 0 {
		return nil, fmt.Errorf("%w: non-positive rate %f", ErrRateUnavailable, rate.Value)
	}

	c.logger.Debug("Fetched exchange rate",
		zap.Time("as_of", rate.AsOf),
		zap.Float64("value", rate.Value),
		zap.String("currency", rate.Currency))
	return &rate, nil
}
