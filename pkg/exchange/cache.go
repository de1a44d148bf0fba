package exchange

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/adchain-network/settlements/pkg/utils"
)

// CachedReader caches exchange rates in redis, keyed by the hour the rate was
// requested for. A cache miss or a redis failure falls through to the inner
// reader; only the inner reader's failure surfaces as ErrRateUnavailable.
type CachedReader struct {
	logger *zap.Logger
	inner  Reader
	rdb    *redis.Client
	ttl    time.Duration
}

// NewCachedReader wraps inner with a redis cache.
//
// EXCHANGE_CACHE_TTL cache entry lifetime (default 1h)
func NewCachedReader(logger *zap.Logger, inner Reader, rdb *redis.Client) *CachedReader {
	return &CachedReader{
		logger: logger,
		inner:  inner,
		rdb:    rdb,
		ttl:    utils.EnvDuration("EXCHANGE_CACHE_TTL", time.Hour),
	}
}

func cacheKey(asOf time.Time) string {
	return "exchange:rate:" + asOf.UTC().Truncate(time.Hour).Format("2006010215")
}

func (c *CachedReader) FetchExchangeRate(ctx context.Context, asOf time.Time) (*Rate, error) {
	key := cacheKey(asOf)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var rate Rate
		if err := json.Unmarshal(raw, &rate); err == nil {
			return &rate, nil
		}
		c.logger.Warn("Discarding unreadable cached exchange rate", zap.String("key", key))
	} else if err != redis.Nil {
		c.logger.Warn("Exchange rate cache read failed", zap.Error(err))
	}

	rate, err := c.inner.FetchExchangeRate(ctx, asOf)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(rate); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("Exchange rate cache write failed", zap.Error(err))
		}
	}
	return rate, nil
}
