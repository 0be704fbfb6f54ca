package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/dom/social-backend/internal/metrics"
	"go.uber.org/zap"
)

// ReadThrough serves key from c when present and otherwise calls load,
// storing the result for ttl. A broken cache degrades to calling load; it
// never fails the read.
func ReadThrough[T any](
	ctx context.Context,
	c Cache,
	rec metrics.Recorder,
	logger *zap.Logger,
	key string,
	ttl time.Duration,
	load func(ctx context.Context) (T, error),
) (T, error) {
	prefix := keyPrefix(key)

	data, ok, err := c.Get(ctx, key)
	if err != nil {
		logger.Warn("cache read failed, falling back to store", zap.String("key", key), zap.Error(err))
	}
	if ok {
		var cached T
		if err := json.Unmarshal(data, &cached); err == nil {
			rec.CacheHit(prefix)
			return cached, nil
		}
		logger.Warn("discarding undecodable cache entry", zap.String("key", key))
	}
	rec.CacheMiss(prefix)

	value, err := load(ctx)
	if err != nil {
		return value, err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return value, nil
	}
	if err := c.Set(ctx, key, encoded, ttl); err != nil {
		logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}

func keyPrefix(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i+1]
	}
	return key
}
