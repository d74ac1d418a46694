// Package cache provides the key/value stores behind the geocoder and
// router caches: an in-process LRU and a shared Redis backend.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"stationwalk.onebusaway.org/internal/metrics"
)

// Store is a byte-oriented key/value cache with per-entry expiry.
// A miss is reported as ok=false with a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// GetJSON looks up key and decodes it into v, counting the outcome under
// the given cache name. A value that no longer decodes is treated as a miss.
func GetJSON(ctx context.Context, s Store, name, key string, v any) (bool, error) {
	data, ok, err := s.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheRequests.WithLabelValues(name, "error").Inc()
		return false, err
	case !ok:
		metrics.CacheRequests.WithLabelValues(name, "miss").Inc()
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		metrics.CacheRequests.WithLabelValues(name, "miss").Inc()
		return false, nil
	}
	metrics.CacheRequests.WithLabelValues(name, "hit").Inc()
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, data, ttl)
}
