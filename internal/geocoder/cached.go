package geocoder

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"stationwalk.onebusaway.org/internal/cache"
	"stationwalk.onebusaway.org/internal/models"
	"stationwalk.onebusaway.org/internal/utils"
)

// CachedGeocoder remembers successful resolutions. Failures are never
// cached, so a geocoder outage does not outlive itself.
type CachedGeocoder struct {
	Next   Geocoder
	Store  cache.Store
	TTL    time.Duration
	Logger *slog.Logger
}

func NewCachedGeocoder(next Geocoder, store cache.Store, ttl time.Duration, logger *slog.Logger) *CachedGeocoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedGeocoder{Next: next, Store: store, TTL: ttl, Logger: logger}
}

func cacheKey(address string) string {
	return "geocode:" + utils.NormalizeKey(address)
}

func (c *CachedGeocoder) Resolve(ctx context.Context, address string) (models.ResolvedLocation, error) {
	if strings.TrimSpace(address) == "" {
		return c.Next.Resolve(ctx, address)
	}
	key := cacheKey(address)

	var loc models.ResolvedLocation
	ok, err := cache.GetJSON(ctx, c.Store, "geocode", key, &loc)
	if err != nil {
		c.Logger.Warn("Geocode cache read failed", "error", err)
	}
	if ok && loc.Valid() {
		return loc, nil
	}

	loc, err = c.Next.Resolve(ctx, address)
	if err != nil {
		return models.ResolvedLocation{}, err
	}
	if err := cache.SetJSON(ctx, c.Store, key, loc, c.TTL); err != nil {
		c.Logger.Warn("Geocode cache write failed", "error", err)
	}
	return loc, nil
}
