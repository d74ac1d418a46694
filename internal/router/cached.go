package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stationwalk.onebusaway.org/internal/cache"
	"stationwalk.onebusaway.org/internal/models"
)

// CachedRouter remembers successful routes. Origins are rounded to about
// ten meters so nearby requests share an entry. The destination is part of
// the key, so a facility that moves between snapshots is routed afresh.
// Empty directions are never stored: arrival depends on the exact origin,
// not on its rounded cell.
type CachedRouter struct {
	Next   Router
	Store  cache.Store
	TTL    time.Duration
	Logger *slog.Logger
}

func NewCachedRouter(next Router, store cache.Store, ttl time.Duration, logger *slog.Logger) *CachedRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedRouter{Next: next, Store: store, TTL: ttl, Logger: logger}
}

func routeKey(from models.ResolvedLocation, to models.Facility) string {
	dest := to.Destination()
	return fmt.Sprintf("route:%.4f,%.4f:%s:%.5f,%.5f", from.Latitude, from.Longitude, to.ID, dest.Latitude, dest.Longitude)
}

func (c *CachedRouter) Route(ctx context.Context, from models.ResolvedLocation, to models.Facility) ([]models.DirectionStep, error) {
	key := routeKey(from, to)

	var steps []models.DirectionStep
	ok, err := cache.GetJSON(ctx, c.Store, "route", key, &steps)
	if err != nil {
		c.Logger.Warn("Route cache read failed", "error", err)
	}
	if ok && len(steps) > 0 {
		return steps, nil
	}

	steps, err = c.Next.Route(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return steps, nil
	}
	if err := cache.SetJSON(ctx, c.Store, key, steps, c.TTL); err != nil {
		c.Logger.Warn("Route cache write failed", "error", err)
	}
	return steps, nil
}
