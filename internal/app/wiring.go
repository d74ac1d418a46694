package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"stationwalk.onebusaway.org/internal/cache"
	"stationwalk.onebusaway.org/internal/config"
	"stationwalk.onebusaway.org/internal/facility"
	"stationwalk.onebusaway.org/internal/geocoder"
	"stationwalk.onebusaway.org/internal/router"
)

// clientTimeoutFactor scales an upstream's per-call timeout into the
// client's own cap; the orchestrator's context deadline normally fires first.
const clientTimeoutFactor = 2

// newCacheStore returns nil for the "none" backend.
func newCacheStore(ctx context.Context, s config.CacheSettings) (cache.Store, io.Closer, error) {
	switch s.Backend {
	case config.CacheNone:
		return nil, nil, nil
	case config.CacheRedis:
		addr := s.RedisAddr
		if addr == "" {
			addr = os.Getenv("REDIS_ADDR")
		}
		if addr == "" {
			return nil, nil, fmt.Errorf("cache.redis_addr or REDIS_ADDR is required for the redis cache")
		}
		r, err := cache.DialRedis(ctx, addr)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
		}
		return r, r, nil
	default:
		return cache.NewLRU(s.Size), nil, nil
	}
}

func newGeocoder(s config.Settings, store cache.Store, logger *slog.Logger) geocoder.Geocoder {
	client := NewPooledClient("geocoder", clientTimeoutFactor*s.Geocoder.Timeout.Std())
	g := geocoder.NewNominatimGeocoder(s.Geocoder.BaseURL, s.Geocoder.UserAgent, client, logger)
	g.Email = s.Geocoder.Email
	if s.Geocoder.ViewBox != nil {
		box := *s.Geocoder.ViewBox
		g.ViewBox = &box
	}
	if store == nil {
		return g
	}
	return geocoder.NewCachedGeocoder(g, store, s.Cache.GeocodeTTL.Std(), logger)
}

func newRouter(s config.Settings, store cache.Store, logger *slog.Logger) (router.Router, error) {
	var r router.Router
	switch s.Router.Kind {
	case config.RouterGraph:
		network, err := router.LoadNetwork(s.Router.NetworkFile)
		if err != nil {
			return nil, err
		}
		g, err := router.NewGraphRouter(network, s.Router.MaxSnapMeters, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to index network %s: %w", s.Router.NetworkFile, err)
		}
		g.ArrivalThresholdMeters = s.Router.ArrivalThresholdMeters
		r = g
	default:
		client := NewPooledClient("router", clientTimeoutFactor*s.Router.Timeout.Std())
		o := router.NewOSRMRouter(s.Router.BaseURL, client, logger)
		o.ArrivalThresholdMeters = s.Router.ArrivalThresholdMeters
		r = o
	}
	if store == nil {
		return r, nil
	}
	return router.NewCachedRouter(r, store, s.Cache.RouteTTL.Std(), logger), nil
}

// newFacilitySource returns the configured source and, for Postgres, the
// database handle to close on shutdown.
func newFacilitySource(ctx context.Context, s config.FacilitySettings, logger *slog.Logger) (facility.Source, io.Closer, error) {
	switch s.Source {
	case config.SourceURL:
		return &facility.URLSource{
			URL:        s.URL,
			AuthUser:   s.AuthUser,
			AuthPass:   s.AuthPass,
			Client:     NewPooledClient("facilities", 2*time.Minute),
			MaxRetries: s.MaxRetries,
		}, nil, nil
	case config.SourceGTFS:
		return &facility.GTFSSource{
			URL:        s.URL,
			Path:       s.Path,
			CacheDir:   s.CacheDir,
			Client:     NewPooledClient("gtfs", 5*time.Minute),
			MaxRetries: s.MaxRetries,
			Logger:     logger,
		}, nil, nil
	case config.SourcePostgres:
		url := s.DatabaseURL
		if url == "" {
			url = os.Getenv("DATABASE_URL")
		}
		if url == "" {
			return nil, nil, fmt.Errorf("facilities.database_url or DATABASE_URL is required for the postgres source")
		}
		db, err := facility.OpenPostgres(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		return &facility.PostgresSource{DB: db, Table: s.Table}, db, nil
	default:
		return &facility.FileSource{Path: s.Path}, nil, nil
	}
}
