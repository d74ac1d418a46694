package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"stationwalk.onebusaway.org/internal/config"
	"stationwalk.onebusaway.org/internal/facility"
	"stationwalk.onebusaway.org/internal/lookup"
)

// Application wires the lookup pipeline to the HTTP layer.
//
// Facilities is the live index the lookups read from; Refresher keeps it
// current. Only the lookup policy and the CORS origin follow a refreshed
// configuration, everything else applies on restart.
type Application struct {
	Config        *config.Config
	ConfigService *config.ConfigService
	Facilities    *facility.Index
	Refresher     *facility.Refresher
	Lookup        *lookup.Orchestrator
	Logger        *slog.Logger
	Version       string
	Clock         clockwork.Clock

	closers []io.Closer
}

// New builds every dependency described by cfg's settings: cache backend,
// geocoder, router, facility source and orchestrator. Nothing is loaded
// yet; call Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (*Application, error) {
	settings := cfg.GetSettings()
	app := &Application{
		Config:  cfg,
		Logger:  logger,
		Version: version,
		Clock:   clockwork.NewRealClock(),
	}

	store, closer, err := newCacheStore(ctx, settings.Cache)
	if err != nil {
		return nil, err
	}
	app.addCloser(closer)

	r, err := newRouter(settings, store, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	g := newGeocoder(settings, store, logger)

	source, closer, err := newFacilitySource(ctx, settings.Facilities, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.addCloser(closer)

	app.Facilities = facility.NewIndex(settings.Facilities.TieEpsilonMeters)
	app.Refresher = facility.NewRefresher(app.Facilities, source, settings.Facilities.RefreshInterval.Std(), logger)
	app.Lookup = lookup.NewOrchestrator(g, app.Facilities, r, lookup.PolicyFromSettings(settings), logger)

	app.ConfigService = config.NewConfigService(logger, NewPooledClient("config", 30*time.Second), cfg)
	app.ConfigService.OnUpdate = app.ApplySettings

	return app, nil
}

// Start loads the first facility snapshot and starts the background
// refresh and metrics loops. A failed first load is returned; the service
// can still start and serve 500 from the health check until a refresh
// succeeds.
func (app *Application) Start(ctx context.Context) error {
	err := app.Refresher.Load(ctx)
	go app.Refresher.Run(ctx)
	go app.StartMetricsCollection(ctx)
	return err
}

// ApplySettings publishes the live parts of a refreshed configuration.
func (app *Application) ApplySettings(s config.Settings) {
	app.Lookup.SetPolicy(lookup.PolicyFromSettings(s))
	app.Logger.Info("Applied refreshed lookup settings",
		"max_retries", s.Lookup.MaxRetries,
		"cors_origin", s.CORSOrigin)
}

func (app *Application) corsOrigin() string {
	return app.Config.GetSettings().CORSOrigin
}

func (app *Application) addCloser(c io.Closer) {
	if c != nil {
		app.closers = append(app.closers, c)
	}
}

// Close releases the cache and database connections.
func (app *Application) Close() error {
	var errs []error
	for _, c := range app.closers {
		errs = append(errs, c.Close())
	}
	app.closers = nil
	return errors.Join(errs...)
}
