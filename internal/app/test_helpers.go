package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"stationwalk.onebusaway.org/internal/config"
	"stationwalk.onebusaway.org/internal/facility"
	"stationwalk.onebusaway.org/internal/lookup"
	"stationwalk.onebusaway.org/internal/models"
)

var (
	testStationA = models.Facility{
		ID: "A", Name: "13th Street", Address: "1234 Market St", City: "Philadelphia",
		Region: "PA", PostalCode: "19107", Latitude: 39.95, Longitude: -75.16,
	}
	testStationB = models.Facility{ID: "B", Name: "Olney", Latitude: 40.0, Longitude: -75.2}
)

// geocoderFunc and routerFunc adapt plain functions to the collaborator
// interfaces.
type geocoderFunc func(ctx context.Context, address string) (models.ResolvedLocation, error)

func (f geocoderFunc) Resolve(ctx context.Context, address string) (models.ResolvedLocation, error) {
	return f(ctx, address)
}

type routerFunc func(ctx context.Context, from models.ResolvedLocation, to models.Facility) ([]models.DirectionStep, error)

func (f routerFunc) Route(ctx context.Context, from models.ResolvedLocation, to models.Facility) ([]models.DirectionStep, error) {
	return f(ctx, from, to)
}

func marketStreetGeocoder() geocoderFunc {
	return func(ctx context.Context, address string) (models.ResolvedLocation, error) {
		return models.ResolvedLocation{Latitude: 39.9526, Longitude: -75.1652}, nil
	}
}

func headNorthRouter() routerFunc {
	return func(ctx context.Context, from models.ResolvedLocation, to models.Facility) ([]models.DirectionStep, error) {
		return []models.DirectionStep{{Instruction: "Head north", Distance: "0.1 mi"}}, nil
	}
}

// newTestApplication wires an Application around the given collaborators
// and publishes facilities. Retries happen without backoff.
func newTestApplication(t *testing.T, g geocoderFunc, r routerFunc, facilities ...models.Facility) *Application {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	settings := config.Defaults()
	settings.Facilities.Path = "testdata/facilities.json"
	settings.Lookup.BackoffBase = 0

	index := facility.NewIndex(facility.DefaultTieEpsilonMeters)
	if len(facilities) > 0 {
		index.Swap(facility.NewSnapshot(config.SourceFile, facilities, time.Now()))
	}

	return &Application{
		Config:     config.NewConfig(4000, "testing", settings),
		Facilities: index,
		Lookup:     lookup.NewOrchestrator(g, index, r, lookup.PolicyFromSettings(settings), logger),
		Logger:     logger,
		Version:    "test-version",
		Clock:      clockwork.NewFakeClock(),
	}
}
