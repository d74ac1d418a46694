package lookup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stationwalk.onebusaway.org/internal/config"
	"stationwalk.onebusaway.org/internal/facility"
	"stationwalk.onebusaway.org/internal/metrics"
	"stationwalk.onebusaway.org/internal/models"
)

var (
	marketStreet = models.ResolvedLocation{Latitude: 39.9526, Longitude: -75.1652}
	stationA     = models.Facility{ID: "A", Name: "13th Street", Address: "1234 Market St", City: "Philadelphia", Region: "PA", PostalCode: "19107", Latitude: 39.95, Longitude: -75.16}
	stationB     = models.Facility{ID: "B", Name: "Olney", Latitude: 40.0, Longitude: -75.2}
	headNorth    = []models.DirectionStep{{Instruction: "Head north", Distance: "0.1 mi"}}
)

type geocodeResult struct {
	loc models.ResolvedLocation
	err error
}

// stubGeocoder returns its results in order, repeating the last one.
type stubGeocoder struct {
	calls   atomic.Int32
	results []geocodeResult
	block   bool
}

func (g *stubGeocoder) Resolve(ctx context.Context, address string) (models.ResolvedLocation, error) {
	n := int(g.calls.Add(1)) - 1
	if g.block {
		<-ctx.Done()
		return models.ResolvedLocation{}, ctx.Err()
	}
	r := g.results[min(n, len(g.results)-1)]
	return r.loc, r.err
}

type routeResult struct {
	steps []models.DirectionStep
	err   error
}

type stubRouter struct {
	calls   atomic.Int32
	results []routeResult
}

func (r *stubRouter) Route(ctx context.Context, from models.ResolvedLocation, to models.Facility) ([]models.DirectionStep, error) {
	n := int(r.calls.Add(1)) - 1
	res := r.results[min(n, len(r.results)-1)]
	return res.steps, res.err
}

type countingLocator struct {
	calls atomic.Int32
	next  Locator
}

func (c *countingLocator) Locate(p models.ResolvedLocation) (facility.Match, error) {
	c.calls.Add(1)
	return c.next.Locate(p)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFacilityIndex(facilities ...models.Facility) *facility.Index {
	ix := facility.NewIndex(facility.DefaultTieEpsilonMeters)
	ix.Swap(facility.NewSnapshot("test", facilities, time.Now()))
	return ix
}

func testPolicy() Policy {
	return Policy{
		MaxRetries:     2,
		GeocodeTimeout: 5 * time.Second,
		RouteTimeout:   5 * time.Second,
		MaxWalkMeters:  71000,
	}
}

type fixture struct {
	geocoder *stubGeocoder
	locator  *countingLocator
	router   *stubRouter
	o        *Orchestrator
}

func newFixture(g *stubGeocoder, r *stubRouter, facilities ...models.Facility) *fixture {
	if g == nil {
		g = &stubGeocoder{results: []geocodeResult{{loc: marketStreet}}}
	}
	if r == nil {
		r = &stubRouter{results: []routeResult{{steps: headNorth}}}
	}
	if facilities == nil {
		facilities = []models.Facility{stationA, stationB}
	}
	loc := &countingLocator{next: newFacilityIndex(facilities...)}
	return &fixture{
		geocoder: g,
		locator:  loc,
		router:   r,
		o:        NewOrchestrator(g, loc, r, testPolicy(), discardLogger()),
	}
}

func (f *fixture) collaboratorCalls() int32 {
	return f.geocoder.calls.Load() + f.locator.calls.Load() + f.router.calls.Load()
}

func TestHandleMarketStreet(t *testing.T) {
	f := newFixture(nil, nil)

	got, err := f.o.Handle(context.Background(), models.NewAddressDescriptor("1234 Market St"))
	require.NoError(t, err)
	assert.Equal(t, models.LookupResult{Facility: stationA, Directions: headNorth}, got)
	assert.Equal(t, int32(1), f.geocoder.calls.Load())
	assert.Equal(t, int32(1), f.router.calls.Load())
}

func TestHandleCoordinatesSkipGeocoder(t *testing.T) {
	f := newFixture(nil, nil)

	got, err := f.o.Handle(context.Background(), models.NewCoordinateDescriptor(39.9526, -75.1652))
	require.NoError(t, err)
	assert.Equal(t, "A", got.Facility.ID)
	assert.Equal(t, int32(0), f.geocoder.calls.Load())
}

func TestHandleInvalidInput(t *testing.T) {
	blank := "   "
	empty := ""
	address := "1234 Market St"
	lat, lon := 39.9526, -75.1652
	nan := math.NaN()
	tooNorth, tooWest := 91.0, -181.0

	tests := []struct {
		name    string
		d       models.LocationDescriptor
		message string
	}{
		{"coordinates without lat/lon", models.LocationDescriptor{Kind: models.LocationKindCoordinates}, "Latitude and longitude must be provided"},
		{"coordinates without lon", models.LocationDescriptor{Kind: models.LocationKindCoordinates, Latitude: &lat}, "Latitude and longitude must be provided"},
		{"empty address", models.LocationDescriptor{Kind: models.LocationKindAddress, Address: &empty}, "Address must be provided"},
		{"blank address", models.LocationDescriptor{Kind: models.LocationKindAddress, Address: &blank}, "Address must be provided"},
		{"missing address", models.LocationDescriptor{Kind: models.LocationKindAddress}, "Address must be provided"},
		{"latitude out of range", models.NewCoordinateDescriptor(tooNorth, lon), "Latitude must be a valid number between -90 and 90"},
		{"longitude out of range", models.NewCoordinateDescriptor(lat, tooWest), "Longitude must be a valid number between -180 and 180"},
		{"latitude not a number", models.NewCoordinateDescriptor(nan, lon), "Latitude must be a valid number between -90 and 90"},
		{"address with coordinates", models.LocationDescriptor{Kind: models.LocationKindAddress, Address: &address, Latitude: &lat, Longitude: &lon}, "Only one of address or latitude/longitude may be provided"},
		{"coordinates with address", models.LocationDescriptor{Kind: models.LocationKindCoordinates, Address: &address, Latitude: &lat, Longitude: &lon}, "Only one of address or latitude/longitude may be provided"},
		{"unknown kind", models.LocationDescriptor{Kind: "zip"}, "location_type must be either 'address' or 'coordinates'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(nil, nil)
			_, err := f.o.Handle(context.Background(), tt.d)

			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrInvalidInput), "expected InvalidInput, got %v", err)
			lerr, _ := models.AsLookupError(err)
			assert.Equal(t, tt.message, lerr.Message)
			assert.Equal(t, int32(0), f.collaboratorCalls(), "no collaborator may be called for invalid input")
		})
	}
}

func TestHandleCoordinatesWithBlankAddressIsAllowed(t *testing.T) {
	f := newFixture(nil, nil)
	blank := ""
	d := models.NewCoordinateDescriptor(39.9526, -75.1652)
	d.Address = &blank

	_, err := f.o.Handle(context.Background(), d)
	require.NoError(t, err)
}

func TestHandleDefinitiveGeocodeFailureIsNotRetried(t *testing.T) {
	g := &stubGeocoder{results: []geocodeResult{{err: models.GeocodeFailed("Sorry, we couldn't find zzzz nonexistent.", false, nil)}}}
	f := newFixture(g, nil)

	_, err := f.o.Handle(context.Background(), models.NewAddressDescriptor("zzzz nonexistent"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrGeocodeFailed))
	assert.False(t, models.IsTransient(err))
	assert.Equal(t, int32(1), g.calls.Load())
	assert.Equal(t, int32(0), f.router.calls.Load())
}

func TestHandleRetriesTransientFailuresWithBackoff(t *testing.T) {
	g := &stubGeocoder{results: []geocodeResult{
		{err: models.GeocodeFailed("unreachable", true, errors.New("connection reset"))},
		{loc: marketStreet},
	}}
	f := newFixture(g, nil)
	clock := clockwork.NewFakeClock()
	f.o.Clock = clock
	policy := testPolicy()
	policy.Backoff = config.Backoff{Base: 200 * time.Millisecond, Max: 2 * time.Second, Factor: 2, Jitter: 0.5}
	f.o.SetPolicy(policy)

	retriesBefore, err := metrics.GetMetricValue(metrics.LookupRetries, map[string]string{"stage": "resolving"})
	require.NoError(t, err)

	type outcome struct {
		result models.LookupResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.o.Handle(context.Background(), models.NewAddressDescriptor("1234 Market St"))
		done <- outcome{res, err}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1), "lookup should be sleeping before its retry")
	clock.Advance(2 * time.Second)

	select {
	case got := <-done:
		require.NoError(t, got.err)
		assert.Equal(t, "A", got.result.Facility.ID)
	case <-ctx.Done():
		t.Fatal("lookup did not finish after the backoff elapsed")
	}
	assert.Equal(t, int32(2), g.calls.Load())

	retriesAfter, err := metrics.GetMetricValue(metrics.LookupRetries, map[string]string{"stage": "resolving"})
	require.NoError(t, err)
	assert.Equal(t, retriesBefore+1, retriesAfter)
}

func TestHandleTransientFailureExhaustsRetries(t *testing.T) {
	r := &stubRouter{results: []routeResult{{err: models.RoutingFailed("unreachable", true, errors.New("503"))}}}
	f := newFixture(nil, r)

	_, err := f.o.Handle(context.Background(), models.NewCoordinateDescriptor(39.9526, -75.1652))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrRoutingFailed))
	assert.True(t, models.IsTransient(err))
	assert.Equal(t, int32(3), r.calls.Load(), "one call plus two retries")
}

func TestHandleDefinitiveRoutingFailure(t *testing.T) {
	r := &stubRouter{results: []routeResult{{err: models.RoutingFailed("Sorry, no walking route could be found to 13th Street.", false, nil)}}}
	f := newFixture(nil, r)

	_, err := f.o.Handle(context.Background(), models.NewAddressDescriptor("1234 Market St"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrRoutingFailed))
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestHandlePerCallTimeout(t *testing.T) {
	g := &stubGeocoder{block: true}
	f := newFixture(g, nil)
	policy := testPolicy()
	policy.MaxRetries = 0
	policy.GeocodeTimeout = 20 * time.Millisecond
	f.o.SetPolicy(policy)

	_, err := f.o.Handle(context.Background(), models.NewAddressDescriptor("1234 Market St"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrGeocodeFailed), "a timeout is reported as the stage's failure, got %v", err)
	assert.True(t, models.IsTransient(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestHandleCallerCancellation(t *testing.T) {
	g := &stubGeocoder{block: true}
	f := newFixture(g, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := f.o.Handle(ctx, models.NewAddressDescriptor("1234 Market St"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUpstreamUnavailable), "got %v", err)
	assert.Equal(t, int32(1), g.calls.Load())
	assert.Equal(t, int32(0), f.router.calls.Load())
}

func TestHandleTooFarToWalk(t *testing.T) {
	f := newFixture(nil, nil)

	_, err := f.o.Handle(context.Background(), models.NewCoordinateDescriptor(-33.86, 151.21))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNoFacilityFound))
	lerr, _ := models.AsLookupError(err)
	assert.Equal(t, "Sorry, (-33.86, 151.21) is too far from any stations to walk. Please try again.", lerr.Message)
	assert.Equal(t, int32(0), f.router.calls.Load())
}

func TestHandleNoFacilities(t *testing.T) {
	f := newFixture(nil, nil, []models.Facility{}...)
	f.locator.next = newFacilityIndex()

	_, err := f.o.Handle(context.Background(), models.NewCoordinateDescriptor(39.9526, -75.1652))
	assert.True(t, errors.Is(err, models.ErrNoFacilityFound))
}

func TestHandleAlreadyAtStation(t *testing.T) {
	r := &stubRouter{results: []routeResult{{steps: nil}}}
	f := newFixture(nil, r)

	got, err := f.o.Handle(context.Background(), models.NewCoordinateDescriptor(stationA.Latitude, stationA.Longitude))
	require.NoError(t, err)
	assert.NotNil(t, got.Directions)
	assert.Empty(t, got.Directions)
}

// Valid coordinates never fail as InvalidInput, whatever else happens.
func TestHandleValidCoordinatesAreNeverInvalidInput(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	f := newFixture(nil, nil)

	for range 200 {
		lat := rng.Float64()*180 - 90
		lon := rng.Float64()*360 - 180
		_, err := f.o.Handle(context.Background(), models.NewCoordinateDescriptor(lat, lon))
		if err == nil {
			continue
		}
		assert.False(t, errors.Is(err, models.ErrInvalidInput), "(%v, %v) rejected as invalid: %v", lat, lon, err)
		assert.True(t, errors.Is(err, models.ErrNoFacilityFound), "unexpected failure for (%v, %v): %v", lat, lon, err)
	}
}

func TestHandleConcurrentWithPolicyUpdates(t *testing.T) {
	f := newFixture(nil, nil)

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%4 == 0 {
				p := testPolicy()
				p.MaxRetries = i % 3
				f.o.SetPolicy(p)
				return
			}
			got, err := f.o.Handle(context.Background(), models.NewAddressDescriptor("1234 Market St"))
			if assert.NoError(t, err) {
				assert.Equal(t, "A", got.Facility.ID)
			}
		}()
	}
	wg.Wait()
}

func TestPolicyFromSettings(t *testing.T) {
	s := config.Defaults()
	p := PolicyFromSettings(s)

	assert.Equal(t, 2, p.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, p.Backoff.Base)
	assert.Equal(t, 2*time.Second, p.Backoff.Max)
	assert.Equal(t, 5*time.Second, p.GeocodeTimeout)
	assert.Equal(t, 5*time.Second, p.RouteTimeout)
	assert.Equal(t, 71000.0, p.MaxWalkMeters)
}

func TestStageString(t *testing.T) {
	for stage, want := range map[Stage]string{
		StageReceived: "received", StageValidating: "validating", StageResolving: "resolving",
		StageLocating: "locating", StageRouting: "routing", StageCompleted: "completed", StageFailed: "failed",
	} {
		assert.Equal(t, want, stage.String())
	}
}
