// Package lookup turns a location descriptor into the nearest station and
// walking directions to it.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jonboulle/clockwork"
	"stationwalk.onebusaway.org/internal/config"
	"stationwalk.onebusaway.org/internal/facility"
	"stationwalk.onebusaway.org/internal/geocoder"
	"stationwalk.onebusaway.org/internal/metrics"
	"stationwalk.onebusaway.org/internal/models"
	"stationwalk.onebusaway.org/internal/report"
	"stationwalk.onebusaway.org/internal/router"
	"stationwalk.onebusaway.org/internal/utils"
)

const (
	msgTooFar              = "Sorry, %s is too far from any stations to walk. Please try again."
	msgGeocoderUnavailable = "The geocoding service did not respond in time. Please try again later."
	msgRouterUnavailable   = "The routing service did not respond in time. Please try again later."
)

// Locator finds the facility nearest a point. *facility.Index implements it.
type Locator interface {
	Locate(p models.ResolvedLocation) (facility.Match, error)
}

// Policy holds the tunables of a lookup. It is replaced as a whole when the
// configuration is refreshed.
type Policy struct {
	// MaxRetries is how many times a transient collaborator failure is retried.
	MaxRetries     int
	Backoff        config.Backoff
	GeocodeTimeout time.Duration
	RouteTimeout   time.Duration
	// MaxWalkMeters rejects origins farther than this from the nearest
	// facility; 0 disables the check.
	MaxWalkMeters float64
}

// PolicyFromSettings derives a Policy from the configuration document.
func PolicyFromSettings(s config.Settings) Policy {
	return Policy{
		MaxRetries: s.Lookup.MaxRetries,
		Backoff: config.Backoff{
			Base:   s.Lookup.BackoffBase.Std(),
			Max:    s.Lookup.BackoffMax.Std(),
			Factor: config.BACKOFF_FACTOR,
			Jitter: config.JITTER_FACTOR,
		},
		GeocodeTimeout: s.Geocoder.Timeout.Std(),
		RouteTimeout:   s.Router.Timeout.Std(),
		MaxWalkMeters:  s.Lookup.MaxWalkMeters,
	}
}

// Orchestrator runs lookups. It keeps no per-request state and is safe for
// concurrent use; the collaborators must be as well.
type Orchestrator struct {
	Geocoder   geocoder.Geocoder
	Facilities Locator
	Router     router.Router
	Logger     *slog.Logger
	Clock      clockwork.Clock

	policy atomic.Pointer[Policy]
}

func NewOrchestrator(g geocoder.Geocoder, facilities Locator, r router.Router, policy Policy, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		Geocoder:   g,
		Facilities: facilities,
		Router:     r,
		Logger:     logger,
		Clock:      clockwork.NewRealClock(),
	}
	o.SetPolicy(policy)
	return o
}

// SetPolicy replaces the policy for lookups started afterwards.
func (o *Orchestrator) SetPolicy(p Policy) {
	o.policy.Store(&p)
}

func (o *Orchestrator) Policy() Policy {
	return *o.policy.Load()
}

// run tracks the stage of one lookup for logging and metrics.
type run struct {
	o          *Orchestrator
	logger     *slog.Logger
	stage      Stage
	stageStart time.Time
}

func (r *run) enter(next Stage) {
	now := r.o.Clock.Now()
	if r.stage != StageReceived {
		metrics.LookupStageDuration.WithLabelValues(r.stage.String()).Observe(now.Sub(r.stageStart).Seconds())
	}
	r.logger.Debug("Lookup stage", "from", r.stage.String(), "to", next.String())
	r.stage = next
	r.stageStart = now
}

// Handle runs one lookup to completion. It returns either a full result or
// a *models.LookupError, never a partial result.
func (o *Orchestrator) Handle(ctx context.Context, d models.LocationDescriptor) (models.LookupResult, error) {
	r := &run{o: o, logger: utils.LoggerFromContext(ctx, o.Logger), stage: StageReceived, stageStart: o.Clock.Now()}
	policy := o.Policy()

	result, err := o.handle(ctx, r, policy, d)
	if err != nil {
		failed := r.stage
		r.enter(StageFailed)
		o.recordFailure(ctx, r.logger, failed, d, err)
		return models.LookupResult{}, err
	}
	r.enter(StageCompleted)
	metrics.LookupsTotal.WithLabelValues("ok").Inc()
	return result, nil
}

func (o *Orchestrator) handle(ctx context.Context, r *run, policy Policy, d models.LocationDescriptor) (models.LookupResult, error) {
	r.enter(StageValidating)
	origin, address, err := validate(d)
	if err != nil {
		return models.LookupResult{}, err
	}

	if d.Kind == models.LocationKindAddress {
		r.enter(StageResolving)
		origin, err = withRetry(ctx, o, r.logger, policy, StageResolving, policy.GeocodeTimeout,
			func(ctx context.Context) (models.ResolvedLocation, error) {
				return o.Geocoder.Resolve(ctx, address)
			})
		if err != nil {
			return models.LookupResult{}, err
		}
	}

	r.enter(StageLocating)
	match, err := o.Facilities.Locate(origin)
	if err != nil {
		return models.LookupResult{}, err
	}
	if policy.MaxWalkMeters > 0 && match.DistanceMeters > policy.MaxWalkMeters {
		return models.LookupResult{}, models.NoFacilityFound(fmt.Sprintf(msgTooFar, d.Origin()))
	}
	r.logger.Debug("Nearest facility", "facility_id", match.Facility.ID, "distance_meters", match.DistanceMeters)

	r.enter(StageRouting)
	steps, err := withRetry(ctx, o, r.logger, policy, StageRouting, policy.RouteTimeout,
		func(ctx context.Context) ([]models.DirectionStep, error) {
			return o.Router.Route(ctx, origin, match.Facility)
		})
	if err != nil {
		return models.LookupResult{}, err
	}
	if steps == nil {
		steps = []models.DirectionStep{}
	}

	return models.LookupResult{Facility: match.Facility, Directions: steps}, nil
}

// withRetry calls fn under a per-call timeout, retrying transient failures
// with backoff. Cancellation of ctx itself ends the lookup as
// UpstreamUnavailable.
func withRetry[T any](ctx context.Context, o *Orchestrator, logger *slog.Logger, policy Policy, stage Stage, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			metrics.LookupRetries.WithLabelValues(stage.String()).Inc()
			if err := policy.Backoff.Sleep(ctx, o.Clock, attempt); err != nil {
				return zero, models.UpstreamUnavailable(err)
			}
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		v, err := fn(callCtx)
		cancel()
		if err == nil {
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, models.UpstreamUnavailable(ctxErr)
		}

		err = stageError(stage, err)
		if !models.IsTransient(err) || attempt >= policy.MaxRetries {
			return zero, err
		}
		logger.Debug("Retrying after transient failure", "stage", stage.String(), "attempt", attempt+1, "error", err)
	}
}

// stageError makes sure a collaborator failure is a LookupError of the
// stage's kind. Anything else, including a per-call timeout, is transient.
func stageError(stage Stage, err error) error {
	if _, ok := models.AsLookupError(err); ok {
		return err
	}
	if stage == StageResolving {
		return models.GeocodeFailed(msgGeocoderUnavailable, true, err)
	}
	return models.RoutingFailed(msgRouterUnavailable, true, err)
}

// recordFailure counts a failed lookup and reports the ones that point at
// a fault rather than at the user's input.
func (o *Orchestrator) recordFailure(ctx context.Context, logger *slog.Logger, stage Stage, d models.LocationDescriptor, err error) {
	kind := "unknown"
	lerr, ok := models.AsLookupError(err)
	if ok {
		kind = lerr.Kind.String()
	}
	metrics.LookupsTotal.WithLabelValues(kind).Inc()

	switch {
	case ok && (lerr.Kind == models.KindInvalidInput || lerr.Kind == models.KindNoFacilityFound):
		logger.Info("Lookup rejected", "stage", stage.String(), "kind", kind, "message", lerr.Message)
		return
	case errors.Is(err, context.Canceled):
		logger.Info("Lookup cancelled by caller", "stage", stage.String())
		return
	case ok && !lerr.Transient:
		logger.Info("Lookup failed", "stage", stage.String(), "kind", kind, "error", err)
		return
	}

	logger.Error("Lookup failed", "stage", stage.String(), "kind", kind, "error", err)
	report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
		ExtraContext: map[string]interface{}{
			"request_id": utils.RequestIDFromContext(ctx),
		},
		Tags: map[string]string{
			"stage":         stage.String(),
			"kind":          kind,
			"location_type": string(d.Kind),
		},
		Fingerprint: []string{"lookup", stage.String(), kind},
		Level:       sentry.LevelWarning,
	})
}
