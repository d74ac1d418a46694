package facility

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jonboulle/clockwork"
	"stationwalk.onebusaway.org/internal/metrics"
	"stationwalk.onebusaway.org/internal/report"
	"stationwalk.onebusaway.org/internal/utils"
)

// ErrEmptySource is returned when a source yields no usable facility.
var ErrEmptySource = errors.New("source returned no usable facilities")

// Refresher loads facilities from a Source and publishes them to an Index,
// once on demand and then on every tick of Interval. A failed load keeps the
// previously published snapshot.
type Refresher struct {
	Index    *Index
	Source   Source
	Interval time.Duration
	Logger   *slog.Logger
	Clock    clockwork.Clock
}

func NewRefresher(index *Index, source Source, interval time.Duration, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		Index:    index,
		Source:   source,
		Interval: interval,
		Logger:   logger,
		Clock:    clockwork.NewRealClock(),
	}
}

// Load fetches, sanitizes and publishes one snapshot.
func (r *Refresher) Load(ctx context.Context) error {
	name := r.Source.Name()
	start := r.Clock.Now()

	rows, err := r.Source.Load(ctx)
	if err != nil {
		return r.fail(fmt.Errorf("failed to load facilities from %s: %w", name, err))
	}
	facilities := Sanitize(name, rows, r.Logger)
	if len(facilities) == 0 {
		return r.fail(fmt.Errorf("%s: %w", name, ErrEmptySource))
	}

	snapshot := NewSnapshot(name, facilities, r.Clock.Now())
	previous := r.Index.Swap(snapshot)

	metrics.FacilityCount.WithLabelValues(name).Set(float64(snapshot.Len()))
	metrics.FacilitySnapshotTimestamp.WithLabelValues(name).Set(float64(snapshot.LoadedAt.Unix()))
	metrics.FacilitySnapshotAge.WithLabelValues(name).Set(0)

	coverage, _ := snapshot.BoundingBox()
	r.Logger.Info("Published facility snapshot",
		"source", name,
		"coverage", coverage.ViewBox(),
		"facilities", snapshot.Len(),
		"skipped", len(rows)-len(facilities),
		"previous", previous.Len(),
		"duration", r.Clock.Since(start))
	return nil
}

func (r *Refresher) fail(err error) error {
	name := r.Source.Name()
	metrics.FacilityRefreshFailures.WithLabelValues(name).Inc()
	report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
		Tags: utils.MakeMap("source", name),
		ExtraContext: map[string]interface{}{
			"published_facilities": r.Index.Len(),
		},
		Level: sentry.LevelError,
	})
	r.Logger.Error("Failed to refresh facilities", "source", name, "kept", r.Index.Len(), "error", err)
	return err
}

// Run reloads on every Interval until ctx is cancelled. It does not perform
// an initial load; call Load first.
func (r *Refresher) Run(ctx context.Context) {
	if r.Interval <= 0 {
		return
	}
	ticker := r.Clock.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("Stopping facility refresh routine")
			return
		case <-ticker.Chan():
			_ = r.Load(ctx)
		}
	}
}
