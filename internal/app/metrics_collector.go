package app

import (
	"context"
	"time"

	"stationwalk.onebusaway.org/internal/metrics"
)

const metricsInterval = 30 * time.Second

// StartMetricsCollection updates the facility snapshot age gauge every 30
// seconds until ctx is done. A stalled refresher shows up as a growing age
// long before the data is noticeably stale.
func (app *Application) StartMetricsCollection(ctx context.Context) {
	ticker := app.Clock.NewTicker(metricsInterval)
	defer ticker.Stop()

	app.collectMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			app.collectMetrics()
		}
	}
}

func (app *Application) collectMetrics() {
	snapshot := app.Facilities.Snapshot()
	if snapshot == nil {
		return
	}
	age := app.Clock.Since(snapshot.LoadedAt).Seconds()
	metrics.FacilitySnapshotAge.WithLabelValues(snapshot.Source).Set(age)
}
