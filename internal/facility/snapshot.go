// Package facility holds the station set and answers nearest-station
// queries against it.
package facility

import (
	"log/slog"
	"strings"
	"time"

	"stationwalk.onebusaway.org/internal/geo"
	"stationwalk.onebusaway.org/internal/metrics"
	"stationwalk.onebusaway.org/internal/models"
)

// Snapshot is an immutable set of facilities with its spatial index.
// A Snapshot is never modified after NewSnapshot returns.
type Snapshot struct {
	Source   string
	LoadedAt time.Time

	facilities []models.Facility
	grid       *geo.Grid
}

// NewSnapshot indexes facilities. The slice is taken as is; run it through
// Sanitize first when it comes from an untrusted source.
func NewSnapshot(source string, facilities []models.Facility, loadedAt time.Time) *Snapshot {
	points := make([]geo.Point, len(facilities))
	for i, f := range facilities {
		points[i] = geo.Point{Lat: f.Latitude, Lon: f.Longitude}
	}
	return &Snapshot{
		Source:     source,
		LoadedAt:   loadedAt,
		facilities: facilities,
		grid:       geo.NewGrid(points),
	}
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.facilities)
}

// Facilities returns a copy of the snapshot's facilities.
func (s *Snapshot) Facilities() []models.Facility {
	if s == nil {
		return nil
	}
	out := make([]models.Facility, len(s.facilities))
	copy(out, s.facilities)
	return out
}

// BoundingBox covers every facility in the snapshot.
func (s *Snapshot) BoundingBox() (geo.BoundingBox, error) {
	return geo.ComputeBoundingBox(s.facilities)
}

// Sanitize drops facilities that cannot be served: a missing id or an
// invalid coordinate. Duplicate ids keep the first occurrence. Entrances
// with invalid coordinates are cleared rather than dropping the facility.
// Every skipped row is counted and logged under source.
func Sanitize(source string, facilities []models.Facility, logger *slog.Logger) []models.Facility {
	seen := make(map[string]struct{}, len(facilities))
	out := make([]models.Facility, 0, len(facilities))

	skip := func(f models.Facility, reason string) {
		metrics.FacilityRowsSkipped.WithLabelValues(source, reason).Inc()
		if logger != nil {
			logger.Warn("Skipping facility", "source", source, "facility_id", f.ID, "name", f.Name, "reason", reason)
		}
	}

	for _, f := range facilities {
		f.ID = strings.TrimSpace(f.ID)
		switch {
		case f.ID == "":
			skip(f, "missing_id")
			continue
		case !f.Location().Valid():
			skip(f, "invalid_coordinate")
			continue
		}
		if _, dup := seen[f.ID]; dup {
			skip(f, "duplicate_id")
			continue
		}
		seen[f.ID] = struct{}{}

		if f.Entrance != nil && !f.Entrance.Valid() {
			f.Entrance = nil
		}
		out = append(out, f)
	}
	return out
}
