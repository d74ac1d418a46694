package facility

import (
	"cmp"
	"slices"
	"sync/atomic"

	"stationwalk.onebusaway.org/internal/models"
)

// DefaultTieEpsilonMeters is the distance under which two facilities count
// as equally near. Ties go to the lexicographically smaller id.
const DefaultTieEpsilonMeters = 0.01

// Match is a facility together with its distance from the query point.
type Match struct {
	Facility       models.Facility `json:"facility"`
	DistanceMeters float64         `json:"distance_meters"`
}

// Index answers nearest-facility queries against the current snapshot.
// Readers never block: a refresh publishes a whole new snapshot with Swap.
type Index struct {
	TieEpsilonMeters float64

	snapshot atomic.Pointer[Snapshot]
}

func NewIndex(tieEpsilonMeters float64) *Index {
	if tieEpsilonMeters < 0 {
		tieEpsilonMeters = DefaultTieEpsilonMeters
	}
	return &Index{TieEpsilonMeters: tieEpsilonMeters}
}

// Swap publishes s and returns the snapshot it replaced.
func (ix *Index) Swap(s *Snapshot) *Snapshot {
	return ix.snapshot.Swap(s)
}

// Snapshot returns the current snapshot, or nil before the first load.
func (ix *Index) Snapshot() *Snapshot {
	return ix.snapshot.Load()
}

// Len is the number of facilities in the current snapshot.
func (ix *Index) Len() int {
	return ix.Snapshot().Len()
}

// Nearest returns the facility closest to p by great-circle distance.
// It fails with NoFacilityFound only when there are no facilities.
func (ix *Index) Nearest(p models.ResolvedLocation) (models.Facility, error) {
	m, err := ix.Locate(p)
	if err != nil {
		return models.Facility{}, err
	}
	return m.Facility, nil
}

// Locate is Nearest plus the distance to the chosen facility.
func (ix *Index) Locate(p models.ResolvedLocation) (Match, error) {
	if !p.Valid() {
		return Match{}, models.InvalidInput("Location must be a valid coordinate")
	}
	s := ix.Snapshot()
	if s.Len() == 0 {
		return Match{}, models.NoFacilityFound("")
	}

	less := func(a, b int) bool { return s.facilities[a].ID < s.facilities[b].ID }
	i, dist, ok := s.grid.Nearest(p.Latitude, p.Longitude, ix.TieEpsilonMeters, less)
	if !ok {
		return Match{}, models.NoFacilityFound("")
	}
	return Match{Facility: s.facilities[i], DistanceMeters: dist}, nil
}

// NearestN returns up to n facilities ordered by distance from p, with the
// same tie-break as Nearest.
func (ix *Index) NearestN(p models.ResolvedLocation, n int) []Match {
	s := ix.Snapshot()
	if n <= 0 || s.Len() == 0 || !p.Valid() {
		return nil
	}

	matches := make([]Match, s.Len())
	for i, f := range s.facilities {
		matches[i] = Match{Facility: f, DistanceMeters: s.grid.DistanceTo(i, p.Latitude, p.Longitude)}
	}
	eps := ix.TieEpsilonMeters
	slices.SortFunc(matches, func(a, b Match) int {
		if d := a.DistanceMeters - b.DistanceMeters; d > eps || d < -eps {
			return cmp.Compare(a.DistanceMeters, b.DistanceMeters)
		}
		return cmp.Compare(a.Facility.ID, b.Facility.ID)
	})
	if n < len(matches) {
		matches = matches[:n]
	}
	return matches
}
