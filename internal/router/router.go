// Package router produces turn-by-turn walking directions from an origin
// to a facility.
package router

import (
	"context"

	"stationwalk.onebusaway.org/internal/geo"
	"stationwalk.onebusaway.org/internal/models"
)

// Router computes a walking route to a facility.
//
// The route ends at the facility's entrance when it has one. Steps are in
// traversal order and their instructions are plain text. An origin already
// at the destination yields an empty, non-nil slice. Failures are
// *models.LookupError of kind RoutingFailed.
type Router interface {
	Route(ctx context.Context, from models.ResolvedLocation, to models.Facility) ([]models.DirectionStep, error)
}

// DefaultArrivalThresholdMeters is how close an origin must be to the
// destination to count as already there.
const DefaultArrivalThresholdMeters = 10.0

const (
	msgNoRoute     = "Sorry, no walking route could be found to %s."
	msgUnreachable = "The routing service is unreachable. Please try again later."
	msgRejected    = "The routing service could not plan a walk from this location."
)

// arrived reports whether from is within threshold meters of to.
func arrived(from, to models.ResolvedLocation, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultArrivalThresholdMeters
	}
	return geo.Distance(from, to) <= threshold
}
