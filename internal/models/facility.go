package models

// Facility is a transit station that a walk can end at.
//
// Facilities are reference data: a snapshot of them is loaded from a source
// (JSON, GTFS bundle or the stations table) and never mutated afterwards.
// Region and PostalCode serialize as "state" and "zip" to match the station
// records the data is usually exported from.
type Facility struct {
	ID         string            `json:"id"`
	Line       string            `json:"line,omitempty"`
	Name       string            `json:"name"`
	Address    string            `json:"address"`
	City       string            `json:"city"`
	Region     string            `json:"state"`
	PostalCode string            `json:"zip"`
	Latitude   float64           `json:"latitude"`
	Longitude  float64           `json:"longitude"`
	Entrance   *ResolvedLocation `json:"entrance,omitempty"`
}

// Location returns the facility's own coordinate.
func (f Facility) Location() ResolvedLocation {
	return ResolvedLocation{Latitude: f.Latitude, Longitude: f.Longitude}
}

// Destination is where a walk to this facility ends: its registered
// entrance when one is known, otherwise the facility coordinate.
func (f Facility) Destination() ResolvedLocation {
	if f.Entrance != nil && f.Entrance.Valid() {
		return *f.Entrance
	}
	return f.Location()
}

// DirectionStep is one maneuver of a walking route. Instruction is plain
// text; renderers must escape it.
type DirectionStep struct {
	Instruction string `json:"instruction"`
	Distance    string `json:"distance"`
}

// LookupResult is the successful outcome of a lookup. Directions may be
// empty when the origin already is the facility.
type LookupResult struct {
	Facility   Facility
	Directions []DirectionStep
}
