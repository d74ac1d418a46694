package models

import (
	"fmt"
	"math"
)

// LocationKind tags which variant of a LocationDescriptor the caller submitted.
type LocationKind string

const (
	LocationKindAddress     LocationKind = "address"
	LocationKindCoordinates LocationKind = "coordinates"
)

// LocationDescriptor is the immutable value built from one form submission.
//
// Exactly one variant is expected to be populated: Address for LocationKindAddress,
// or the Latitude/Longitude pair for LocationKindCoordinates. Pointers distinguish
// an absent field from a zero value, since (0,0) is a legitimate coordinate.
type LocationDescriptor struct {
	Kind      LocationKind
	Address   *string
	Latitude  *float64
	Longitude *float64
}

// NewAddressDescriptor returns a descriptor for a free-text address.
func NewAddressDescriptor(address string) LocationDescriptor {
	return LocationDescriptor{Kind: LocationKindAddress, Address: &address}
}

// NewCoordinateDescriptor returns a descriptor for a latitude/longitude pair.
func NewCoordinateDescriptor(lat, lon float64) LocationDescriptor {
	return LocationDescriptor{Kind: LocationKindCoordinates, Latitude: &lat, Longitude: &lon}
}

// Origin renders the descriptor the way a user typed it, for messages.
func (d LocationDescriptor) Origin() string {
	switch {
	case d.Kind == LocationKindAddress && d.Address != nil:
		return *d.Address
	case d.Latitude != nil && d.Longitude != nil:
		return fmt.Sprintf("(%g, %g)", *d.Latitude, *d.Longitude)
	default:
		return "the given location"
	}
}

// ResolvedLocation is a validated geographic point.
type ResolvedLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether both components are finite and inside geographic ranges.
func (l ResolvedLocation) Valid() bool {
	if math.IsNaN(l.Latitude) || math.IsInf(l.Latitude, 0) || math.IsNaN(l.Longitude) || math.IsInf(l.Longitude, 0) {
		return false
	}
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}

func (l ResolvedLocation) String() string {
	return fmt.Sprintf("%.6f,%.6f", l.Latitude, l.Longitude)
}
