package lookup

import (
	"fmt"
	"math"
	"strings"

	"stationwalk.onebusaway.org/internal/models"
)

const (
	msgAddressRequired     = "Address must be provided"
	msgCoordinatesRequired = "Latitude and longitude must be provided"
	msgBothProvided        = "Only one of address or latitude/longitude may be provided"
	msgUnknownKind         = "location_type must be either 'address' or 'coordinates'"
)

func rangeMessage(name string, min, max float64) string {
	return fmt.Sprintf("%s must be a valid number between %g and %g", name, min, max)
}

func inRange(v, min, max float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= min && v <= max
}

func hasAddress(d models.LocationDescriptor) bool {
	return d.Address != nil && strings.TrimSpace(*d.Address) != ""
}

// validate checks d before any collaborator is called. For an address it
// returns the trimmed text to geocode; for coordinates it returns the
// location to use directly.
func validate(d models.LocationDescriptor) (models.ResolvedLocation, string, error) {
	switch d.Kind {
	case models.LocationKindAddress:
		if d.Latitude != nil || d.Longitude != nil {
			return models.ResolvedLocation{}, "", models.InvalidInput(msgBothProvided)
		}
		if !hasAddress(d) {
			return models.ResolvedLocation{}, "", models.InvalidInput(msgAddressRequired)
		}
		return models.ResolvedLocation{}, strings.TrimSpace(*d.Address), nil

	case models.LocationKindCoordinates:
		if hasAddress(d) {
			return models.ResolvedLocation{}, "", models.InvalidInput(msgBothProvided)
		}
		if d.Latitude == nil || d.Longitude == nil {
			return models.ResolvedLocation{}, "", models.InvalidInput(msgCoordinatesRequired)
		}
		if !inRange(*d.Latitude, -90, 90) {
			return models.ResolvedLocation{}, "", models.InvalidInput(rangeMessage("Latitude", -90, 90))
		}
		if !inRange(*d.Longitude, -180, 180) {
			return models.ResolvedLocation{}, "", models.InvalidInput(rangeMessage("Longitude", -180, 180))
		}
		return models.ResolvedLocation{Latitude: *d.Latitude, Longitude: *d.Longitude}, "", nil

	default:
		return models.ResolvedLocation{}, "", models.InvalidInput(msgUnknownKind)
	}
}
