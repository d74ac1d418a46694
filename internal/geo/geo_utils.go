package geo

import (
	"fmt"
	"math"

	"github.com/golang/geo/s2"
	"stationwalk.onebusaway.org/internal/models"
)

// BoundingBox defines the corners of a lat/lon box
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// Contains checks whether the given latitude and longitude are within the bounding box
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Valid reports whether the corners are in range and correctly ordered.
func (b BoundingBox) Valid() bool {
	return IsValidLatLon(b.MinLat, b.MinLon) && IsValidLatLon(b.MaxLat, b.MaxLon) &&
		b.MinLat <= b.MaxLat && b.MinLon <= b.MaxLon
}

// ViewBox renders the box in the "left,top,right,bottom" order used by
// Nominatim's viewbox parameter.
func (b BoundingBox) ViewBox() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.MinLon, b.MaxLat, b.MaxLon, b.MinLat)
}

// ServiceArea is the SEPTA regional rail service box the geocoder is bounded to
// when no other box is configured.
var ServiceArea = BoundingBox{
	MinLat: 39.662903,
	MaxLat: 40.367891,
	MinLon: -75.794681,
	MaxLon: -74.659266,
}

// ComputeBoundingBox computes the bounding box of a set of facilities.
func ComputeBoundingBox(facilities []models.Facility) (BoundingBox, error) {
	if len(facilities) == 0 {
		return BoundingBox{}, fmt.Errorf("no facilities to compute bounding box")
	}

	minLat := math.MaxFloat64
	maxLat := -math.MaxFloat64
	minLon := math.MaxFloat64
	maxLon := -math.MaxFloat64

	for _, f := range facilities {
		if !IsValidLatLon(f.Latitude, f.Longitude) {
			continue
		}
		minLat = math.Min(minLat, f.Latitude)
		maxLat = math.Max(maxLat, f.Latitude)
		minLon = math.Min(minLon, f.Longitude)
		maxLon = math.Max(maxLon, f.Longitude)
	}

	if minLat == math.MaxFloat64 {
		return BoundingBox{}, fmt.Errorf("no valid latitude/longitude found in facilities")
	}

	return BoundingBox{
		MinLat: minLat,
		MaxLat: maxLat,
		MinLon: minLon,
		MaxLon: maxLon,
	}, nil
}

// IsValidLatLon returns true if the given latitude and longitude values are
// finite and fall within the valid geographic coordinate bounds.
//
// (0,0) is accepted: it is a real place and callers that want to reject
// placeholder coordinates must do so themselves.
func IsValidLatLon(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// earthRadiusInMeters represents the mean radius of the Earth in meters.
//
// This value (6,371,000 meters) is defined as the Earth's volumetric mean radius,
// which is commonly used for general geospatial calculations and spherical approximations.
//
// Reference: NASA Planetary Fact Sheet – Earth
// https://nssdc.gsfc.nasa.gov/planetary/factsheet/earthfact.html
const earthRadiusInMeters = 6371000

// HaversineDistance returns the great-circle distance in meters.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return angleToMeters(p1.Distance(p2).Radians())
}

// Distance is HaversineDistance for two resolved locations.
func Distance(a, b models.ResolvedLocation) float64 {
	return HaversineDistance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

func angleToMeters(radians float64) float64 {
	return radians * earthRadiusInMeters
}

// InitialBearing returns the forward azimuth from the first point to the
// second in degrees clockwise from north, normalized to [0, 360).
func InitialBearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

var compassPoints = [...]string{"north", "northeast", "east", "southeast", "south", "southwest", "west", "northwest"}

// Compass names the eight-point compass direction closest to bearing.
func Compass(bearing float64) string {
	b := math.Mod(math.Mod(bearing, 360)+360, 360)
	return compassPoints[int(math.Floor((b+22.5)/45))%8]
}
