package app

import (
	"encoding/json"
	"strconv"
	"strings"

	"stationwalk.onebusaway.org/internal/models"
)

// lookupRequest is the body of POST /api. Absent fields stay nil so the
// orchestrator can tell a missing coordinate from a zero one. Coordinates
// may arrive as JSON numbers or as numeric strings.
type lookupRequest struct {
	LocationType string          `json:"location_type"`
	Address      *string         `json:"address,omitempty"`
	Latitude     json.RawMessage `json:"latitude,omitempty"`
	Longitude    json.RawMessage `json:"longitude,omitempty"`
}

// coordinateError names a latitude or longitude that is not a number.
type coordinateError struct {
	field string
}

func (e *coordinateError) Error() string {
	return e.field + " is not a number"
}

func parseCoordinate(field string, raw json.RawMessage) (*float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err == nil {
		return &v, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, &coordinateError{field: field}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return nil, &coordinateError{field: field}
	}
	return &v, nil
}

func (req lookupRequest) descriptor() (models.LocationDescriptor, error) {
	lat, err := parseCoordinate("latitude", req.Latitude)
	if err != nil {
		return models.LocationDescriptor{}, err
	}
	lon, err := parseCoordinate("longitude", req.Longitude)
	if err != nil {
		return models.LocationDescriptor{}, err
	}
	return models.LocationDescriptor{
		Kind:      models.LocationKind(req.LocationType),
		Address:   req.Address,
		Latitude:  lat,
		Longitude: lon,
	}, nil
}

// stationFeature renders a facility as a GeoJSON Feature.
type stationFeature struct {
	Type       string            `json:"type"`
	Geometry   pointGeometry     `json:"geometry"`
	Properties stationProperties `json:"properties"`
}

type pointGeometry struct {
	Type string `json:"type"`
	// Coordinates is [longitude, latitude], GeoJSON order.
	Coordinates [2]float64 `json:"coordinates"`
}

type stationProperties struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
}

type lookupResponse struct {
	Station    stationFeature         `json:"station"`
	Directions []models.DirectionStep `json:"directions"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func newLookupResponse(result models.LookupResult) lookupResponse {
	f := result.Facility
	directions := result.Directions
	if directions == nil {
		directions = []models.DirectionStep{}
	}
	return lookupResponse{
		Station: stationFeature{
			Type: "Feature",
			Geometry: pointGeometry{
				Type:        "Point",
				Coordinates: [2]float64{f.Longitude, f.Latitude},
			},
			Properties: stationProperties{
				Name:    f.Name,
				Address: f.Address,
				City:    f.City,
				State:   f.Region,
				Zip:     f.PostalCode,
			},
		},
		Directions: directions,
	}
}
