package router

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"stationwalk.onebusaway.org/internal/models"
)

const maxResponseBytes = 4 << 20

// OSRMRouter asks an OSRM server's foot profile for a route.
type OSRMRouter struct {
	BaseURL                string
	Client                 *http.Client
	ArrivalThresholdMeters float64
	Logger                 *slog.Logger
}

func NewOSRMRouter(baseURL string, client *http.Client, logger *slog.Logger) *OSRMRouter {
	return &OSRMRouter{
		BaseURL:                strings.TrimRight(baseURL, "/"),
		Client:                 client,
		ArrivalThresholdMeters: DefaultArrivalThresholdMeters,
		Logger:                 logger,
	}
}

func (r *OSRMRouter) routeURL(from, to models.ResolvedLocation) string {
	return fmt.Sprintf("%s/route/v1/foot/%.6f,%.6f;%.6f,%.6f?steps=true&overview=false",
		r.BaseURL, from.Longitude, from.Latitude, to.Longitude, to.Latitude)
}

func (r *OSRMRouter) Route(ctx context.Context, from models.ResolvedLocation, to models.Facility) ([]models.DirectionStep, error) {
	dest := to.Destination()
	if arrived(from, dest, r.ArrivalThresholdMeters) {
		return []models.DirectionStep{}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.routeURL(from, dest), nil)
	if err != nil {
		return nil, models.RoutingFailed(msgUnreachable, false, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, models.RoutingFailed(msgUnreachable, true, fmt.Errorf("routing request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, models.RoutingFailed(msgUnreachable, true, fmt.Errorf("routing service returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, models.RoutingFailed(msgUnreachable, true, fmt.Errorf("failed to read routing response: %w", err))
	}

	steps, err := parseRouteResponse(body, resp.StatusCode, to.Name)
	if err != nil {
		return nil, err
	}
	if r.Logger != nil {
		r.Logger.Debug("Routed walk", "facility_id", to.ID, "steps", len(steps))
	}
	return steps, nil
}

// parseRouteResponse turns an OSRM route response into direction steps.
// OSRM reports "no route" as a 400 with a JSON code, so the body is
// inspected before the status.
func parseRouteResponse(body []byte, status int, facilityName string) ([]models.DirectionStep, error) {
	if !gjson.ValidBytes(body) {
		return nil, models.RoutingFailed(msgUnreachable, true, fmt.Errorf("routing service returned invalid JSON (status %d)", status))
	}
	result := gjson.ParseBytes(body)

	switch code := result.Get("code").String(); code {
	case "Ok":
	case "NoRoute", "NoSegment":
		return nil, models.RoutingFailed(fmt.Sprintf(msgNoRoute, displayName(facilityName)), false,
			fmt.Errorf("osrm %s: %s", code, result.Get("message").String()))
	default:
		return nil, models.RoutingFailed(msgRejected, false,
			fmt.Errorf("osrm returned code %q (status %d): %s", code, status, result.Get("message").String()))
	}

	route := result.Get("routes.0")
	if !route.Exists() {
		return nil, models.RoutingFailed(fmt.Sprintf(msgNoRoute, displayName(facilityName)), false, fmt.Errorf("osrm returned no routes"))
	}

	steps := []models.DirectionStep{}
	for _, leg := range route.Get("legs").Array() {
		for _, step := range leg.Get("steps").Array() {
			maneuver := step.Get("maneuver")
			instruction := maneuverInstruction(
				maneuver.Get("type").String(),
				maneuver.Get("modifier").String(),
				step.Get("name").String(),
				maneuver.Get("bearing_after").Float(),
				maneuver.Get("exit").Int(),
			)
			if instruction == "" {
				continue
			}
			steps = append(steps, models.DirectionStep{
				Instruction: instruction,
				Distance:    FormatDistance(step.Get("distance").Float()),
			})
		}
	}
	return steps, nil
}

func displayName(name string) string {
	if name == "" {
		return "the station"
	}
	return name
}
