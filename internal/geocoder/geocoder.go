// Package geocoder turns free-text addresses into coordinates.
package geocoder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"stationwalk.onebusaway.org/internal/geo"
	"stationwalk.onebusaway.org/internal/models"
)

// Geocoder resolves an address to a single best-matching location.
//
// Failures are *models.LookupError of kind GeocodeFailed. Transport
// problems are flagged Transient; "no match" answers are not. A Geocoder
// never retries on its own.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (models.ResolvedLocation, error)
}

const maxResponseBytes = 1 << 20

const (
	msgEmptyAddress = "Address must be provided"
	msgUnreachable  = "The geocoding service is unreachable. Please try again later."
	msgRejected     = "The geocoding service could not process this address."
)

func notFoundMessage(address string) string {
	return fmt.Sprintf("Sorry, no location was found for %q. Please check the address and try again.", address)
}

// NominatimGeocoder queries a Nominatim-compatible /search endpoint.
type NominatimGeocoder struct {
	BaseURL   string
	UserAgent string
	// Email is sent with each request as Nominatim's usage policy asks
	// heavy users to identify themselves.
	Email string
	// ViewBox, when set, restricts matches to the box.
	ViewBox *geo.BoundingBox
	Client  *http.Client
	Logger  *slog.Logger
}

// NewNominatimGeocoder returns a geocoder bounded to the default service area.
func NewNominatimGeocoder(baseURL, userAgent string, client *http.Client, logger *slog.Logger) *NominatimGeocoder {
	box := geo.ServiceArea
	return &NominatimGeocoder{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		UserAgent: userAgent,
		ViewBox:   &box,
		Client:    client,
		Logger:    logger,
	}
}

func (g *NominatimGeocoder) searchURL(address string) string {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "jsonv2")
	q.Set("limit", "1")
	if g.ViewBox != nil {
		q.Set("viewbox", g.ViewBox.ViewBox())
		q.Set("bounded", "1")
	}
	if g.Email != "" {
		q.Set("email", g.Email)
	}
	return g.BaseURL + "/search?" + q.Encode()
}

func (g *NominatimGeocoder) Resolve(ctx context.Context, address string) (models.ResolvedLocation, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return models.ResolvedLocation{}, models.GeocodeFailed(msgEmptyAddress, false, nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.searchURL(address), nil)
	if err != nil {
		return models.ResolvedLocation{}, models.GeocodeFailed(msgUnreachable, false, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if g.UserAgent != "" {
		req.Header.Set("User-Agent", g.UserAgent)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return models.ResolvedLocation{}, models.GeocodeFailed(msgUnreachable, true, fmt.Errorf("geocoding request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return models.ResolvedLocation{}, models.GeocodeFailed(msgUnreachable, true, fmt.Errorf("geocoding service returned status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return models.ResolvedLocation{}, models.GeocodeFailed(msgRejected, false, fmt.Errorf("geocoding service rejected the request with status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return models.ResolvedLocation{}, models.GeocodeFailed(msgUnreachable, true, fmt.Errorf("failed to read geocoding response: %w", err))
	}

	loc, err := parseSearchResponse(body, address)
	if err != nil {
		return models.ResolvedLocation{}, err
	}
	if g.Logger != nil {
		g.Logger.Debug("Geocoded address", "latitude", loc.Latitude, "longitude", loc.Longitude)
	}
	return loc, nil
}

// parseSearchResponse extracts the first match from a jsonv2 search result.
func parseSearchResponse(body []byte, address string) (models.ResolvedLocation, error) {
	if !gjson.ValidBytes(body) {
		return models.ResolvedLocation{}, models.GeocodeFailed(msgUnreachable, true, fmt.Errorf("geocoding service returned invalid JSON"))
	}
	result := gjson.ParseBytes(body)

	if msg := result.Get("error"); msg.Exists() {
		text := msg.String()
		if msg.IsObject() {
			text = msg.Get("message").String()
		}
		return models.ResolvedLocation{}, models.GeocodeFailed(msgRejected, false, fmt.Errorf("geocoding service error: %s", text))
	}
	if !result.IsArray() {
		return models.ResolvedLocation{}, models.GeocodeFailed(msgUnreachable, true, fmt.Errorf("unexpected geocoding response shape"))
	}
	if result.Get("#").Int() == 0 {
		return models.ResolvedLocation{}, models.GeocodeFailed(notFoundMessage(address), false, nil)
	}

	first := result.Get("0")
	lat, lon := first.Get("lat"), first.Get("lon")
	if !lat.Exists() || !lon.Exists() {
		return models.ResolvedLocation{}, models.GeocodeFailed(notFoundMessage(address), false, fmt.Errorf("geocoding match has no coordinate"))
	}
	loc := models.ResolvedLocation{Latitude: lat.Float(), Longitude: lon.Float()}
	if !loc.Valid() {
		return models.ResolvedLocation{}, models.GeocodeFailed(notFoundMessage(address), false, fmt.Errorf("geocoding match has an invalid coordinate %s", loc))
	}
	return loc, nil
}
