package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/getsentry/sentry-go"
	"stationwalk.onebusaway.org/internal/models"
	"stationwalk.onebusaway.org/internal/report"
	"stationwalk.onebusaway.org/internal/utils"
)

const maxRequestBytes = 1 << 20

const (
	msgMalformedBody = "Request body must be a single JSON object with location_type and either address or latitude/longitude"
	msgBodyTooLarge  = "Request body must not be larger than 1MB"
	msgNotFound      = "The requested URL was not found on the server"
	msgNotAllowed    = "Method Not Allowed"
	msgInternal      = "The server encountered a problem and could not process your request"
)

// HealthStatus is the body of GET /v1/healthcheck. Ready is false, and the
// status 500, until a facility snapshot with at least one facility has
// been published.
type HealthStatus struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
	Version     string `json:"version"`
	Facilities  int    `json:"facilities"`
	Ready       bool   `json:"ready"`
}

func (app *Application) healthcheckHandler(w http.ResponseWriter, r *http.Request) {
	count := app.Facilities.Len()
	ready := count > 0

	status := HealthStatus{
		Status:      "available",
		Environment: app.Config.Env,
		Version:     app.Version,
		Facilities:  count,
		Ready:       ready,
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusInternalServerError
	}
	app.writeJSON(w, r, code, status)
}

// lookupHandler serves POST /api: one descriptor in, one station with
// walking directions (or one error detail) out.
func (app *Application) lookupHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req lookupRequest
	if err := dec.Decode(&req); err != nil {
		app.badRequest(w, r, err)
		return
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		app.badRequest(w, r, fmt.Errorf("body has trailing data"))
		return
	}

	descriptor, err := req.descriptor()
	if err != nil {
		app.badRequest(w, r, err)
		return
	}

	result, err := app.Lookup.Handle(r.Context(), descriptor)
	if err != nil {
		app.lookupError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, newLookupResponse(result))
}

// badRequest answers a body that could not be decoded. A coordinate that
// is not a number gets the same message as an out-of-range one.
func (app *Application) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytes *http.MaxBytesError
	var coordErr *coordinateError
	switch {
	case errors.As(err, &maxBytes):
		app.errorResponse(w, r, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
	case errors.As(err, &coordErr) && coordErr.field == "latitude":
		app.errorResponse(w, r, http.StatusBadRequest, "Latitude must be a valid number between -90 and 90")
	case errors.As(err, &coordErr) && coordErr.field == "longitude":
		app.errorResponse(w, r, http.StatusBadRequest, "Longitude must be a valid number between -180 and 180")
	default:
		utils.LoggerFromContext(r.Context(), app.Logger).Info("Malformed lookup request", "error", err)
		app.errorResponse(w, r, http.StatusBadRequest, msgMalformedBody)
	}
}

// statusFor maps a lookup failure to its HTTP status. Transient upstream
// failures that survived every retry are a bad gateway, not the user's
// fault.
func statusFor(lerr *models.LookupError) int {
	switch lerr.Kind {
	case models.KindInvalidInput:
		return http.StatusBadRequest
	case models.KindNoFacilityFound:
		return http.StatusNotFound
	case models.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case models.KindGeocodeFailed, models.KindRoutingFailed:
		if lerr.Transient {
			return http.StatusBadGateway
		}
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (app *Application) lookupError(w http.ResponseWriter, r *http.Request, err error) {
	lerr, ok := models.AsLookupError(err)
	if !ok {
		app.serverError(w, r, err)
		return
	}
	app.errorResponse(w, r, statusFor(lerr), lerr.Message)
}

func (app *Application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	utils.LoggerFromContext(r.Context(), app.Logger).Error("Unexpected error", "method", r.Method, "path", r.URL.Path, "error", err)
	report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
		Tags: utils.MakeMap("path", r.URL.Path),
		ExtraContext: map[string]interface{}{
			"request_id": utils.RequestIDFromContext(r.Context()),
		},
		Level: sentry.LevelError,
	})
	app.errorResponse(w, r, http.StatusInternalServerError, msgInternal)
}

func (app *Application) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusNotFound, msgNotFound)
}

func (app *Application) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusMethodNotAllowed, msgNotAllowed)
}

func (app *Application) errorResponse(w http.ResponseWriter, r *http.Request, status int, detail string) {
	app.writeJSON(w, r, status, errorResponse{Detail: detail})
}

func (app *Application) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		utils.LoggerFromContext(r.Context(), app.Logger).Error("Failed to encode response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
