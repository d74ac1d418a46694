package app

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"stationwalk.onebusaway.org/internal/middleware"
)

// Routes registers the endpoints and wraps them in the middleware chain.
//
//   - POST /api: station lookup
//   - GET /v1/healthcheck: readiness, 500 until facilities are loaded
//   - GET /metrics: Prometheus exposition, gathered every 10 seconds
//
// Outermost first, the chain is RequestID, SecurityHeaders, CORS and
// SentryMiddleware, so every response, errors and preflights included,
// carries a request id and the security headers.
func (app *Application) Routes(ctx context.Context) http.Handler {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(app.notFoundResponse)
	router.MethodNotAllowed = http.HandlerFunc(app.methodNotAllowedResponse)

	router.HandlerFunc(http.MethodPost, "/api", app.lookupHandler)
	router.HandlerFunc(http.MethodGet, "/v1/healthcheck", app.healthcheckHandler)
	router.Handler(http.MethodGet, "/metrics", middleware.NewCachedPromHandler(ctx, prometheus.DefaultGatherer, 10*time.Second))

	handler := middleware.SentryMiddleware(router)
	handler = middleware.CORS(app.corsOrigin)(handler)
	handler = middleware.SecurityHeaders(handler)
	return middleware.RequestID(app.Logger)(handler)
}
