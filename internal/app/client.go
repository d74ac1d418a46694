package app

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"stationwalk.onebusaway.org/internal/metrics"
)

// latencyTrackingRoundTripper is a custom HTTP RoundTripper that wraps another RoundTripper
// to measure and record the latency (duration) of each outgoing HTTP request.
//
// Every upstream the service talks to (geocoder, router, facility data,
// remote config) gets its own client so the metric can be labeled by
// upstream name instead of by raw URL.
type latencyTrackingRoundTripper struct {
	upstream string
	next     http.RoundTripper
}

// RoundTrip implements the http.RoundTripper interface.
// It records the time before and after delegating to the next RoundTripper,
// then exports the observed duration to Prometheus under metrics.OutgoingLatency.
func (rt *latencyTrackingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := rt.next.RoundTrip(req)
	duration := time.Since(start).Seconds()

	// Default to "error" if the request failed or response is nil
	status := "error"
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}

	metrics.OutgoingLatency.WithLabelValues(
		rt.upstream,
		req.Method,
		status,
	).Observe(duration)

	return resp, err
}

// NewPooledClient returns an instrumented HTTP client for one upstream.
//
// The transport keeps idle connections around between requests so the
// geocoder and router calls made for every lookup skip the TCP/TLS
// handshake. The client has no overall Timeout: per-call deadlines come
// from the caller's context, which the lookup orchestrator sets from its
// configured geocoder and router timeouts. timeout is a last-resort cap for
// callers that do not set one.
func NewPooledClient(upstream string, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	return &http.Client{
		Transport: &latencyTrackingRoundTripper{upstream: upstream, next: transport},
		Timeout:   timeout,
	}
}
