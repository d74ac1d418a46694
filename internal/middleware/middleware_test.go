package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"stationwalk.onebusaway.org/internal/utils"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestID(t *testing.T) {
	var seenID string
	var seenLogger *slog.Logger
	logger := discardLogger()
	handler := RequestID(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = utils.RequestIDFromContext(r.Context())
		seenLogger = utils.LoggerFromContext(r.Context(), nil)
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("generates an id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		got := rr.Header().Get(RequestIDHeader)
		if _, err := uuid.Parse(got); err != nil {
			t.Fatalf("expected a uuid, got %q", got)
		}
		if seenID != got {
			t.Errorf("context id %q does not match header %q", seenID, got)
		}
		if seenLogger == nil || seenLogger == logger {
			t.Error("expected a request-scoped logger in the context")
		}
		if rr.Code != http.StatusTeapot {
			t.Errorf("status = %d", rr.Code)
		}
	})

	t.Run("keeps a valid incoming id", func(t *testing.T) {
		incoming := uuid.New().String()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, incoming)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if got := rr.Header().Get(RequestIDHeader); got != incoming {
			t.Errorf("expected %q, got %q", incoming, got)
		}
	})

	t.Run("replaces a malformed incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "<script>")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		got := rr.Header().Get(RequestIDHeader)
		if got == "<script>" {
			t.Fatal("malformed id was echoed")
		}
		if _, err := uuid.Parse(got); err != nil {
			t.Errorf("expected a uuid, got %q", got)
		}
	})
}

func TestCORS(t *testing.T) {
	origin := "https://stations.example.org"
	handler := CORS(func() string { return origin })(okHandler())

	tests := []struct {
		name        string
		method      string
		origin      string
		preflight   bool
		wantStatus  int
		wantAllowed string
	}{
		{"allowed origin", http.MethodPost, "https://stations.example.org", false, http.StatusOK, "https://stations.example.org"},
		{"other origin", http.MethodPost, "https://evil.example.com", false, http.StatusOK, ""},
		{"no origin", http.MethodGet, "", false, http.StatusOK, ""},
		{"preflight", http.MethodOptions, "https://stations.example.org", true, http.StatusNoContent, "https://stations.example.org"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllowed {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantAllowed)
			}
			if tt.preflight && !strings.Contains(rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPost) {
				t.Error("preflight must allow POST")
			}
		})
	}

	t.Run("wildcard follows configuration changes", func(t *testing.T) {
		origin = "*"
		defer func() { origin = "https://stations.example.org" }()
		req := httptest.NewRequest(http.MethodPost, "/api", nil)
		req.Header.Set("Origin", "https://anywhere.example.net")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("expected *, got %q", got)
		}
	})
}

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"Cache-Control":          "no-store",
		"Referrer-Policy":        "no-referrer",
	}
	for k, v := range want {
		if got := rr.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestCachedPromHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_cached_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := clockwork.NewFakeClock()
	h := newCachedPromHandler(ctx, reg, 10*time.Second, clock)

	scrape := func() string {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return rr.Body.String()
	}

	if body := scrape(); !strings.Contains(body, "test_cached_total 1") {
		t.Fatalf("live fallback missing counter:\n%s", body)
	}

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(10 * time.Second)
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.mu.RLock()
		ready := len(h.cache) > 0
		h.mu.RUnlock()
		if ready {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("cache was not filled after a tick")
		}
		time.Sleep(5 * time.Millisecond)
	}

	counter.Inc()
	if body := scrape(); !strings.Contains(body, "test_cached_total 1") {
		t.Errorf("expected the cached value until the next refresh:\n%s", body)
	}
}

type failingGatherer struct{}

func (failingGatherer) Gather() ([]*dto.MetricFamily, error) {
	return nil, errors.New("collector failed")
}

func TestCachedPromHandlerRefreshOutsideRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	empty := newCachedPromHandler(ctx, prometheus.NewRegistry(), time.Minute, clockwork.NewFakeClock())
	if err := empty.refresh(); err != nil {
		t.Fatalf("refresh of an empty registry failed: %v", err)
	}

	reg := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_refresh_gauge", Help: "test"})
	reg.MustRegister(gauge)
	gauge.Set(7)

	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	h := newCachedPromHandler(ctx, reg, time.Minute, clock)
	if err := h.refresh(); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "test_refresh_gauge 7") {
		t.Errorf("expected the refreshed gauge, got:\n%s", rr.Body.String())
	}
	if got := rr.Header().Get("Last-Modified"); got != "Sun, 01 Jun 2025 12:00:00 GMT" {
		t.Errorf("unexpected Last-Modified %q", got)
	}
}

func TestCachedPromHandlerKeepsCacheWhenGatherFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newCachedPromHandler(ctx, failingGatherer{}, time.Minute, clockwork.NewFakeClock())
	h.cache = []byte("previous_total 1\n")

	if err := h.refresh(); err == nil {
		t.Fatal("expected the gather error")
	}
	if string(h.cache) != "previous_total 1\n" {
		t.Errorf("cache was replaced: %q", h.cache)
	}
}
