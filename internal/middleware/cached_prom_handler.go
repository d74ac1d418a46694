package middleware

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// CachedPromHandler serves a Prometheus exposition that is gathered once
// per ttl instead of on every scrape.
//
// The facility snapshot gauges and the lookup histograms are cheap to read
// individually, but /metrics is also exposed to every load balancer check
// and scraper replica, so one gather per interval keeps the cost flat.
type CachedPromHandler struct {
	mu       sync.RWMutex
	cache    []byte
	gathered time.Time
	ttl      time.Duration
	clock    clockwork.Clock
	gatherer prometheus.Gatherer
	h        http.Handler
}

// NewCachedPromHandler starts a refresh loop that runs until ctx is done.
func NewCachedPromHandler(ctx context.Context, gatherer prometheus.Gatherer, ttl time.Duration) *CachedPromHandler {
	return newCachedPromHandler(ctx, gatherer, ttl, clockwork.NewRealClock())
}

func newCachedPromHandler(ctx context.Context, gatherer prometheus.Gatherer, ttl time.Duration, clock clockwork.Clock) *CachedPromHandler {
	c := &CachedPromHandler{
		ttl:      ttl,
		clock:    clock,
		gatherer: gatherer,
		h:        promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	}

	go c.refreshLoop(ctx)
	return c
}

func (c *CachedPromHandler) refreshLoop(ctx context.Context) {
	ticker := c.clock.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			_ = c.refresh()
		}
	}
}

// refresh gathers and encodes outside any request. A failed gather keeps
// the previous exposition.
func (c *CachedPromHandler) refresh() error {
	families, err := c.gatherer.Gather()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.cache = buf.Bytes()
	c.gathered = c.clock.Now()
	c.mu.Unlock()
	return nil
}

// ServeHTTP writes the cached exposition. Until the first refresh it
// gathers live.
func (c *CachedPromHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	body, gathered := c.cache, c.gathered
	c.mu.RUnlock()

	if len(body) == 0 {
		c.h.ServeHTTP(w, r)
		return
	}
	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	w.Header().Set("Last-Modified", gathered.UTC().Format(http.TimeFormat))
	_, _ = w.Write(body)
}
