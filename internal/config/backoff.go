package config

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	BASE_BACKOFF   = 1 * time.Second
	MAX_BACKOFF    = 2 * time.Minute
	BACKOFF_FACTOR = 2.0
	JITTER_FACTOR  = 0.5
)

// Backoff describes an exponential backoff with jitter.
//
// The delay before retry n (starting at 1) is Base*Factor^(n-1), plus up to
// Jitter times that value at random, capped at Max.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64
}

// DefaultBackoff is used for configuration and data downloads.
var DefaultBackoff = Backoff{
	Base:   BASE_BACKOFF,
	Max:    MAX_BACKOFF,
	Factor: BACKOFF_FACTOR,
	Jitter: JITTER_FACTOR,
}

// Delay returns the wait before the given retry. A zero Base disables waiting.
func (b Backoff) Delay(retry int) time.Duration {
	if b.Base <= 0 || retry < 1 {
		return 0
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}
	delay := float64(b.Base)
	for i := 1; i < retry; i++ {
		delay *= factor
		if b.Max > 0 && delay >= float64(b.Max) {
			break
		}
	}
	delay += rand.Float64() * delay * b.Jitter
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}
	return time.Duration(delay)
}

// Sleep waits for the given retry's delay on clock, returning early with
// the context's error if ctx is done first.
func (b Backoff) Sleep(ctx context.Context, clock clockwork.Clock, retry int) error {
	d := b.Delay(retry)
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}

// ErrMaxRetriesExceeded is returned by DoWithBackoff when every attempt failed.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// DoWithBackoff performs req with client, retrying transport errors and
// 5xx or 429 responses up to maxRetries times with DefaultBackoff between
// attempts. Any other response, including 4xx, is returned to the caller.
func DoWithBackoff(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	return doWithBackoff(ctx, client, req, maxRetries, DefaultBackoff, clockwork.NewRealClock())
}

func doWithBackoff(ctx context.Context, client *http.Client, req *http.Request, maxRetries int, backoff Backoff, clock clockwork.Clock) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := backoff.Sleep(ctx, clock, attempt); err != nil {
				return nil, fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("server returned status %d", resp.StatusCode)
			resp.Body.Close()
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrMaxRetriesExceeded, maxRetries+1, lastErr)
}
