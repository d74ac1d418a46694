package report

import (
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

// SetupSentry initializes the Sentry client from SENTRY_DSN and tags every
// event with the environment and release. An empty DSN leaves Sentry
// disabled; events are then dropped silently.
func SetupSentry(env, release string) error {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              os.Getenv("SENTRY_DSN"),
		Environment:      env,
		Release:          release,
		EnableTracing:    true,
		TracesSampleRate: 0.2,
	}); err != nil {
		return fmt.Errorf("sentry.Init: %w", err)
	}
	ConfigureScope(env, release)
	sentry.CaptureMessage("stationwalk started")
	return nil
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
