package report_test

import (
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
	"stationwalk.onebusaway.org/internal/report"
)

func TestSetupSentry(t *testing.T) {
	t.Run("Valid DSN", func(t *testing.T) {
		t.Setenv("SENTRY_DSN", "https://public@sentry.example.com/1")

		if err := report.SetupSentry("testing", "test-version"); err != nil {
			t.Fatalf("SetupSentry failed: %v", err)
		}
		report.FlushSentry()
	})

	t.Run("Malformed DSN", func(t *testing.T) {
		t.Setenv("SENTRY_DSN", "not a dsn")

		if err := report.SetupSentry("testing", "test-version"); err == nil {
			t.Error("expected an error for a malformed DSN")
		}
	})
}

func TestReportErrorWithSentryOptions(t *testing.T) {
	var captured []*sentry.Event
	if err := sentry.Init(sentry.ClientOptions{
		Dsn: "https://public@sentry.example.com/1",
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			captured = append(captured, event)
			return nil
		},
	}); err != nil {
		t.Fatalf("sentry.Init failed: %v", err)
	}

	report.ReportErrorWithSentryOptions(errors.New("geocoder unreachable"), report.SentryReportOptions{
		Tags:         map[string]string{"stage": "resolving"},
		ExtraContext: map[string]interface{}{"attempt": 2},
		Level:        sentry.LevelWarning,
	})
	report.ReportErrorWithSentryOptions(nil, report.SentryReportOptions{})

	if len(captured) != 1 {
		t.Fatalf("expected 1 captured event, got %d", len(captured))
	}
	event := captured[0]
	if event.Tags["stage"] != "resolving" {
		t.Errorf("expected stage tag, got %v", event.Tags)
	}
	if event.Level != sentry.LevelWarning {
		t.Errorf("expected warning level, got %v", event.Level)
	}
}
