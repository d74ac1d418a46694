package facility

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/getsentry/sentry-go"
	"stationwalk.onebusaway.org/internal/config"
	"stationwalk.onebusaway.org/internal/models"
	"stationwalk.onebusaway.org/internal/report"
	"stationwalk.onebusaway.org/internal/utils"
)

// maxDocumentBytes bounds a downloaded station document or GTFS bundle.
const maxDocumentBytes = 256 << 20

// Source loads the full facility set. Implementations return rows as
// stored; the caller sanitizes them.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]models.Facility, error)
}

// FileSource reads a JSON array of facilities from disk.
type FileSource struct {
	Path string
}

func (s *FileSource) Name() string { return config.SourceFile }

func (s *FileSource) Load(ctx context.Context) ([]models.Facility, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read facilities file: %w", err)
	}
	return decodeFacilities(data)
}

// URLSource downloads a JSON array of facilities, optionally behind basic auth.
type URLSource struct {
	URL        string
	AuthUser   string
	AuthPass   string
	Client     *http.Client
	MaxRetries int
}

func (s *URLSource) Name() string { return config.SourceURL }

func (s *URLSource) Load(ctx context.Context) ([]models.Facility, error) {
	data, err := fetch(ctx, s.Client, s.URL, s.AuthUser, s.AuthPass, s.MaxRetries)
	if err != nil {
		return nil, err
	}
	return decodeFacilities(data)
}

func decodeFacilities(data []byte) ([]models.Facility, error) {
	var facilities []models.Facility
	if err := json.Unmarshal(bytes.TrimSpace(data), &facilities); err != nil {
		return nil, fmt.Errorf("failed to decode facilities: %w", err)
	}
	return facilities, nil
}

// fetch GETs url with retries and returns the body of a 200 response.
func fetch(ctx context.Context, client *http.Client, url, authUser, authPass string, maxRetries int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	if authUser != "" && authPass != "" {
		req.SetBasicAuth(authUser, authPass)
	}

	resp, err := config.DoWithBackoff(ctx, client, req, maxRetries)
	if err != nil {
		err = fmt.Errorf("failed to make GET request to %s: %w", url, err)
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  utils.MakeMap("facility_url", url),
			Level: sentry.LevelError,
		})
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected response status %d when downloading %s", resp.StatusCode, url)
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags: utils.MakeMap("facility_url", url),
			ExtraContext: map[string]interface{}{
				"status": resp.Status,
			},
			Level: sentry.LevelError,
		})
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body from %s: %w", url, err)
	}
	return data, nil
}
