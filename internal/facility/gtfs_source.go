package facility

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/getsentry/sentry-go"
	remoteGtfs "github.com/jamespfennell/gtfs"
	"stationwalk.onebusaway.org/internal/config"
	"stationwalk.onebusaway.org/internal/models"
	"stationwalk.onebusaway.org/internal/report"
	"stationwalk.onebusaway.org/internal/utils"
)

const (
	gtfsCachePrefix = "gtfs_"
	// defaultKeepBundles is how many downloaded bundles stay in the cache directory.
	defaultKeepBundles = 2
)

// GTFSSource derives facilities from the stops of a GTFS static bundle,
// either downloaded from URL or read from Path.
//
// Downloaded bundles are kept in CacheDir; when a download fails the most
// recent cached bundle is used instead.
type GTFSSource struct {
	URL         string
	Path        string
	CacheDir    string
	Client      *http.Client
	MaxRetries  int
	KeepBundles int
	Logger      *slog.Logger
}

func (s *GTFSSource) Name() string { return config.SourceGTFS }

func (s *GTFSSource) Load(ctx context.Context) ([]models.Facility, error) {
	data, err := s.bundle(ctx)
	if err != nil {
		return nil, err
	}

	staticBundle, err := remoteGtfs.ParseStatic(data, remoteGtfs.ParseStaticOptions{})
	if err != nil {
		err = fmt.Errorf("failed to parse GTFS static data: %w", err)
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags: utils.MakeMap("source", config.SourceGTFS),
			ExtraContext: map[string]interface{}{
				"gtfs_url":  s.URL,
				"gtfs_path": s.Path,
			},
			Level: sentry.LevelError,
		})
		return nil, err
	}
	return stationsFromStatic(staticBundle), nil
}

func (s *GTFSSource) bundle(ctx context.Context) ([]byte, error) {
	if s.URL == "" {
		data, err := os.ReadFile(s.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read GTFS bundle: %w", err)
		}
		return data, nil
	}

	data, err := fetch(ctx, s.Client, s.URL, "", "", s.MaxRetries)
	if err == nil {
		s.store(data)
		return data, nil
	}
	if s.CacheDir == "" {
		return nil, err
	}

	cached, cacheErr := utils.GetLastCachedFile(s.CacheDir, gtfsCachePrefix)
	if cacheErr != nil {
		return nil, err
	}
	s.logger().Warn("Using cached GTFS bundle", "path", cached, "error", err)
	data, readErr := os.ReadFile(cached)
	if readErr != nil {
		return nil, fmt.Errorf("download failed (%v) and cached bundle unreadable: %w", err, readErr)
	}
	return data, nil
}

// store writes a downloaded bundle into the cache directory and prunes old
// ones. Failures only cost the fallback, so they are logged and ignored.
func (s *GTFSSource) store(data []byte) {
	if s.CacheDir == "" {
		return
	}
	logger := s.logger()
	if err := utils.CreateCacheDirectory(s.CacheDir, logger); err != nil {
		logger.Warn("Failed to create GTFS cache directory", "cache_dir", s.CacheDir, "error", err)
		return
	}

	tmp, err := os.CreateTemp(s.CacheDir, ".download-*")
	if err != nil {
		logger.Warn("Failed to cache GTFS bundle", "error", err)
		return
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmp.Name())
		logger.Warn("Failed to cache GTFS bundle", "write_error", werr, "close_error", cerr)
		return
	}

	name := filepath.Join(s.CacheDir, fmt.Sprintf("%s%d.zip", gtfsCachePrefix, time.Now().UnixNano()))
	if err := os.Rename(tmp.Name(), name); err != nil {
		os.Remove(tmp.Name())
		logger.Warn("Failed to cache GTFS bundle", "error", err)
		return
	}

	keep := s.KeepBundles
	if keep <= 0 {
		keep = defaultKeepBundles
	}
	if err := utils.PruneCachedFiles(s.CacheDir, gtfsCachePrefix, keep); err != nil {
		logger.Warn("Failed to prune cached GTFS bundles", "error", err)
	}
}

func (s *GTFSSource) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// stationsFromStatic picks the walkable destinations of a feed. For the
// stop hierarchy see the parent_station section of
// https://gtfs.org/schedule/reference/#stopstxt
//
// Stations (location type 1) are preferred. Feeds without stations fall back
// to their top-level stops. An entrance (type 2) whose parent is a station
// becomes that station's entrance; the lowest entrance id wins.
func stationsFromStatic(staticBundle *remoteGtfs.Static) []models.Facility {
	stops := make([]*remoteGtfs.Stop, 0, len(staticBundle.Stops))
	for i := range staticBundle.Stops {
		stops = append(stops, &staticBundle.Stops[i])
	}
	sort.Slice(stops, func(i, j int) bool { return stops[i].Id < stops[j].Id })

	entrances := make(map[string]*models.ResolvedLocation)
	hasStations := false
	for _, stop := range stops {
		switch stop.Type {
		case 1:
			hasStations = true
		case 2:
			if stop.Parent == nil || stop.Parent.Type != 1 || stop.Latitude == nil || stop.Longitude == nil {
				continue
			}
			if _, ok := entrances[stop.Parent.Id]; !ok {
				entrances[stop.Parent.Id] = &models.ResolvedLocation{Latitude: *stop.Latitude, Longitude: *stop.Longitude}
			}
		}
	}

	var facilities []models.Facility
	for _, stop := range stops {
		if hasStations && stop.Type != 1 {
			continue
		}
		if !hasStations && (stop.Type != 0 || stop.Parent != nil) {
			continue
		}
		facilities = append(facilities, models.Facility{
			ID:        stop.Id,
			Name:      stop.Name,
			Address:   stop.Description,
			Latitude:  coordinate(stop.Latitude),
			Longitude: coordinate(stop.Longitude),
			Entrance:  entrances[stop.Id],
		})
	}
	return facilities
}

// coordinate maps a missing GTFS coordinate to NaN so Sanitize rejects it.
func coordinate(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
