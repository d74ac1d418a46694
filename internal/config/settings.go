package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"stationwalk.onebusaway.org/internal/geo"
	"stationwalk.onebusaway.org/internal/utils"
)

// Settings is the JSON configuration document loaded from --config-file or
// --config-url. Zero values are replaced by Defaults before validation.
type Settings struct {
	Geocoder   GeocoderSettings `json:"geocoder"`
	Router     RouterSettings   `json:"router"`
	Facilities FacilitySettings `json:"facilities"`
	Lookup     LookupSettings   `json:"lookup"`
	Cache      CacheSettings    `json:"cache"`
	// CORSOrigin is the front-end origin allowed to call the API; "*" allows any.
	CORSOrigin string `json:"cors_origin"`
	// RefreshInterval controls how often a remote configuration is re-fetched.
	RefreshInterval utils.Duration `json:"refresh_interval"`
}

type GeocoderSettings struct {
	BaseURL   string           `json:"base_url"`
	UserAgent string           `json:"user_agent"`
	Email     string           `json:"email,omitempty"`
	Timeout   utils.Duration   `json:"timeout"`
	ViewBox   *geo.BoundingBox `json:"viewbox,omitempty"`
}

const (
	RouterOSRM  = "osrm"
	RouterGraph = "graph"
)

type RouterSettings struct {
	Kind                   string         `json:"kind"`
	BaseURL                string         `json:"base_url,omitempty"`
	NetworkFile            string         `json:"network_file,omitempty"`
	Timeout                utils.Duration `json:"timeout"`
	ArrivalThresholdMeters float64        `json:"arrival_threshold_meters"`
	MaxSnapMeters          float64        `json:"max_snap_meters"`
}

const (
	SourceFile     = "file"
	SourceURL      = "url"
	SourceGTFS     = "gtfs"
	SourcePostgres = "postgres"
)

type FacilitySettings struct {
	Source   string `json:"source"`
	Path     string `json:"path,omitempty"`
	URL      string `json:"url,omitempty"`
	AuthUser string `json:"auth_user,omitempty"`
	AuthPass string `json:"auth_pass,omitempty"`
	// DatabaseURL falls back to the DATABASE_URL environment variable.
	DatabaseURL      string         `json:"database_url,omitempty"`
	Table            string         `json:"table,omitempty"`
	CacheDir         string         `json:"cache_dir,omitempty"`
	RefreshInterval  utils.Duration `json:"refresh_interval"`
	MaxRetries       int            `json:"max_retries"`
	TieEpsilonMeters float64        `json:"tie_epsilon_meters"`
}

type LookupSettings struct {
	MaxRetries  int            `json:"max_retries"`
	BackoffBase utils.Duration `json:"backoff_base"`
	BackoffMax  utils.Duration `json:"backoff_max"`
	// MaxWalkMeters rejects origins farther than this from every station; 0 disables the check.
	MaxWalkMeters float64 `json:"max_walk_meters"`
}

const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type CacheSettings struct {
	Backend string `json:"backend"`
	Size    int    `json:"size"`
	// RedisAddr falls back to the REDIS_ADDR environment variable.
	RedisAddr  string         `json:"redis_addr,omitempty"`
	GeocodeTTL utils.Duration `json:"geocode_ttl"`
	RouteTTL   utils.Duration `json:"route_ttl"`
}

// Defaults returns the settings used for every field a document leaves unset.
func Defaults() Settings {
	return Settings{
		Geocoder: GeocoderSettings{
			BaseURL:   "https://nominatim.openstreetmap.org",
			UserAgent: "stationwalk/1.0",
			Timeout:   utils.Duration(5 * time.Second),
		},
		Router: RouterSettings{
			Kind:                   RouterOSRM,
			BaseURL:                "https://router.project-osrm.org",
			Timeout:                utils.Duration(5 * time.Second),
			ArrivalThresholdMeters: 10,
			MaxSnapMeters:          500,
		},
		Facilities: FacilitySettings{
			Source:           SourceFile,
			Table:            "stations",
			CacheDir:         "cache",
			RefreshInterval:  utils.Duration(24 * time.Hour),
			MaxRetries:       3,
			TieEpsilonMeters: 0.01,
		},
		Lookup: LookupSettings{
			MaxRetries:    2,
			BackoffBase:   utils.Duration(200 * time.Millisecond),
			BackoffMax:    utils.Duration(2 * time.Second),
			MaxWalkMeters: 71000,
		},
		Cache: CacheSettings{
			Backend:    CacheMemory,
			Size:       10000,
			GeocodeTTL: utils.Duration(24 * time.Hour),
			RouteTTL:   utils.Duration(24 * time.Hour),
		},
		CORSOrigin:      "*",
		RefreshInterval: utils.Duration(5 * time.Minute),
	}
}

// Validate reports every problem with s at once.
func (s Settings) Validate() error {
	var errs []error

	if err := validateURL("geocoder.base_url", s.Geocoder.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if s.Geocoder.Timeout.Std() <= 0 {
		errs = append(errs, errors.New("geocoder.timeout must be positive"))
	}
	if s.Geocoder.ViewBox != nil && !s.Geocoder.ViewBox.Valid() {
		errs = append(errs, errors.New("geocoder.viewbox is not a valid bounding box"))
	}

	switch s.Router.Kind {
	case RouterOSRM:
		if err := validateURL("router.base_url", s.Router.BaseURL); err != nil {
			errs = append(errs, err)
		}
	case RouterGraph:
		if s.Router.NetworkFile == "" {
			errs = append(errs, errors.New("router.network_file is required for the graph router"))
		}
	default:
		errs = append(errs, fmt.Errorf("router.kind must be %q or %q, got %q", RouterOSRM, RouterGraph, s.Router.Kind))
	}
	if s.Router.Timeout.Std() <= 0 {
		errs = append(errs, errors.New("router.timeout must be positive"))
	}
	if s.Router.ArrivalThresholdMeters < 0 || s.Router.MaxSnapMeters < 0 {
		errs = append(errs, errors.New("router distances must not be negative"))
	}

	switch s.Facilities.Source {
	case SourceFile:
		if s.Facilities.Path == "" {
			errs = append(errs, errors.New("facilities.path is required for the file source"))
		}
	case SourceURL:
		if err := validateURL("facilities.url", s.Facilities.URL); err != nil {
			errs = append(errs, err)
		}
	case SourceGTFS:
		if s.Facilities.URL == "" && s.Facilities.Path == "" {
			errs = append(errs, errors.New("facilities.url or facilities.path is required for the gtfs source"))
		} else if s.Facilities.URL != "" {
			if err := validateURL("facilities.url", s.Facilities.URL); err != nil {
				errs = append(errs, err)
			}
		}
	case SourcePostgres:
		if s.Facilities.Table == "" {
			errs = append(errs, errors.New("facilities.table is required for the postgres source"))
		}
	default:
		errs = append(errs, fmt.Errorf("facilities.source %q is not supported", s.Facilities.Source))
	}
	if s.Facilities.TieEpsilonMeters < 0 {
		errs = append(errs, errors.New("facilities.tie_epsilon_meters must not be negative"))
	}

	if s.Lookup.MaxRetries < 0 || s.Lookup.MaxRetries > 10 {
		errs = append(errs, errors.New("lookup.max_retries must be between 0 and 10"))
	}
	if s.Lookup.MaxWalkMeters < 0 {
		errs = append(errs, errors.New("lookup.max_walk_meters must not be negative"))
	}

	switch s.Cache.Backend {
	case CacheNone, CacheMemory, CacheRedis:
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is not supported", s.Cache.Backend))
	}

	return errors.Join(errs...)
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", field, raw)
	}
	return nil
}
