package config

import (
	"strings"
	"testing"

	"stationwalk.onebusaway.org/internal/geo"
)

func TestSettingsValidate(t *testing.T) {
	base := func() Settings {
		s := Defaults()
		s.Facilities.Path = "stations.json"
		return s
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"defaults with a path are valid", func(s *Settings) {}, ""},
		{"graph router needs a network", func(s *Settings) { s.Router.Kind = RouterGraph }, "router.network_file"},
		{"graph router with network", func(s *Settings) {
			s.Router.Kind = RouterGraph
			s.Router.NetworkFile = "network.json"
		}, ""},
		{"relative geocoder url", func(s *Settings) { s.Geocoder.BaseURL = "/search" }, "geocoder.base_url"},
		{"gtfs source needs a url or path", func(s *Settings) {
			s.Facilities.Source = SourceGTFS
			s.Facilities.Path = ""
		}, "facilities.url"},
		{"gtfs source from a local bundle", func(s *Settings) { s.Facilities.Source = SourceGTFS }, ""},
		{"postgres source", func(s *Settings) { s.Facilities.Source = SourcePostgres }, ""},
		{"unknown cache", func(s *Settings) { s.Cache.Backend = "memcached" }, "cache.backend"},
		{"too many retries", func(s *Settings) { s.Lookup.MaxRetries = 50 }, "lookup.max_retries"},
		{"inverted viewbox", func(s *Settings) {
			s.Geocoder.ViewBox = &geo.BoundingBox{MinLat: 40, MaxLat: 39, MinLon: -75, MaxLon: -74}
		}, "geocoder.viewbox"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid settings, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigUpdateSettings(t *testing.T) {
	cfg := NewConfig(4000, "testing", Defaults())

	next := Defaults()
	next.Lookup.MaxRetries = 5
	cfg.UpdateSettings(next)

	if got := cfg.GetSettings().Lookup.MaxRetries; got != 5 {
		t.Errorf("expected updated max retries 5, got %d", got)
	}
}
