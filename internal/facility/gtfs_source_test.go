package facility

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stationwalk.onebusaway.org/internal/models"
)

const stationStops = `stop_id,stop_name,stop_desc,stop_lat,stop_lon,location_type,parent_station
S13,13th Street,1234 Market St,39.9525,-75.1622,1,
S13P,13th Street Platform,,39.9525,-75.1622,0,S13
S13E2,13th St Entrance B,,39.9530,-75.1615,2,S13
S13E1,13th St Entrance A,,39.9522,-75.1620,2,S13
S15,15th Street,1500 Market St,39.9524,-75.1652,1,
S15P,15th Street Platform,,39.9524,-75.1652,0,S15
B1,Market St & 12th St,,39.9521,-75.1595,0,
`

const plainStops = `stop_id,stop_name,stop_desc,stop_lat,stop_lon,location_type,parent_station
S13P,13th Street,1234 Market St,39.9525,-75.1622,0,
S15P,15th Street,1500 Market St,39.9524,-75.1652,0,
`

// buildGTFSBundle zips a minimal static feed around the given stops.txt.
func buildGTFSBundle(t *testing.T, stops string) []byte {
	t.Helper()
	files := map[string]string{
		"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\n" +
			"SEPTA,SEPTA,https://www.septa.org,America/New_York\n",
		"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type\n" +
			"MFL,SEPTA,MFL,Market-Frankford Line,1\n",
		"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
			"WK,1,1,1,1,1,0,0,20250101,20271231\n",
		"trips.txt": "route_id,service_id,trip_id\nMFL,WK,T1\n",
		"stops.txt": stops,
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
			"T1,08:00:00,08:00:00,S13P,1\n" +
			"T1,08:02:00,08:02:00,S15P,2\n",
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeBundle(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gtfs.zip")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestGTFSSourcePrefersStations(t *testing.T) {
	src := &GTFSSource{Path: writeBundle(t, buildGTFSBundle(t, stationStops)), Logger: discardLogger()}

	got, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "S13", got[0].ID)
	assert.Equal(t, "13th Street", got[0].Name)
	assert.Equal(t, "1234 Market St", got[0].Address)
	require.NotNil(t, got[0].Entrance, "station entrance should be attached")
	assert.Equal(t, models.ResolvedLocation{Latitude: 39.9522, Longitude: -75.1620}, *got[0].Entrance)

	assert.Equal(t, "S15", got[1].ID)
	assert.Nil(t, got[1].Entrance)
}

func TestGTFSSourceFallsBackToStops(t *testing.T) {
	src := &GTFSSource{Path: writeBundle(t, buildGTFSBundle(t, plainStops)), Logger: discardLogger()}

	got, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "S13P", got[0].ID)
	assert.Equal(t, "S15P", got[1].ID)
}

func TestGTFSSourceDownloadAndCache(t *testing.T) {
	bundle := buildGTFSBundle(t, stationStops)
	var failing atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Write(bundle)
	}))
	defer ts.Close()

	cacheDir := filepath.Join(t.TempDir(), "cache")
	src := &GTFSSource{URL: ts.URL, CacheDir: cacheDir, Client: &http.Client{Timeout: 5 * time.Second}, KeepBundles: 1, Logger: discardLogger()}

	t.Run("download is cached", func(t *testing.T) {
		for range 2 {
			got, err := src.Load(context.Background())
			require.NoError(t, err)
			assert.Len(t, got, 2)
		}

		entries, err := os.ReadDir(cacheDir)
		require.NoError(t, err)
		var bundles int
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), gtfsCachePrefix) {
				bundles++
			}
		}
		assert.Equal(t, 1, bundles, "old bundles should be pruned")
	})

	t.Run("failed download uses the cached bundle", func(t *testing.T) {
		failing.Store(true)
		got, err := src.Load(context.Background())
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("failed download without cache is an error", func(t *testing.T) {
		failing.Store(true)
		empty := &GTFSSource{URL: ts.URL, CacheDir: filepath.Join(t.TempDir(), "none"), Client: ts.Client(), Logger: discardLogger()}
		_, err := empty.Load(context.Background())
		assert.Error(t, err)
	})
}

func TestGTFSSourceRejectsCorruptBundle(t *testing.T) {
	src := &GTFSSource{Path: writeBundle(t, []byte("not a zip")), Logger: discardLogger()}
	_, err := src.Load(context.Background())
	assert.Error(t, err)
}
