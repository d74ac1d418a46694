//go:build integration

// Package integration runs the service against real Postgres and Redis
// instances started with testcontainers. Run with:
//
//	go test -tags integration ./internal/integration/...
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresUser     = "stationwalk"
	postgresPassword = "stationwalk"
	postgresDB       = "stationwalk"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startPostgres starts a Postgres container and returns its connection URL.
// The container is terminated when the test ends.
func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     postgresUser,
				"POSTGRES_PASSWORD": postgresPassword,
				"POSTGRES_DB":       postgresDB,
			},
			// The server restarts once after initdb, so wait for the second message.
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		postgresUser, postgresPassword, host, port.Port(), postgresDB)
}

// startRedis starts a Redis container and returns its host:port address.
func startRedis(t *testing.T, ctx context.Context) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}

// seedStations creates the stations table and fills it with a few SEPTA
// stations plus one row without coordinates.
func seedStations(t *testing.T, ctx context.Context, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.ExecContext(ctx, `
		CREATE TABLE stations (
			id           SERIAL PRIMARY KEY,
			line         TEXT,
			station_name TEXT NOT NULL,
			address      TEXT,
			city         TEXT,
			state        TEXT,
			zip          TEXT,
			latitude     DOUBLE PRECISION,
			longitude    DOUBLE PRECISION
		)`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `
		INSERT INTO stations (line, station_name, address, city, state, zip, latitude, longitude) VALUES
			('MFL', '13th Street', '1234 Market St', 'Philadelphia', 'PA', '19107', 39.95, -75.16),
			('BSL', 'Olney Transportation Center', '5600 N Broad St', 'Philadelphia', 'PA', '19141', 40.039041, -75.144574),
			('PATCO', 'City Hall (Camden)', '5th St & Market St', 'Camden', 'NJ', '08102', 39.945316, -75.121215),
			('MFL', 'Unsurveyed', NULL, NULL, NULL, NULL, NULL, NULL)`)
	require.NoError(t, err)
}
