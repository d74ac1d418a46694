package facility

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/lib/pq"
	"stationwalk.onebusaway.org/internal/config"
	"stationwalk.onebusaway.org/internal/models"
)

// DefaultStationsTable is the table PostgresSource reads when none is configured.
const DefaultStationsTable = "stations"

// PostgresSource reads facilities from a stations table with the columns
// id, line, station_name, address, city, state, zip, latitude, longitude.
type PostgresSource struct {
	DB    *sql.DB
	Table string
}

// OpenPostgres opens a pooled connection to databaseURL and waits for it
// to answer a ping.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return db, nil
}

func (s *PostgresSource) Name() string { return config.SourcePostgres }

func (s *PostgresSource) query() string {
	table := s.Table
	if table == "" {
		table = DefaultStationsTable
	}
	return fmt.Sprintf(`
		SELECT CAST(id AS TEXT), line, station_name, address, city, state, zip, latitude, longitude
		FROM %s
		ORDER BY id
	`, pq.QuoteIdentifier(table))
}

func (s *PostgresSource) Load(ctx context.Context) ([]models.Facility, error) {
	rows, err := s.DB.QueryContext(ctx, s.query())
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var facilities []models.Facility
	for rows.Next() {
		var (
			id                                string
			line, name, address, city, region sql.NullString
			zip                               sql.NullString
			lat, lon                          sql.NullFloat64
		)
		if err := rows.Scan(&id, &line, &name, &address, &city, &region, &zip, &lat, &lon); err != nil {
			return nil, fmt.Errorf("failed to scan station: %w", err)
		}
		facilities = append(facilities, models.Facility{
			ID:         id,
			Line:       line.String,
			Name:       name.String,
			Address:    address.String,
			City:       city.String,
			Region:     region.String,
			PostalCode: zip.String,
			Latitude:   nullCoordinate(lat),
			Longitude:  nullCoordinate(lon),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stations: %w", err)
	}
	return facilities, nil
}

func nullCoordinate(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
