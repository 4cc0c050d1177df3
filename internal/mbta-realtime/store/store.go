package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mbtatracker-data/internal/common/db"
	"github.com/mbtatracker-data/internal/common/logger"
	"github.com/mbtatracker-data/pkg/mbta-realtime/models"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	pqUniqueViolation = "23505"

	insertSQLite = `
		INSERT OR IGNORE INTO stop_events (stop_id, route_id, trip_id, direction_id, stop_timestamp)
		VALUES (?, ?, ?, ?, ?)`

	insertPostgres = `
		INSERT INTO stop_events (stop_id, route_id, trip_id, direction_id, stop_timestamp)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (stop_id, route_id, trip_id) DO NOTHING`
)

// StoreError is any write or read failure other than the expected
// duplicate-key no-op.
type StoreError struct {
	Op  string
	Key models.EventKey
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == (models.EventKey{}) {
		return fmt.Sprintf("stop event store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("stop event store %s (stop=%s route=%s trip=%s): %v",
		e.Op, e.Key.StopID, e.Key.RouteID, e.Key.TripIDWithDate, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Store persists stop events with insert-or-ignore semantics on the
// (stop_id, route_id, trip_id) natural key.
type Store struct {
	db        *db.DB
	logger    logger.Logger
	insertSQL string
}

func New(database *db.DB, log logger.Logger) *Store {
	insertSQL := insertSQLite
	if database.Driver() == db.DriverPostgres {
		insertSQL = insertPostgres
	}
	return &Store{
		db:        database,
		logger:    log,
		insertSQL: insertSQL,
	}
}

// Init creates the table if needed; calling it again is harmless
func (s *Store) Init(ctx context.Context) error {
	if err := s.db.EnsureSchema(ctx); err != nil {
		return &StoreError{Op: "init", Err: err}
	}
	return nil
}

// Write inserts the event unless its key already exists. It reports whether
// a new row was written; a duplicate is not an error.
func (s *Store) Write(ctx context.Context, event models.StopEvent) (bool, error) {
	result, err := s.db.DB().ExecContext(ctx, s.insertSQL,
		event.StopID,
		event.RouteID,
		event.TripIDWithDate,
		event.DirectionID,
		formatTimestamp(event.DepartureTimestamp),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, &StoreError{Op: "write", Key: event.Key(), Err: err}
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, &StoreError{Op: "write", Key: event.Key(), Err: fmt.Errorf("getting rows affected: %w", err)}
	}

	return rows > 0, nil
}

// formatTimestamp renders UTC at second precision so that the stored text
// sorts in time order. The service date already lives in trip_id.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Recent returns the latest events for a route, newest first
func (s *Store) Recent(ctx context.Context, routeID string, limit int) ([]models.StopEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.DB().QueryContext(ctx, s.db.Rebind(`
		SELECT stop_id, route_id, trip_id, direction_id, stop_timestamp
		FROM stop_events
		WHERE route_id = ?
		ORDER BY stop_timestamp DESC
		LIMIT ?
	`), routeID, limit)
	if err != nil {
		return nil, &StoreError{Op: "recent", Err: err}
	}
	defer rows.Close()

	var events []models.StopEvent
	for rows.Next() {
		var (
			event     models.StopEvent
			timestamp string
		)
		if err := rows.Scan(&event.StopID, &event.RouteID, &event.TripIDWithDate, &event.DirectionID, &timestamp); err != nil {
			return nil, &StoreError{Op: "recent", Err: fmt.Errorf("scanning stop event: %w", err)}
		}
		event.DepartureTimestamp, err = time.Parse(time.RFC3339, timestamp)
		if err != nil {
			return nil, &StoreError{Op: "recent", Err: fmt.Errorf("parsing stop_timestamp %q: %w", timestamp, err)}
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "recent", Err: fmt.Errorf("iterating stop events: %w", err)}
	}

	return events, nil
}

// CountByRoute returns the number of stored events per route
func (s *Store) CountByRoute(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT route_id, COUNT(*)
		FROM stop_events
		GROUP BY route_id
	`)
	if err != nil {
		return nil, &StoreError{Op: "count", Err: err}
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			routeID string
			count   int64
		)
		if err := rows.Scan(&routeID, &count); err != nil {
			return nil, &StoreError{Op: "count", Err: fmt.Errorf("scanning count: %w", err)}
		}
		counts[routeID] = count
	}

	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "count", Err: fmt.Errorf("iterating counts: %w", err)}
	}

	return counts, nil
}

// isUniqueViolation catches a conflict that slipped past the
// insert-or-ignore clause, e.g. a concurrent writer on postgres.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
