package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

// schemaSQL is valid for both sqlite and postgres and safe to run repeatedly
//
//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the stop_events table and its index if absent
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	db.logger.Debug("Database schema ensured", "driver", db.driver)
	return nil
}
