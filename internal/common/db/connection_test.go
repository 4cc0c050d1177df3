package db

import (
	"context"
	"testing"

	"github.com/mbtatracker-data/internal/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New("mysql", "whatever", logger.Nop())
	assert.Error(t, err)
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	database, err := New(DriverSQLite, ":memory:", logger.Nop())
	require.NoError(t, err)
	defer database.Close()

	ctx := context.Background()
	require.NoError(t, database.EnsureSchema(ctx))
	require.NoError(t, database.EnsureSchema(ctx))

	var name string
	err = database.DB().QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'stop_events'").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "stop_events", name)
}

func TestRebind(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.Rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := &DB{driver: DriverSQLite}
	assert.Equal(t, "SELECT ?", lite.Rebind("SELECT ?"))
}
