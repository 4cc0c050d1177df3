package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "stop_events.db", cfg.Database.DSN())
	assert.Equal(t, 5*time.Second, cfg.Stream.Backoff.Base)
	assert.Equal(t, 60*time.Second, cfg.Stream.Backoff.Max)
	assert.Equal(t, 0.5, cfg.Stream.Backoff.JitterMin)
	assert.Equal(t, 1.5, cfg.Stream.Backoff.JitterMax)
	assert.Equal(t, FrequentBusRoutes, cfg.Stream.TrackedRoutes)
	assert.Equal(t, cfg.Stream.TrackedRoutes, cfg.Stream.StreamRoutes)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TRACKED_ROUTES", "1, 77 ,")
	t.Setenv("BACKOFF_BASE", "2s")
	t.Setenv("BACKOFF_JITTER_MAX", "1.25")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_HOST", "db.internal")

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "77"}, cfg.Stream.TrackedRoutes)
	assert.Equal(t, []string{"1", "77"}, cfg.Stream.StreamRoutes)
	assert.Equal(t, 2*time.Second, cfg.Stream.Backoff.Base)
	assert.Equal(t, 1.25, cfg.Stream.Backoff.JitterMax)
	assert.Contains(t, cfg.Database.DSN(), "host=db.internal")
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	yml := `
stream:
  tracked_routes: ["77"]
  stream_routes: ["77", "1"]
  backoff:
    base: 1s
    max: 30s
    jitter_min: 0.8
    jitter_max: 1.2
schedule:
  last_stop_mode: last
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"77"}, cfg.Stream.TrackedRoutes)
	assert.Equal(t, time.Second, cfg.Stream.Backoff.Base)
	assert.Equal(t, 30*time.Second, cfg.Stream.Backoff.Max)
	assert.Equal(t, LastStopModeLast, cfg.Schedule.LastStopMode)
	assert.Equal(t,
		"https://api-v3.mbta.com/vehicles?filter[route]=77,1&filter[revenue]=REVENUE",
		cfg.Stream.StreamURL())
}

func TestValidateRejectsBadBackoff(t *testing.T) {
	cfg := Defaults()
	cfg.Stream.StreamRoutes = cfg.Stream.TrackedRoutes
	cfg.Stream.Backoff.Max = time.Second
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Stream.Backoff.JitterMin = 1.5
	cfg.Stream.Backoff.JitterMax = 0.5
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyRoutes(t *testing.T) {
	cfg := Defaults()
	cfg.Stream.TrackedRoutes = nil
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsTemplateWithoutPlaceholder(t *testing.T) {
	cfg := Defaults()
	cfg.Stream.URLTemplate = "https://api-v3.mbta.com/vehicles"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Driver = "mysql"
	assert.Error(t, cfg.Validate())
}
