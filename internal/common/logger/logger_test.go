package logger

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerKeyValueFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf)

	log.Info("Vehicle departed stop", "vehicle_id", "y1234", "stop_id", "64")

	out := buf.String()
	assert.Contains(t, out, `"message":"Vehicle departed stop"`)
	assert.Contains(t, out, `"vehicle_id":"y1234"`)
	assert.Contains(t, out, `"stop_id":"64"`)
	assert.Contains(t, out, `"level":"info"`)
}

func TestLoggerErrorField(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf)

	log.Error("Store write failed", "error", errors.New("disk full"))

	assert.Contains(t, buf.String(), `"error":"disk full"`)
}

func TestLoggerMapFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf)

	log.Warn("Map form", map[string]interface{}{"route_id": "77"})

	assert.Contains(t, buf.String(), `"route_id":"77"`)
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf).With("session_id", "abc")

	log.Info("Connected")

	assert.Contains(t, buf.String(), `"session_id":"abc"`)
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLogLevel(in), "level %q", in)
	}
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	log.Info("nothing")
	log.With("k", "v").Debug("still nothing")
}

func TestFileWriterUsesConfiguredRotation(t *testing.T) {
	cfg := DefaultLoggerConfig()
	cfg.FilePath = "app.log"
	cfg.MaxSizeMB = 3
	cfg.MaxBackups = 2
	cfg.MaxAgeDays = 7
	cfg.Compress = false

	w := FileWriter(cfg)

	assert.Equal(t, "app.log", w.Filename)
	assert.Equal(t, 3, w.MaxSize)
	assert.Equal(t, 2, w.MaxBackups)
	assert.Equal(t, 7, w.MaxAge)
	assert.False(t, w.Compress)
}

func TestConsoleWriterFormatsLine(t *testing.T) {
	var buf bytes.Buffer
	log := New(ConsoleWriter(&buf, ""))

	log.Info("Connected to vehicle stream", "route_id", "77")

	out := buf.String()
	assert.Contains(t, out, "Connected to vehicle stream")
	assert.Contains(t, out, "route_id=")
	assert.NotContains(t, out, `"message"`)
}

func TestNewFromConfigWritesFileAndExtraWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mbtatracker.log")
	var extra bytes.Buffer

	cfg := DefaultLoggerConfig()
	cfg.Console = false
	cfg.FilePath = path
	cfg.Level = zerolog.WarnLevel
	cfg.Writers = []io.Writer{&extra}

	log := NewFromConfig(cfg)
	log.Info("below level")
	log.Warn("Vehicle stream disconnected", "attempt", 2)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"Vehicle stream disconnected"`)
	assert.NotContains(t, string(data), "below level")
	assert.Contains(t, extra.String(), `"attempt":2`)
	assert.NotContains(t, extra.String(), "below level")
}
