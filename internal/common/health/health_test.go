package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mbtatracker-data/internal/common/logger"
	"github.com/mbtatracker-data/pkg/mbta-realtime/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	events    []models.StopEvent
	counts    map[string]int64
	err       error
	lastRoute string
	lastLimit int
}

func (f *fakeStore) Recent(_ context.Context, routeID string, limit int) ([]models.StopEvent, error) {
	f.lastRoute, f.lastLimit = routeID, limit
	return f.events, f.err
}

func (f *fakeStore) CountByRoute(context.Context) (map[string]int64, error) {
	return f.counts, f.err
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReflectsStreaming(t *testing.T) {
	streaming := false
	s := NewServer(":0", Sources{Streaming: func() bool { return streaming }}, logger.Nop())

	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/healthz").Code)

	streaming = true
	rec := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestStats(t *testing.T) {
	store := &fakeStore{counts: map[string]int64{"77": 12}}
	s := NewServer(":0", Sources{
		StreamStatus: func() interface{} { return map[string]string{"state": "streaming"} },
		Reports:      func() map[string]interface{} { return map[string]interface{}{"is_running": true} },
		Store:        store,
	}, logger.Nop())

	rec := get(t, s.Handler(), "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Stream   map[string]string      `json:"stream"`
		Store    map[string]int64       `json:"store"`
		Reporter map[string]interface{} `json:"reporter"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "streaming", body.Stream["state"])
	assert.Equal(t, int64(12), body.Store["77"])
	assert.Equal(t, true, body.Reporter["is_running"])
}

func TestStatsStoreError(t *testing.T) {
	s := NewServer(":0", Sources{Store: &fakeStore{err: errors.New("closed")}}, logger.Nop())
	assert.Equal(t, http.StatusInternalServerError, get(t, s.Handler(), "/stats").Code)
}

func TestRecentEvents(t *testing.T) {
	at := time.Date(2024, 5, 1, 7, 0, 0, 0, time.FixedZone("EDT", -4*60*60))
	store := &fakeStore{events: []models.StopEvent{
		{StopID: "200", RouteID: "77", TripIDWithDate: "t120240501", DirectionID: 1, DepartureTimestamp: at},
	}}
	s := NewServer(":0", Sources{Store: store}, logger.Nop())

	rec := get(t, s.Handler(), "/routes/77/events?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "77", store.lastRoute)
	assert.Equal(t, 5, store.lastLimit)
	assert.Contains(t, rec.Body.String(), `"trip_id":"t120240501"`)
	assert.Contains(t, rec.Body.String(), `"stop_timestamp":"2024-05-01T07:00:00-04:00"`)

	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/routes/77/events?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/routes/77/events?limit=abc").Code)

	store.events = nil
	rec = get(t, s.Handler(), "/routes/1/events")
	assert.Equal(t, "[]\n", rec.Body.String())
	assert.Equal(t, defaultLimit, store.lastLimit)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s := NewServer("127.0.0.1:0", Sources{}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunPortInUseDoesNotFail(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	s := NewServer(taken.Addr().String(), Sources{}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run should return when the address is taken")
	}
}
