package detector

import (
	"testing"
	"time"

	"github.com/mbtatracker-data/pkg/mbta-realtime/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 5, 1, 7, 0, 0, 0, time.FixedZone("EDT", -4*60*60))

func update(vehicle, route, stop string, status models.VehicleStatus, minute int) models.VehicleUpdate {
	return models.VehicleUpdate{
		VehicleID:     vehicle,
		RouteID:       route,
		TripID:        "61234567",
		StopID:        stop,
		DirectionID:   0,
		CurrentStatus: status,
		UpdatedAt:     start.Add(time.Duration(minute) * time.Minute),
	}
}

func TestFirstSightingNeverEmits(t *testing.T) {
	statuses := []models.VehicleStatus{models.StatusStoppedAt, models.StatusInTransitTo, models.StatusIncomingAt}
	for _, status := range statuses {
		for _, route := range []string{"1", "999"} {
			d := New([]string{"1"}, nil)
			_, emitted := d.Observe(update("v1", route, "100", status, 0))
			assert.False(t, emitted, "status=%s route=%s", status, route)
		}
	}
}

func TestDepartureDetection(t *testing.T) {
	d := New([]string{"1"}, nil)

	_, emitted := d.Observe(update("v1", "1", "100", models.StatusStoppedAt, 0))
	assert.False(t, emitted)

	ev, emitted := d.Observe(update("v1", "1", "200", models.StatusStoppedAt, 3))
	require.True(t, emitted)
	assert.Equal(t, "200", ev.StopID)
	assert.Equal(t, "1", ev.RouteID)
	assert.Equal(t, "6123456720240501", ev.TripIDWithDate)
	assert.True(t, start.Add(3*time.Minute).Equal(ev.DepartureTimestamp))

	stop, ok := d.State().LastStop("v1")
	require.True(t, ok)
	assert.Equal(t, "200", stop)
}

func TestRepeatedStopDoesNotEmit(t *testing.T) {
	d := New([]string{"1"}, nil)
	d.Observe(update("v1", "1", "100", models.StatusStoppedAt, 0))

	_, emitted := d.Observe(update("v1", "1", "100", models.StatusStoppedAt, 1))
	assert.False(t, emitted)
}

func TestRouteFilter(t *testing.T) {
	d := New([]string{"1"}, nil)
	d.Observe(update("v1", "57", "100", models.StatusStoppedAt, 0))

	_, emitted := d.Observe(update("v1", "57", "200", models.StatusStoppedAt, 1))
	assert.False(t, emitted)

	// state still advances for untracked routes
	stop, _ := d.State().LastStop("v1")
	assert.Equal(t, "200", stop)
}

func TestStatusFilter(t *testing.T) {
	d := New([]string{"1"}, nil)
	d.Observe(update("v1", "1", "100", models.StatusStoppedAt, 0))

	for i, status := range []models.VehicleStatus{models.StatusInTransitTo, models.StatusIncomingAt, "LAYOVER"} {
		_, emitted := d.Observe(update("v1", "1", "200", status, i+1))
		assert.False(t, emitted)

		stop, _ := d.State().LastStop("v1")
		assert.Equal(t, "100", stop, "status %s must not advance state", status)
	}

	ev, emitted := d.Observe(update("v1", "1", "200", models.StatusStoppedAt, 5))
	require.True(t, emitted)
	assert.Equal(t, "200", ev.StopID)
}

func TestNonStoppedFirstSightingLeavesNoState(t *testing.T) {
	d := New([]string{"1"}, nil)
	d.Observe(update("v1", "1", "100", models.StatusInTransitTo, 0))

	_, ok := d.State().LastStop("v1")
	assert.False(t, ok)

	_, emitted := d.Observe(update("v1", "1", "200", models.StatusStoppedAt, 1))
	assert.False(t, emitted, "first STOPPED_AT sighting has no reference stop")
}

func TestVehiclesAreIndependent(t *testing.T) {
	d := New([]string{"1"}, nil)
	d.Observe(update("v1", "1", "100", models.StatusStoppedAt, 0))
	d.Observe(update("v2", "1", "500", models.StatusStoppedAt, 0))

	_, emitted := d.Observe(update("v2", "1", "100", models.StatusStoppedAt, 1))
	assert.True(t, emitted)

	stop, _ := d.State().LastStop("v1")
	assert.Equal(t, "100", stop)
	assert.Equal(t, 2, d.State().Len())
}
