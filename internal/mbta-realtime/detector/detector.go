package detector

import (
	"github.com/mbtatracker-data/pkg/mbta-realtime/models"
)

// VehicleState maps vehicle id to the last stop it was seen STOPPED_AT.
// It belongs to a single ingestion loop and is not safe for concurrent use.
type VehicleState struct {
	lastStop map[string]string
}

func NewVehicleState() *VehicleState {
	return &VehicleState{lastStop: make(map[string]string)}
}

// LastStop returns the tracked stop for a vehicle; ok is false for a vehicle
// never seen stopped.
func (s *VehicleState) LastStop(vehicleID string) (stopID string, ok bool) {
	stopID, ok = s.lastStop[vehicleID]
	return stopID, ok
}

// Len is the number of vehicles tracked
func (s *VehicleState) Len() int {
	return len(s.lastStop)
}

func (s *VehicleState) set(vehicleID, stopID string) {
	s.lastStop[vehicleID] = stopID
}

// Detector infers departures from changes in a vehicle's reported stop
type Detector struct {
	routes map[string]struct{}
	state  *VehicleState
}

func New(trackedRoutes []string, state *VehicleState) *Detector {
	routes := make(map[string]struct{}, len(trackedRoutes))
	for _, r := range trackedRoutes {
		routes[r] = struct{}{}
	}
	if state == nil {
		state = NewVehicleState()
	}
	return &Detector{routes: routes, state: state}
}

// Tracks reports whether events are emitted for the route
func (d *Detector) Tracks(routeID string) bool {
	_, ok := d.routes[routeID]
	return ok
}

// State exposes the per-vehicle state owned by this detector
func (d *Detector) State() *VehicleState {
	return d.state
}

// Observe applies one update. It returns an event when a tracked vehicle is
// STOPPED_AT a stop different from the last one it stopped at. Any
// STOPPED_AT update moves the vehicle's tracked stop forward; other statuses
// leave it alone. A vehicle's first sighting never produces an event.
func (d *Detector) Observe(u models.VehicleUpdate) (models.StopEvent, bool) {
	if !u.StoppedAt() {
		return models.StopEvent{}, false
	}

	previous, seen := d.state.LastStop(u.VehicleID)
	d.state.set(u.VehicleID, u.StopID)

	if !seen || previous == u.StopID || !d.Tracks(u.RouteID) {
		return models.StopEvent{}, false
	}

	return models.NewStopEvent(u), true
}
