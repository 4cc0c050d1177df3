package models

import "time"

// VehicleStatus is the MBTA current_status of a vehicle relative to its stop.
// Values other than the ones declared here are carried through untouched.
type VehicleStatus string

const (
	StatusStoppedAt   VehicleStatus = "STOPPED_AT"
	StatusIncomingAt  VehicleStatus = "INCOMING_AT"
	StatusInTransitTo VehicleStatus = "IN_TRANSIT_TO"
)

// VehicleUpdate is one validated vehicle position update from the stream
type VehicleUpdate struct {
	VehicleID     string
	RouteID       string
	TripID        string
	StopID        string
	DirectionID   int
	CurrentStatus VehicleStatus
	UpdatedAt     time.Time
}

// StoppedAt reports whether the vehicle is reported as standing at its stop
func (u VehicleUpdate) StoppedAt() bool {
	return u.CurrentStatus == StatusStoppedAt
}
