package models

import "time"

// ServiceDateLayout is appended to raw trip ids, since MBTA trip ids only
// identify a trip within one service day.
const ServiceDateLayout = "20060102"

// StopEvent is a detected departure, keyed by (StopID, RouteID, TripIDWithDate)
type StopEvent struct {
	StopID             string    `json:"stop_id"`
	RouteID            string    `json:"route_id"`
	TripIDWithDate     string    `json:"trip_id"`
	DirectionID        int       `json:"direction_id"`
	DepartureTimestamp time.Time `json:"stop_timestamp"`
}

// NewStopEvent builds the persisted event for an update
func NewStopEvent(u VehicleUpdate) StopEvent {
	return StopEvent{
		StopID:             u.StopID,
		RouteID:            u.RouteID,
		TripIDWithDate:     TripIDWithDate(u.TripID, u.UpdatedAt),
		DirectionID:        u.DirectionID,
		DepartureTimestamp: u.UpdatedAt,
	}
}

// TripIDWithDate appends the service date, taken in the timestamp's own
// offset, to a raw trip id.
func TripIDWithDate(tripID string, updatedAt time.Time) string {
	return tripID + updatedAt.Format(ServiceDateLayout)
}

// EventKey is the natural key of a StopEvent
type EventKey struct {
	StopID         string
	RouteID        string
	TripIDWithDate string
}

func (e StopEvent) Key() EventKey {
	return EventKey{StopID: e.StopID, RouteID: e.RouteID, TripIDWithDate: e.TripIDWithDate}
}
