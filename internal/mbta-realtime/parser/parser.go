package parser

import (
	"encoding/json"
	"fmt"

	"github.com/mbtatracker-data/pkg/mbta-realtime/models"
)

// ParseError describes a stream message that could not become a VehicleUpdate.
// Callers log it and drop the message.
type ParseError struct {
	Raw    string
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed vehicle update: %s", e.Reason)
	}
	return fmt.Sprintf("malformed vehicle update: %s: %s", e.Field, e.Reason)
}

// vehicleResource mirrors the JSON:API vehicle object sent on `update` events.
// Pointers distinguish absent and null members from zero values.
type vehicleResource struct {
	ID         *string `json:"id"`
	Attributes *struct {
		CurrentStatus *string          `json:"current_status"`
		DirectionID   *int             `json:"direction_id"`
		UpdatedAt     *models.FeedTime `json:"updated_at"`
	} `json:"attributes"`
	Relationships *struct {
		Route *relationship `json:"route"`
		Trip  *relationship `json:"trip"`
		Stop  *relationship `json:"stop"`
	} `json:"relationships"`
}

type relationship struct {
	Data *struct {
		ID *string `json:"id"`
	} `json:"data"`
}

func (r *relationship) id() string {
	if r == nil || r.Data == nil || r.Data.ID == nil {
		return ""
	}
	return *r.Data.ID
}

// ParseVehicleUpdate extracts a VehicleUpdate from the data of one `update`
// event. It has no side effects.
func ParseVehicleUpdate(data []byte) (models.VehicleUpdate, error) {
	var update models.VehicleUpdate

	fail := func(field, reason string) (models.VehicleUpdate, error) {
		return models.VehicleUpdate{}, &ParseError{Raw: string(data), Field: field, Reason: reason}
	}

	var res vehicleResource
	if err := json.Unmarshal(data, &res); err != nil {
		return fail("", err.Error())
	}

	if res.ID == nil || *res.ID == "" {
		return fail("id", "missing")
	}
	update.VehicleID = *res.ID

	if res.Attributes == nil {
		return fail("attributes", "missing")
	}
	attrs := res.Attributes

	if attrs.CurrentStatus == nil || *attrs.CurrentStatus == "" {
		return fail("attributes.current_status", "missing")
	}
	update.CurrentStatus = models.VehicleStatus(*attrs.CurrentStatus)

	if attrs.DirectionID == nil {
		return fail("attributes.direction_id", "missing")
	}
	if *attrs.DirectionID != 0 && *attrs.DirectionID != 1 {
		return fail("attributes.direction_id", fmt.Sprintf("expected 0 or 1, got %d", *attrs.DirectionID))
	}
	update.DirectionID = *attrs.DirectionID

	if attrs.UpdatedAt == nil || !attrs.UpdatedAt.Valid {
		return fail("attributes.updated_at", "missing")
	}
	update.UpdatedAt = attrs.UpdatedAt.Time

	if res.Relationships == nil {
		return fail("relationships", "missing")
	}
	rels := res.Relationships

	if update.RouteID = rels.Route.id(); update.RouteID == "" {
		return fail("relationships.route.data.id", "missing")
	}
	if update.TripID = rels.Trip.id(); update.TripID == "" {
		return fail("relationships.trip.data.id", "missing")
	}
	if update.StopID = rels.Stop.id(); update.StopID == "" {
		return fail("relationships.stop.data.id", "missing")
	}

	return update, nil
}
