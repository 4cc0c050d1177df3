package models

// RouteEndpoints holds the first and effective-last stop of one route direction
type RouteEndpoints struct {
	FirstStopID string `json:"first"`
	LastStopID  string `json:"last"`
}

// RouteStops maps direction id to its endpoints
type RouteStops map[int]RouteEndpoints
