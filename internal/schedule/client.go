package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mbtatracker-data/internal/common/config"
	"github.com/mbtatracker-data/internal/common/logger"
	"github.com/mbtatracker-data/pkg/mbta-realtime/models"
)

const (
	httpTimeout = 30 * time.Second
	mediaType   = "application/vnd.api+json"
)

// Directions queried for every route
var Directions = []int{0, 1}

// Lookup resolves the first and effective-last stop of each route direction
type Lookup interface {
	FirstLastStops(ctx context.Context, routeIDs []string) (map[string]models.RouteStops, error)
}

type Client struct {
	baseURL      string
	apiKey       string
	lastStopMode string
	client       *http.Client
	logger       logger.Logger
}

var _ Lookup = (*Client)(nil)

func NewClient(cfg config.ScheduleConfig, apiKey string, log logger.Logger) *Client {
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       apiKey,
		lastStopMode: cfg.LastStopMode,
		client: &http.Client{
			Timeout: httpTimeout,
		},
		logger: log,
	}
}

type scheduleResponse struct {
	Data []scheduleResource `json:"data"`
}

type scheduleResource struct {
	Attributes struct {
		StopSequence int `json:"stop_sequence"`
	} `json:"attributes"`
	Relationships struct {
		Stop struct {
			Data *struct {
				ID string `json:"id"`
			} `json:"data"`
		} `json:"stop"`
	} `json:"relationships"`
}

func (r scheduleResource) stopID() string {
	if r.Relationships.Stop.Data == nil {
		return ""
	}
	return r.Relationships.Stop.Data.ID
}

// FirstLastStops queries the schedules endpoint for every route and direction.
// In second_to_last mode the last stop is replaced by the stop one sequence
// earlier, since a vehicle's stop does not change after it departs the
// terminus.
func (c *Client) FirstLastStops(ctx context.Context, routeIDs []string) (map[string]models.RouteStops, error) {
	result := make(map[string]models.RouteStops, len(routeIDs))

	for _, routeID := range routeIDs {
		stops := make(models.RouteStops, len(Directions))
		for _, direction := range Directions {
			endpoints, err := c.routeEndpoints(ctx, routeID, direction)
			if err != nil {
				return nil, fmt.Errorf("route %s direction %d: %w", routeID, direction, err)
			}
			stops[direction] = endpoints
		}
		result[routeID] = stops
	}

	return result, nil
}

func (c *Client) routeEndpoints(ctx context.Context, routeID string, direction int) (models.RouteEndpoints, error) {
	var endpoints models.RouteEndpoints

	schedules, err := c.fetch(ctx, url.Values{
		"filter[route]":         {routeID},
		"filter[direction_id]":  {strconv.Itoa(direction)},
		"filter[stop_sequence]": {"first,last"},
		"page[limit]":           {"2"},
	})
	if err != nil {
		return endpoints, err
	}

	for _, s := range schedules {
		seq := s.Attributes.StopSequence
		switch {
		case seq == 1:
			endpoints.FirstStopID = s.stopID()
		case seq > 1 && c.lastStopMode == config.LastStopModeLast:
			endpoints.LastStopID = s.stopID()
		case seq > 1:
			prev, err := c.fetch(ctx, url.Values{
				"filter[route]":         {routeID},
				"filter[direction_id]":  {strconv.Itoa(direction)},
				"filter[stop_sequence]": {strconv.Itoa(seq - 1)},
				"page[limit]":           {"1"},
			})
			if err != nil {
				return endpoints, err
			}
			if len(prev) == 0 {
				return endpoints, fmt.Errorf("no schedule at stop_sequence %d", seq-1)
			}
			endpoints.LastStopID = prev[0].stopID()
		default:
			return endpoints, fmt.Errorf("stop_sequence %d out of range for stop %s", seq, s.stopID())
		}
	}

	c.logger.Debug("Resolved route endpoints",
		"route_id", routeID,
		"direction_id", direction,
		"first", endpoints.FirstStopID,
		"last", endpoints.LastStopID)

	return endpoints, nil
}

func (c *Client) fetch(ctx context.Context, params url.Values) ([]scheduleResource, error) {
	reqURL := c.baseURL + "/schedules?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", mediaType)
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("Failed to execute request", "url", reqURL, "error", err)
		return nil, fmt.Errorf("executing request to %s: %w", reqURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Error("API returned error status",
			"status_code", resp.StatusCode,
			"url", reqURL,
			"response_body", string(body))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result scheduleResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return result.Data, nil
}
