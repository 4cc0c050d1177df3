package processor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mbtatracker-data/internal/common/logger"
	"github.com/mbtatracker-data/internal/mbta-realtime/detector"
	"github.com/mbtatracker-data/internal/mbta-realtime/parser"
	"github.com/mbtatracker-data/pkg/mbta-realtime/models"
)

// EventWriter persists stop events; a false result means the key already
// existed.
type EventWriter interface {
	Write(ctx context.Context, event models.StopEvent) (bool, error)
}

// Processor runs parse, detect and persist for each vehicle update. It is
// driven by a single stream connection at a time and owns the detector's
// vehicle state.
type Processor struct {
	writer   EventWriter
	detector *detector.Detector
	logger   logger.Logger
	stats    counters
}

type counters struct {
	updates     atomic.Int64
	parseErrors atomic.Int64
	events      atomic.Int64
	duplicates  atomic.Int64
	lastUpdate  atomic.Int64
}

// ProcessorStats is a snapshot of processing counters
type ProcessorStats struct {
	ProcessedUpdates  int64     `json:"processed_updates"`
	ParseErrors       int64     `json:"parse_errors"`
	StopEvents        int64     `json:"stop_events"`
	DuplicateEvents   int64     `json:"duplicate_events"`
	LastProcessedTime time.Time `json:"last_processed_time"`
}

func NewProcessor(writer EventWriter, det *detector.Detector, log logger.Logger) *Processor {
	return &Processor{
		writer:   writer,
		detector: det,
		logger:   log,
	}
}

// HandleUpdate processes the data of one `update` event. Malformed payloads
// are logged and dropped. The only error returned is a failed store write,
// which the caller treats as fatal.
func (p *Processor) HandleUpdate(ctx context.Context, data []byte) error {
	p.stats.updates.Add(1)
	p.stats.lastUpdate.Store(time.Now().UnixNano())

	update, err := parser.ParseVehicleUpdate(data)
	if err != nil {
		p.stats.parseErrors.Add(1)
		var parseErr *parser.ParseError
		if errors.As(err, &parseErr) {
			p.logger.Warn("Discarding malformed vehicle update",
				"field", parseErr.Field,
				"reason", parseErr.Reason,
				"raw", parseErr.Raw)
		} else {
			p.logger.Warn("Discarding malformed vehicle update", "error", err)
		}
		return nil
	}

	event, ok := p.detector.Observe(update)
	if !ok {
		return nil
	}

	inserted, err := p.writer.Write(ctx, event)
	if err != nil {
		if ctx.Err() != nil {
			// shutting down; the caller treats this as a clean stop
			return fmt.Errorf("persisting stop event: %w", err)
		}
		p.logger.Error("Failed to persist stop event",
			"vehicle_id", update.VehicleID,
			"stop_id", event.StopID,
			"route_id", event.RouteID,
			"trip_id", event.TripIDWithDate,
			"error", err)
		return fmt.Errorf("persisting stop event: %w", err)
	}

	if !inserted {
		p.stats.duplicates.Add(1)
		p.logger.Debug("Stop event already recorded",
			"stop_id", event.StopID,
			"route_id", event.RouteID,
			"trip_id", event.TripIDWithDate)
		return nil
	}

	p.stats.events.Add(1)
	p.logger.Info("Vehicle departed stop",
		"vehicle_id", update.VehicleID,
		"stop_id", event.StopID,
		"route_id", event.RouteID,
		"direction_id", event.DirectionID,
		"timestamp", event.DepartureTimestamp.Format(time.RFC3339))

	return nil
}

// Stats returns a snapshot of the counters; safe to call from any goroutine
func (p *Processor) Stats() ProcessorStats {
	stats := ProcessorStats{
		ProcessedUpdates: p.stats.updates.Load(),
		ParseErrors:      p.stats.parseErrors.Load(),
		StopEvents:       p.stats.events.Load(),
		DuplicateEvents:  p.stats.duplicates.Load(),
	}
	if ns := p.stats.lastUpdate.Load(); ns > 0 {
		stats.LastProcessedTime = time.Unix(0, ns).UTC()
	}
	return stats
}
