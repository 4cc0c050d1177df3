package maintenance

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mbtatracker-data/internal/common/logger"
)

// EventCounter reports stored stop events per route
type EventCounter interface {
	CountByRoute(ctx context.Context) (map[string]int64, error)
}

// RouteCount is the stored event total for one route
type RouteCount struct {
	RouteID string `json:"route_id"`
	Events  int64  `json:"events"`
}

// Report is the result of one store summary
type Report struct {
	Routes []RouteCount `json:"routes"`
	Total  int64        `json:"total"`
	Delta  int64        `json:"delta"`
}

// Maintenance summarizes the event store. It only reads; retention is
// handled outside the service.
type Maintenance struct {
	counter   EventCounter
	logger    logger.Logger
	mu        sync.Mutex
	lastTotal int64
	reported  bool
}

func New(counter EventCounter, logger logger.Logger) *Maintenance {
	return &Maintenance{
		counter: counter,
		logger:  logger,
	}
}

// ReportEventCounts logs per-route totals and the growth since the previous
// report. A report with no growth is logged at Warn.
func (m *Maintenance) ReportEventCounts(ctx context.Context) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts, err := m.counter.CountByRoute(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting stop events: %w", err)
	}

	report := &Report{Routes: make([]RouteCount, 0, len(counts))}
	for routeID, n := range counts {
		report.Routes = append(report.Routes, RouteCount{RouteID: routeID, Events: n})
		report.Total += n
	}
	sort.Slice(report.Routes, func(i, j int) bool {
		return report.Routes[i].RouteID < report.Routes[j].RouteID
	})

	if m.reported {
		report.Delta = report.Total - m.lastTotal
	} else {
		report.Delta = report.Total
	}
	m.lastTotal = report.Total

	for _, rc := range report.Routes {
		m.logger.Debug("Stored stop events", "route_id", rc.RouteID, "events", rc.Events)
	}

	if m.reported && report.Delta == 0 {
		m.logger.Warn("No new stop events since last report", "total", report.Total)
	} else {
		m.logger.Info("Stop event store summary",
			"routes", len(report.Routes),
			"total", report.Total,
			"new", report.Delta)
	}
	m.reported = true

	return report, nil
}
