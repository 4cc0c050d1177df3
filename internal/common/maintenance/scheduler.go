package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mbtatracker-data/internal/common/logger"
)

// ReportScheduler runs the store summary periodically
type ReportScheduler struct {
	maintenance *Maintenance
	logger      logger.Logger
	config      SchedulerConfig
	isRunning   bool
	mu          sync.RWMutex
	lastReport  *Report
	lastRun     time.Time
}

// SchedulerConfig contains configuration for the report scheduler
type SchedulerConfig struct {
	ReportInterval time.Duration // zero disables reporting
	InitialDelay   time.Duration
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		ReportInterval: 15 * time.Minute,
		InitialDelay:   1 * time.Minute,
	}
}

func NewReportScheduler(counter EventCounter, logger logger.Logger, config SchedulerConfig) *ReportScheduler {
	return &ReportScheduler{
		maintenance: New(counter, logger),
		logger:      logger,
		config:      config,
	}
}

// Run reports on the configured interval until ctx is cancelled
func (s *ReportScheduler) Run(ctx context.Context) error {
	if s.config.ReportInterval <= 0 {
		s.logger.Info("Store reporting disabled")
		return nil
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("report scheduler is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	s.logger.Info("Starting report scheduler",
		"interval", s.config.ReportInterval,
		"initial_delay", s.config.InitialDelay)

	ticker := time.NewTicker(s.config.ReportInterval)
	defer ticker.Stop()

	initialDelay := time.NewTimer(s.config.InitialDelay)
	defer initialDelay.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Report scheduler stopping")
			return nil

		case <-initialDelay.C:
			s.performReport(ctx)

		case <-ticker.C:
			s.performReport(ctx)
		}
	}
}

func (s *ReportScheduler) performReport(ctx context.Context) {
	start := time.Now()
	report, err := s.maintenance.ReportEventCounts(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("Store report failed", "error", err, "duration", time.Since(start))
		}
		return
	}

	s.mu.Lock()
	s.lastReport = report
	s.lastRun = start
	s.mu.Unlock()
}

// TriggerReport runs one report immediately
func (s *ReportScheduler) TriggerReport(ctx context.Context) (*Report, error) {
	s.logger.Info("Manual store report triggered")
	report, err := s.maintenance.ReportEventCounts(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastReport = report
	s.lastRun = time.Now()
	s.mu.Unlock()
	return report, nil
}

func (s *ReportScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus returns the current status of the report scheduler
func (s *ReportScheduler) GetStatus() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := map[string]interface{}{
		"is_running":      s.isRunning,
		"report_interval": s.config.ReportInterval.String(),
	}
	if s.lastReport != nil {
		status["last_run"] = s.lastRun.UTC().Format(time.RFC3339)
		status["total_events"] = s.lastReport.Total
		status["new_events"] = s.lastReport.Delta
	}
	return status
}
