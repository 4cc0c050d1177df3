package mbta_realtime

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mbtatracker-data/internal/common/config"
	"github.com/mbtatracker-data/internal/common/logger"
	"github.com/mbtatracker-data/internal/mbta-realtime/consumer"
	"github.com/mbtatracker-data/internal/mbta-realtime/detector"
	"github.com/mbtatracker-data/internal/mbta-realtime/processor"
	"github.com/mbtatracker-data/internal/mbta-realtime/store"
)

// Manager wires the stream consumer to the parse, detect and persist
// pipeline for the tracked routes.
type Manager struct {
	config    config.StreamConfig
	apiKey    string
	logger    logger.Logger
	store     *store.Store
	consumer  *consumer.Consumer
	processor *processor.Processor
	mu        sync.RWMutex
	isRunning bool
}

// Status is a snapshot for health reporting. It never reads vehicle state,
// which belongs to the ingestion goroutine.
type Status struct {
	Running        bool   `json:"running"`
	State          string `json:"state"`
	FailedAttempts int64  `json:"failed_attempts"`
	Connects       int64  `json:"connects"`
	TrackedRoutes  int    `json:"tracked_routes"`
	processor.ProcessorStats
}

func NewManager(cfg config.StreamConfig, apiKey string, s *store.Store, log logger.Logger, opts ...consumer.Option) *Manager {
	det := detector.New(cfg.TrackedRoutes, nil)
	return &Manager{
		config:    cfg,
		apiKey:    apiKey,
		logger:    log,
		store:     s,
		consumer:  consumer.NewConsumer(cfg, apiKey, log, opts...),
		processor: processor.NewProcessor(s, det, log),
	}
}

// Run prepares the store and ingests until ctx is cancelled (nil) or a fatal
// error occurs.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return fmt.Errorf("MBTA realtime manager is already running")
	}
	if err := m.validateConfig(); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("invalid configuration: %w", err)
	}
	m.isRunning = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.isRunning = false
		m.mu.Unlock()
	}()

	if err := m.store.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	m.logger.Info("MBTA realtime manager started",
		"tracked_routes", strings.Join(m.config.TrackedRoutes, ","),
		"stream_routes", strings.Join(m.config.StreamRoutes, ","))

	if err := m.consumer.Run(ctx, m.processor.HandleUpdate); err != nil {
		return fmt.Errorf("ingestion stopped: %w", err)
	}

	m.logger.Info("MBTA realtime manager stopped")
	return nil
}

func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}

// Status is safe to call from any goroutine
func (m *Manager) Status() Status {
	return Status{
		Running:        m.IsRunning(),
		State:          m.consumer.State().String(),
		FailedAttempts: m.consumer.Failures(),
		Connects:       m.consumer.Connects(),
		TrackedRoutes:  len(m.config.TrackedRoutes),
		ProcessorStats: m.processor.Stats(),
	}
}

// Streaming reports whether a stream is currently established
func (m *Manager) Streaming() bool {
	return m.consumer.State() == consumer.StateStreaming
}

func (m *Manager) validateConfig() error {
	if m.apiKey == "" {
		return fmt.Errorf("API key is required")
	}

	if len(m.config.TrackedRoutes) == 0 {
		return fmt.Errorf("at least one tracked route must be configured")
	}

	if len(m.config.StreamRoutes) == 0 {
		return fmt.Errorf("at least one stream route must be configured")
	}

	if !strings.Contains(m.config.URLTemplate, config.RoutesPlaceholder) {
		return fmt.Errorf("stream url template must contain %s", config.RoutesPlaceholder)
	}

	if m.config.Backoff.Base <= 0 || m.config.Backoff.Max < m.config.Backoff.Base {
		return fmt.Errorf("backoff base must be positive and not exceed max")
	}

	return nil
}
