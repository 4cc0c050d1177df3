package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/mbtatracker-data/internal/common/config"
	"github.com/mbtatracker-data/internal/common/logger"
)

const (
	HeaderAPIKey = "x-api-key"
	UserAgent    = "mbtatracker-data/1.0"

	EventUpdate = "update"
	EventReset  = "reset"
	EventAdd    = "add"
	EventRemove = "remove"
)

// ErrStreamEnded is returned when the server closes a stream that should
// never end; it triggers a reconnect like any other connection failure.
var ErrStreamEnded = errors.New("vehicle stream ended")

// State of the stream connection
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateStreaming
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateTerminating:
		return "terminating"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// StatusError is a non-2xx response to the stream request
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("HTTP error: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// HandlerError carries an error returned by the update handler. Handlers only
// return errors that must stop ingestion, so it ends Run without a retry.
type HandlerError struct {
	Err error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handling vehicle update: %v", e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Handler receives the data of each `update` event, in delivery order
type Handler func(ctx context.Context, data []byte) error

type Consumer struct {
	url        string
	apiKey     string
	httpClient *http.Client
	logger     logger.Logger
	backoff    *Backoff
	timer      backoff.Timer

	state    atomic.Int32
	failures atomic.Int64
	connects atomic.Int64

	mu        sync.Mutex
	isRunning bool
}

type Option func(*Consumer)

// WithHTTPClient replaces the default streaming client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Consumer) { c.httpClient = client }
}

// WithTimer replaces the timer used for the wait between attempts
func WithTimer(timer backoff.Timer) Option {
	return func(c *Consumer) { c.timer = timer }
}

// WithBackoff replaces the policy built from config
func WithBackoff(b *Backoff) Option {
	return func(c *Consumer) { c.backoff = b }
}

func NewConsumer(cfg config.StreamConfig, apiKey string, log logger.Logger, opts ...Option) *Consumer {
	c := &Consumer{
		url:        cfg.StreamURL(),
		apiKey:     apiKey,
		httpClient: newStreamingClient(),
		logger:     log,
		backoff:    NewBackoff(cfg.Backoff),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newStreamingClient has no overall timeout: the stream is meant to stay
// open and may be quiet for long stretches. Cancellation comes from the
// request context.
func newStreamingClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			MaxIdleConns:          2,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Run connects and streams until ctx is cancelled or the handler fails.
// Connection failures, non-2xx responses and stream ends are retried with
// backoff. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return fmt.Errorf("consumer is already running")
	}
	c.isRunning = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.isRunning = false
		c.mu.Unlock()
	}()

	operation := func() error {
		err := c.stream(ctx, handler)
		var handlerErr *HandlerError
		switch {
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case errors.As(err, &handlerErr):
			return backoff.Permanent(handlerErr)
		}
		return err
	}

	// NextBackOff has already counted the failure when notify runs, so the
	// failed attempt is one behind the counter.
	notify := func(err error, delay time.Duration) {
		failed := c.backoff.Attempt()
		c.failures.Store(int64(failed))
		c.logger.Warn("Vehicle stream disconnected, reconnecting",
			"error", err,
			"attempt", failed-1,
			"delay", delay.String())
	}

	err := backoff.RetryNotifyWithTimer(operation, backoff.WithContext(c.backoff, ctx), notify, c.timer)
	c.setState(StateTerminating)

	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		c.logger.Info("Vehicle stream consumer stopped")
		return nil
	}
	return err
}

// stream runs one connection from request to termination
func (c *Consumer) stream(ctx context.Context, handler Handler) error {
	log := c.logger.With("session_id", uuid.NewString())

	c.setState(StateConnecting)
	defer c.setState(StateDisconnected)

	log.Info("Connecting to vehicle stream", "url", c.url, "attempt", c.backoff.Attempt())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set(HeaderAPIKey, c.apiKey)
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	c.backoff.Reset()
	c.failures.Store(0)
	c.connects.Add(1)
	c.setState(StateStreaming)
	log.Info("Vehicle stream established", "status", resp.StatusCode)

	reader := newEventReader(resp.Body)
	var received int64
	for {
		ev, err := reader.Next()
		if err == io.EOF {
			log.Warn("Vehicle stream closed by server", "events", received)
			return ErrStreamEnded
		}
		if err != nil {
			return fmt.Errorf("reading stream: %w", err)
		}
		received++

		switch ev.Type {
		case EventUpdate:
			if err := handler(ctx, []byte(ev.Data)); err != nil {
				return &HandlerError{Err: err}
			}
		case EventReset, EventAdd, EventRemove:
			log.Debug("Ignoring vehicle stream event", "event", ev.Type, "bytes", len(ev.Data))
		default:
			log.Debug("Unknown vehicle stream event", "event", ev.Type)
		}
	}
}

func (c *Consumer) setState(s State) {
	c.state.Store(int32(s))
}

// State returns the current connection state
func (c *Consumer) State() State {
	return State(c.state.Load())
}

// Failures is the number of consecutive failed attempts since the last
// established stream
func (c *Consumer) Failures() int64 {
	return c.failures.Load()
}

// Connects counts streams established since start
func (c *Consumer) Connects() int64 {
	return c.connects.Load()
}

func (c *Consumer) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isRunning
}
