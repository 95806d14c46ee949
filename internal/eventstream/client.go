package eventstream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/nerrad567/habsync/internal/openhab"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultRetryDelay  = 5 * time.Second
	DefaultReadTimeout = 300 * time.Second

	// maxErrorBody bounds how much of a non-200 response is kept for logging.
	maxErrorBody = 4 << 10
)

// State is the connection state of the stream client.
type State int32

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateStreaming
	StateStopping
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Config configures a stream client.
type Config struct {
	// URL is the full events endpoint, usually openhab.Client.EventsURL().
	URL string

	// Auth is applied to every connection attempt.
	Auth openhab.Auth

	// RetryDelay is the fixed wait between a failure and the next attempt.
	RetryDelay time.Duration

	// ReadTimeout drops a connection that has been silent this long.
	ReadTimeout time.Duration

	// HTTPClient overrides the client used to open the feed. It must not
	// carry an overall Timeout, as the response body never ends.
	HTTPClient *http.Client
}

// Stats is a point-in-time copy of the client's counters.
type Stats struct {
	State     State     `json:"-"`
	StateName string    `json:"state"`
	Connects  uint64    `json:"connects"`
	Failures  uint64    `json:"failures"`
	Events    uint64    `json:"events"`
	Signals   uint64    `json:"signals"`
	Dropped   uint64    `json:"dropped"`
	LastError string    `json:"last_error,omitempty"`
	LastEvent time.Time `json:"last_event"`
}

// Client subscribes to the openHAB event feed and signals on item events.
//
// Thread Safety:
//   - Run must be called at most once at a time.
//   - State, Stats and the setters are safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	logger Logger

	state atomic.Int32

	connects atomic.Uint64
	failures atomic.Uint64
	events   atomic.Uint64
	signals  atomic.Uint64
	dropped  atomic.Uint64

	mu        sync.RWMutex
	lastError string
	lastEvent time.Time
	onEvent   func(Event)
	onState   func(State)
}

// New creates a stream client. It does not connect; call Run.
func New(cfg Config, logger Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: empty events URL", ErrTransport)
	}
	if err := cfg.Auth.Validate(); err != nil {
		return nil, err
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Client{cfg: cfg, http: hc, logger: logger}, nil
}

// SetOnEvent registers a callback invoked for every item event, after the
// stale signal has been raised. The callback runs on the stream goroutine
// and must not block.
func (c *Client) SetOnEvent(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = fn
}

// SetOnStateChange registers a callback invoked on every state transition.
func (c *Client) SetOnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Stats returns a copy of the client's counters.
func (c *Client) Stats() Stats {
	c.mu.RLock()
	lastErr, lastEvent := c.lastError, c.lastEvent
	c.mu.RUnlock()

	st := c.State()
	return Stats{
		State:     st,
		StateName: st.String(),
		Connects:  c.connects.Load(),
		Failures:  c.failures.Load(),
		Events:    c.events.Load(),
		Signals:   c.signals.Load(),
		Dropped:   c.dropped.Load(),
		LastError: lastErr,
		LastEvent: lastEvent,
	}
}

// Run connects to the feed and keeps it open until ctx is cancelled,
// calling signal once per item event. It reconnects after every failure,
// waiting RetryDelay between attempts, and returns only once the current
// connection has been released.
func (c *Client) Run(ctx context.Context, signal func()) {
	if signal == nil {
		signal = func() {}
	}
	defer c.setState(StateStopped)

	c.setState(StateConnecting)
	for {
		err := c.stream(ctx, signal)
		if ctx.Err() != nil {
			c.setState(StateStopping)
			c.logger.Info("event stream listener stopped")
			return
		}

		c.failures.Add(1)
		c.recordError(err)
		c.setState(StateConnecting)
		c.logger.Warn("event stream interrupted, reconnecting",
			"error", err,
			"retry_in", c.cfg.RetryDelay,
		)

		if !c.wait(ctx) {
			c.setState(StateStopping)
			c.logger.Info("event stream listener stopped")
			return
		}
	}
}

// wait sleeps for the retry delay. It returns false if ctx ended first.
func (c *Client) wait(ctx context.Context) bool {
	t := time.NewTimer(c.cfg.RetryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// stream runs one connection attempt to completion.
func (c *Client) stream(ctx context.Context, signal func()) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var timedOut atomic.Bool
	idle := time.AfterFunc(c.cfg.ReadTimeout, func() {
		timedOut.Store(true)
		cancel()
	})
	defer idle.Stop()

	req, err := http.NewRequestWithContext(connCtx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %w", ErrTransport, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", "habsync/1.0")
	c.cfg.Auth.Apply(req)

	resp, err := c.http.Do(req)
	if err != nil {
		if timedOut.Load() {
			return ErrReadTimeout
		}
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best effort, body is only logged
		io.Copy(io.Discard, resp.Body)                                 //nolint:errcheck // drain so the connection can be reused
		return fmt.Errorf("%w: %d: %s", ErrStatus, resp.StatusCode, body)
	}

	c.connects.Add(1)
	c.setState(StateStreaming)
	c.logger.Info("event stream connected", "url", c.cfg.URL)

	var parser frameParser
	reader := bufio.NewReader(resp.Body)
	for {
		line, readErr := reader.ReadString('\n')
		if len(line) > 0 {
			idle.Reset(c.cfg.ReadTimeout)
			c.consume(&parser, line, signal)
		}
		if readErr != nil {
			switch {
			case timedOut.Load():
				return ErrReadTimeout
			case errors.Is(readErr, io.EOF):
				return ErrEndOfStream
			default:
				return fmt.Errorf("%w: %w", ErrTransport, readErr)
			}
		}
	}
}

// consume feeds one line to the parser and dispatches a completed event.
func (c *Client) consume(p *frameParser, line string, signal func()) {
	if !utf8.ValidString(line) {
		c.dropped.Add(1)
		c.logger.Debug("dropping undecodable event line")
		return
	}

	ev, ok, err := p.feed(line)
	if err != nil {
		c.dropped.Add(1)
		c.logger.Debug("dropping malformed event data", "error", err)
		return
	}
	if !ok {
		return
	}

	c.events.Add(1)
	if ev.Kind == KindItemCommand {
		c.logger.Debug("item command received", "topic", ev.Topic)
	}
	if !ev.IsItemEvent() {
		return
	}

	c.signals.Add(1)
	c.mu.Lock()
	c.lastEvent = time.Now()
	onEvent := c.onEvent
	c.mu.Unlock()

	signal()
	if onEvent != nil {
		onEvent(ev)
	}
}

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	c.mu.RLock()
	fn := c.onState
	c.mu.RUnlock()
	if fn != nil {
		fn(s)
	}
}

func (c *Client) recordError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = err.Error()
}
