package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/habsync/internal/item"
)

// DefaultInterval is the periodic poll interval.
const DefaultInterval = 30 * time.Second

// pollKey is the single-flight key shared by every poll.
const pollKey = "poll"

// Lister fetches the full item set. Implemented by openhab.Client.
type Lister interface {
	ListItems(ctx context.Context) ([]item.Record, error)
}

// Versioner fetches the controller version. Implemented by openhab.Client.
type Versioner interface {
	Version(ctx context.Context) (string, error)
}

// Stream delivers staleness signals until ctx is cancelled. Implemented by
// eventstream.Client. Run must release every resource before returning.
type Stream interface {
	Run(ctx context.Context, signal func())
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Update describes one completed poll. Exactly one of Err and a fresh
// Snapshot is meaningful: on failure Snapshot is the retained previous one.
type Update struct {
	Snapshot *item.Snapshot
	Err      error
	Online   bool
	Duration time.Duration
	At       time.Time
}

// Options configures a Coordinator.
type Options struct {
	// Lister is required.
	Lister Lister

	// Versioner is optional; when set the version is fetched once and cached.
	Versioner Versioner

	// Stream is optional; it is started after the first non-empty poll.
	Stream Stream

	// Interval between periodic polls. Defaults to DefaultInterval.
	Interval time.Duration

	// Cooldown of the refresh debouncer. Defaults to DefaultCooldown.
	Cooldown time.Duration
}

// Coordinator owns the current snapshot and serialises refreshes.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Listeners run on the polling goroutine and must not call Poll or
//     Shutdown.
type Coordinator struct {
	lister    Lister
	versioner Versioner
	stream    Stream
	interval  time.Duration
	debouncer *Debouncer
	logger    Logger

	// ctx spans the coordinator's life; Shutdown cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	group    singleflight.Group
	snapshot atomic.Pointer[item.Snapshot]
	online   atomic.Bool
	healthy  atomic.Bool
	polls    atomic.Uint64
	failures atomic.Uint64

	mu            sync.Mutex
	closed        bool
	started       bool
	streamStarted bool
	version       string
	lastErr       error
	listeners     map[int]func(Update)
	nextListener  int
	wg            sync.WaitGroup

	// inflight tracks the single-flight worker, which outlives a Poll
	// caller whose context ends first.
	inflight sync.WaitGroup
}

// New creates a coordinator. Nothing runs until Start or Poll is called.
func New(opts Options) (*Coordinator, error) {
	if opts.Lister == nil {
		return nil, ErrNoLister
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		lister:    opts.Lister,
		versioner: opts.Versioner,
		stream:    opts.Stream,
		interval:  opts.Interval,
		logger:    noopLogger{},
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[int]func(Update)),
	}
	c.debouncer = NewDebouncer(opts.Cooldown, c.RequestRefresh)
	c.snapshot.Store(item.Empty())
	return c, nil
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// AddListener registers fn to be called after every completed poll and
// returns a function that removes it.
func (c *Coordinator) AddListener(fn func(Update)) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Start launches the periodic polling loop, polling once immediately.
// Calling Start again, or after Shutdown, is a no-op.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.started {
		return
	}
	c.started = true
	c.wg.Add(1)
	go c.loop()
}

func (c *Coordinator) loop() {
	defer c.wg.Done()

	t := time.NewTimer(0)
	defer t.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			_, _ = c.Poll(c.ctx) //nolint:errcheck // failures are logged and sent to listeners
			t.Reset(c.interval)
		}
	}
}

// Poll runs a refresh, or joins the one already in flight, and returns the
// resulting snapshot.
//
// Returns:
//   - *item.Snapshot: the newly published snapshot
//   - error: ErrUpdateFailed (wrapping the cause) with the previous snapshot
//     left in place, ErrStopped after Shutdown, or ctx.Err()
func (c *Coordinator) Poll(ctx context.Context) (*item.Snapshot, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrStopped
	}
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	ch := c.group.DoChan(pollKey, func() (any, error) {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrStopped
		}
		c.inflight.Add(1)
		c.mu.Unlock()
		defer c.inflight.Done()

		return c.refresh()
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		snap, _ := res.Val.(*item.Snapshot) //nolint:errcheck // refresh only returns snapshots
		return snap, nil
	}
}

// RequestRefresh schedules a poll in the background. If a poll is already
// in flight the request joins it. It is a no-op after Shutdown.
func (c *Coordinator) RequestRefresh() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		_, _ = c.Poll(c.ctx) //nolint:errcheck // failures are logged and sent to listeners
	}()
}

// Signal marks the snapshot as possibly stale. Bursts are coalesced by the
// debouncer into one RequestRefresh.
func (c *Coordinator) Signal() {
	c.debouncer.Signal()
}

// refresh performs one remote listing. It only ever runs inside the
// single-flight group.
func (c *Coordinator) refresh() (*item.Snapshot, error) {
	start := time.Now()

	if err := c.ensureVersion(); err != nil {
		return nil, c.fail(start, err)
	}

	records, err := c.lister.ListItems(c.ctx)
	if err != nil {
		return nil, c.fail(start, err)
	}

	snap := item.NewSnapshot(records, time.Now())
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return nil, ErrStopped
	}
	c.snapshot.Store(snap)
	c.mu.Unlock()
	c.online.Store(snap.Len() > 0)
	c.polls.Add(1)

	if !c.healthy.Swap(true) {
		c.mu.Lock()
		recovered := c.lastErr != nil
		c.lastErr = nil
		c.mu.Unlock()
		if recovered {
			c.logger.Info("fetching items recovered")
		}
	}
	c.logger.Debug("items refreshed", "count", snap.Len(), "duration", time.Since(start))

	if snap.Len() > 0 {
		c.startStream()
	}

	c.notify(Update{
		Snapshot: snap,
		Online:   c.online.Load(),
		Duration: time.Since(start),
		At:       snap.FetchedAt(),
	})
	return snap, nil
}

// fail records a failed poll. Polls cut short by Shutdown are not failures.
func (c *Coordinator) fail(start time.Time, cause error) error {
	if c.ctx.Err() != nil {
		return ErrStopped
	}

	err := fmt.Errorf("%w: %w", ErrUpdateFailed, cause)
	c.failures.Add(1)

	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	if c.healthy.Swap(false) || c.failures.Load() == 1 {
		c.logger.Warn("error fetching items", "error", cause)
	} else {
		c.logger.Debug("error fetching items", "error", cause)
	}

	c.notify(Update{
		Snapshot: c.snapshot.Load(),
		Err:      err,
		Online:   c.online.Load(),
		Duration: time.Since(start),
		At:       time.Now(),
	})
	return err
}

func (c *Coordinator) ensureVersion() error {
	if c.versioner == nil {
		return nil
	}
	c.mu.Lock()
	have := c.version != ""
	c.mu.Unlock()
	if have {
		return nil
	}

	v, err := c.versioner.Version(c.ctx)
	if err != nil {
		return fmt.Errorf("fetching version: %w", err)
	}

	c.mu.Lock()
	c.version = v
	c.mu.Unlock()
	c.logger.Info("connected to openHAB", "version", v)
	return nil
}

// startStream launches the event stream once. Later calls are no-ops.
func (c *Coordinator) startStream() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil || c.streamStarted || c.closed {
		return
	}
	c.streamStarted = true
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.stream.Run(c.ctx, c.debouncer.Signal)
	}()
	c.logger.Info("event stream started")
}

// notify calls every listener. Nothing is delivered once Shutdown has
// cancelled the coordinator.
func (c *Coordinator) notify(u Update) {
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	fns := make([]func(Update), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(u)
	}
}

// Current returns the last published snapshot without blocking. Before the
// first successful poll it is empty, never nil.
func (c *Coordinator) Current() *item.Snapshot {
	return c.snapshot.Load()
}

// IsOnline reports whether the last successful poll returned any items.
func (c *Coordinator) IsOnline() bool {
	return c.online.Load()
}

// LastUpdateSuccess reports whether the most recent poll succeeded.
func (c *Coordinator) LastUpdateSuccess() bool {
	return c.healthy.Load()
}

// LastError returns the error of the most recent poll, or nil.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Version returns the cached controller version, or "" before it is known.
func (c *Coordinator) Version() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// StreamStarted reports whether the event stream has been launched.
func (c *Coordinator) StreamStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamStarted
}

// Stats returns poll counters: successful polls and failed polls.
func (c *Coordinator) Stats() (polls, failures uint64) {
	return c.polls.Load(), c.failures.Load()
}

// Shutdown stops the debouncer, cancels the event stream and in-flight
// polls, and waits for all background work, including a listener still
// running for a poll that started before Shutdown. Later Poll calls return
// ErrStopped and RequestRefresh does nothing. Safe to call more than once.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.debouncer.Shutdown()
	c.cancel()
	c.wg.Wait()
	c.inflight.Wait()
	c.logger.Info("coordinator stopped")
}

// IsStopped reports whether err means the coordinator was shut down.
func IsStopped(err error) bool {
	return errors.Is(err, ErrStopped)
}
