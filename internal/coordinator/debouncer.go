package coordinator

import (
	"sync"
	"time"
)

// DefaultCooldown is the quiet period before a debounced refresh fires.
const DefaultCooldown = 500 * time.Millisecond

// Debouncer collapses bursts of Signal calls into one call of fn, made once
// no Signal has arrived for the cooldown.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - After Shutdown returns, fn is never called again.
type Debouncer struct {
	cooldown time.Duration
	fn       func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
	firing  sync.WaitGroup
}

// NewDebouncer creates a debouncer that calls fn after cooldown of quiet.
// A non-positive cooldown uses DefaultCooldown.
func NewDebouncer(cooldown time.Duration, fn func()) *Debouncer {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Debouncer{cooldown: cooldown, fn: fn}
}

// Signal (re)starts the cooldown timer. It is a no-op after Shutdown.
func (d *Debouncer) Signal() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.cooldown, func() { d.fire(gen) })
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// fire runs fn unless the timer was superseded or the debouncer stopped.
// A stopped timer whose callback had already started is caught by the
// generation check.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.firing.Add(1)
	d.mu.Unlock()

	defer d.firing.Done()
	d.fn()
}

// Shutdown cancels any pending call and waits for a call already running.
// It is safe to call more than once.
func (d *Debouncer) Shutdown() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	d.firing.Wait()
}
