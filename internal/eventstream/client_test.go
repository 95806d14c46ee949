package eventstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/habsync/internal/openhab"
)

const itemFrame = "event: message\n" +
	`data: {"type":"ItemStateEvent","topic":"openhab/items/Kitchen_Light/state"}` + "\n\n"

const thingFrame = "event: message\n" +
	`data: {"type":"ThingUpdatedEvent","topic":"openhab/things/a/updated"}` + "\n\n"

var testAuth = openhab.Auth{Mode: openhab.AuthToken, Token: "secret"}

// streamServer starts a server whose handler is released on test cleanup
// before the server shuts down.
func streamServer(t *testing.T, h func(w http.ResponseWriter, r *http.Request, release <-chan struct{})) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h(w, r, release)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	return srv
}

func newTestClient(t *testing.T, url string, retry time.Duration) *Client {
	t.Helper()
	c, err := New(Config{URL: url, Auth: testAuth, RetryDelay: retry}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

// runClient starts Run and returns a stop function that cancels and waits.
func runClient(c *Client, signal func()) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, signal)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Auth: testAuth}, nil); err == nil {
		t.Error("New() with empty URL should fail")
	}
	if _, err := New(Config{URL: "http://x/rest/events"}, nil); !errors.Is(err, openhab.ErrInvalidAuth) {
		t.Errorf("New() without auth error = %v, want ErrInvalidAuth", err)
	}
	c := newTestClient(t, "http://x/rest/events", 0)
	if c.cfg.RetryDelay != DefaultRetryDelay || c.cfg.ReadTimeout != DefaultReadTimeout {
		t.Errorf("defaults not applied: %+v", c.cfg)
	}
	if c.State() != StateDisconnected {
		t.Errorf("initial State() = %v, want disconnected", c.State())
	}
}

func TestRun_SignalsOnItemEvents(t *testing.T) {
	var gotToken, gotAccept atomic.Value
	srv := streamServer(t, func(w http.ResponseWriter, r *http.Request, release <-chan struct{}) {
		gotToken.Store(r.Header.Get(openhab.TokenHeader))
		gotAccept.Store(r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, itemFrame, thingFrame, "data: {broken\n\n", itemFrame)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})

	var signals atomic.Int32
	var seen []Event
	var mu sync.Mutex
	c := newTestClient(t, srv.URL, time.Second)
	c.SetOnEvent(func(ev Event) {
		mu.Lock()
		seen = append(seen, ev)
		mu.Unlock()
	})

	stop := runClient(c, func() { signals.Add(1) })
	waitFor(t, "two signals", func() bool { return signals.Load() == 2 })

	if c.State() != StateStreaming {
		t.Errorf("State() = %v, want streaming", c.State())
	}
	stop()

	if c.State() != StateStopped {
		t.Errorf("State() after stop = %v, want stopped", c.State())
	}
	if gotToken.Load() != "secret" {
		t.Errorf("token header = %v", gotToken.Load())
	}
	if gotAccept.Load() != "text/event-stream" {
		t.Errorf("Accept header = %v", gotAccept.Load())
	}

	st := c.Stats()
	if st.Connects != 1 || st.Signals != 2 || st.Events != 3 || st.Dropped != 1 {
		t.Errorf("Stats() = %+v", st)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0].ItemName() != "Kitchen_Light" {
		t.Errorf("OnEvent saw %+v", seen)
	}
}

func TestRun_NonOKStatusRetriesAfterDelay(t *testing.T) {
	const retry = 80 * time.Millisecond

	var mu sync.Mutex
	var attempts []time.Time
	srv := streamServer(t, func(w http.ResponseWriter, r *http.Request, _ <-chan struct{}) {
		mu.Lock()
		attempts = append(attempts, time.Now())
		mu.Unlock()
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	c := newTestClient(t, srv.URL, retry)
	stop := runClient(c, nil)
	waitFor(t, "three attempts", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(attempts) >= 3
	})
	stop()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(attempts); i++ {
		if gap := attempts[i].Sub(attempts[i-1]); gap < retry {
			t.Errorf("attempt %d came %v after the previous one, want >= %v", i, gap, retry)
		}
	}
	st := c.Stats()
	if st.Connects != 0 {
		t.Errorf("Connects = %d, want 0", st.Connects)
	}
	if st.Failures < 3 || st.LastError == "" {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestRun_ReconnectsAfterEndOfStream(t *testing.T) {
	var hits atomic.Int32
	srv := streamServer(t, func(w http.ResponseWriter, r *http.Request, release <-chan struct{}) {
		n := hits.Add(1)
		fmt.Fprint(w, itemFrame)
		w.(http.Flusher).Flush()
		if n > 1 {
			select {
			case <-r.Context().Done():
			case <-release:
			}
		}
	})

	var signals atomic.Int32
	c := newTestClient(t, srv.URL, 20*time.Millisecond)
	stop := runClient(c, func() { signals.Add(1) })
	waitFor(t, "second connection", func() bool { return signals.Load() >= 2 })
	stop()

	st := c.Stats()
	if st.Connects != 2 {
		t.Errorf("Connects = %d, want 2", st.Connects)
	}
	if st.Failures != 1 {
		t.Errorf("Failures = %d, want 1", st.Failures)
	}
}

func TestRun_ReadTimeoutReconnects(t *testing.T) {
	var hits atomic.Int32
	srv := streamServer(t, func(w http.ResponseWriter, r *http.Request, release <-chan struct{}) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})

	c, err := New(Config{
		URL:         srv.URL,
		Auth:        testAuth,
		RetryDelay:  10 * time.Millisecond,
		ReadTimeout: 50 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	stop := runClient(c, nil)
	waitFor(t, "reconnect after idle timeout", func() bool { return hits.Load() >= 2 })
	stop()

	if st := c.Stats(); st.Failures == 0 {
		t.Errorf("Failures = 0 after read timeout")
	}
}

func TestRun_CancelDuringBackoff(t *testing.T) {
	srv := streamServer(t, func(w http.ResponseWriter, r *http.Request, _ <-chan struct{}) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := newTestClient(t, srv.URL, time.Hour)
	stop := runClient(c, nil)
	waitFor(t, "first failure", func() bool { return c.Stats().Failures == 1 })

	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation during backoff")
	}
}

func TestRun_StateTransitions(t *testing.T) {
	srv := streamServer(t, func(w http.ResponseWriter, r *http.Request, release <-chan struct{}) {
		fmt.Fprint(w, itemFrame)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})

	var mu sync.Mutex
	var states []State
	c := newTestClient(t, srv.URL, time.Second)
	c.SetOnStateChange(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	var signals atomic.Int32
	stop := runClient(c, func() { signals.Add(1) })
	waitFor(t, "signal", func() bool { return signals.Load() == 1 })
	stop()

	want := []State{StateConnecting, StateStreaming, StateStopping, StateStopped}
	mu.Lock()
	defer mu.Unlock()
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %v, want %v", i, states[i], want[i])
		}
	}
}

func TestRun_UndecodableLineKeepsBlock(t *testing.T) {
	srv := streamServer(t, func(w http.ResponseWriter, r *http.Request, release <-chan struct{}) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w,
			`data: {"type":"ItemStateEvent","topic":"openhab/items/Hall_Light/state"}`+"\n",
			"id: \xff\xfe\n",
			"\n",
		)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})

	var signals atomic.Int32
	c := newTestClient(t, srv.URL, time.Second)
	stop := runClient(c, func() { signals.Add(1) })
	waitFor(t, "signal after undecodable line", func() bool { return signals.Load() == 1 })
	stop()

	if st := c.Stats(); st.Dropped != 1 || st.Events != 1 {
		t.Errorf("Stats() = %+v, want one dropped line and one event", st)
	}
}

func TestStats_JSONAlwaysCarriesLastEvent(t *testing.T) {
	data, err := json.Marshal(Stats{StateName: "connecting"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, ok := out["last_event"]; !ok {
		t.Errorf("last_event missing from %s", data)
	}
	if _, ok := out["last_error"]; ok {
		t.Errorf("empty last_error should be omitted: %s", data)
	}
}
