package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/habsync/internal/infrastructure/config"
)

// fakeInflux answers pings and records write bodies.
type fakeInflux struct {
	mu     sync.Mutex
	writes []string
}

func (f *fakeInflux) handler(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/write") {
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
		f.mu.Lock()
		f.writes = append(f.writes, string(body))
		f.mu.Unlock()
	}
	w.Header().Set("X-Influxdb-Version", "2.7.0")
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeInflux) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.writes, "\n")
}

func connectFake(t *testing.T) (*Client, *fakeInflux) {
	t.Helper()
	fake := &fakeInflux{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(srv.Close)

	c, err := Connect(config.InfluxDBConfig{
		Enabled: true,
		URL:     srv.URL,
		Token:   "t",
		Org:     "home",
		Bucket:  "habsync",
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { c.Close() }) //nolint:errcheck // Test cleanup
	return c, fake
}

func TestConnect_Disabled(t *testing.T) {
	if _, err := Connect(config.InfluxDBConfig{}); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := Connect(config.InfluxDBConfig{Enabled: true, URL: url})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClient_WriteAndFlush(t *testing.T) {
	c, fake := connectFake(t)

	if !c.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	c.WritePollMetric(PollSample{Duration: 120 * time.Millisecond, Items: 42, Online: true})
	c.WriteStreamMetric(StreamSample{State: "streaming", Connects: 1})
	c.Flush()

	body := fake.body()
	for _, want := range []string{MeasurementPoll, "result=ok", "items=42i", MeasurementStream, "state=streaming"} {
		if !strings.Contains(body, want) {
			t.Errorf("written body missing %q:\n%s", want, body)
		}
	}
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	c, fake := connectFake(t)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v", err)
	}

	// Writes after Close are dropped silently.
	c.WritePollMetric(PollSample{Items: 1})
	c.Flush()
	if strings.Contains(fake.body(), "items=1i") {
		t.Error("point written after Close")
	}
}

func TestClient_NilSafe(t *testing.T) {
	var c *Client
	if c.IsConnected() {
		t.Error("nil client reports connected")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
}

func TestPollPoint(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := pollPoint(PollSample{Duration: 1500 * time.Microsecond, Items: 3, Err: errors.New("x"), At: at})

	if p.Name() != MeasurementPoll {
		t.Errorf("Name() = %q", p.Name())
	}
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["result"] != "error" || tags["online"] != "false" {
		t.Errorf("tags = %v", tags)
	}
	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["duration_ms"] != 1.5 {
		t.Errorf("duration_ms = %v, want 1.5", fields["duration_ms"])
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}
}
