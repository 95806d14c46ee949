package openhab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nerrad567/habsync/internal/item"
)

// Client constants.
const (
	// defaultRequestTimeout bounds every REST call.
	defaultRequestTimeout = 10 * time.Second

	// maxErrorBody caps how much of an error response is kept for messages.
	maxErrorBody = 512

	// userAgent identifies habsync to openHAB.
	userAgent = "habsync/1.0"
)

// Client talks to the openHAB REST API.
type Client struct {
	baseURL *url.URL
	restURL *url.URL
	auth    Auth
	http    *http.Client
}

// Options configures a Client.
type Options struct {
	// BaseURL is the openHAB root, e.g. "http://openhab.local:8080".
	BaseURL string

	// Auth selects token or basic authentication.
	Auth Auth

	// Timeout bounds each request. Default: 10s.
	Timeout time.Duration

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// NewClient creates a client for the given base URL.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, opts.BaseURL)
	}
	if err := opts.Auth.Validate(); err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: base,
		restURL: base.JoinPath("rest"),
		auth:    opts.Auth,
		http:    httpClient,
	}, nil
}

// BaseURL returns the configured openHAB root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Auth returns the authentication settings.
func (c *Client) Auth() Auth {
	return c.auth
}

// EventsURL returns the URL of the server-sent events feed.
func (c *Client) EventsURL() string {
	return c.restURL.JoinPath("events").String()
}

// ListItems fetches every item with its current state.
func (c *Client) ListItems(ctx context.Context) ([]item.Record, error) {
	var dtos []itemDTO
	if err := c.getJSON(ctx, c.restURL.JoinPath("items"), &dtos); err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}

	records := make([]item.Record, 0, len(dtos))
	for _, d := range dtos {
		if d.Name == "" {
			continue
		}
		records = append(records, d.toRecord())
	}
	return records, nil
}

// Version returns the openHAB runtime version.
func (c *Client) Version(ctx context.Context) (string, error) {
	var root struct {
		Version     string `json:"version"`
		RuntimeInfo struct {
			Version string `json:"version"`
		} `json:"runtimeInfo"`
	}
	if err := c.getJSON(ctx, c.restURL, &root); err != nil {
		return "", fmt.Errorf("getting version: %w", err)
	}
	if root.RuntimeInfo.Version != "" {
		return root.RuntimeInfo.Version, nil
	}
	return root.Version, nil
}

// SendCommand posts a command (e.g. "ON", "50", "120,100,0") to an item.
func (c *Client) SendCommand(ctx context.Context, id, command string) error {
	if id == "" {
		return fmt.Errorf("%w: item id is required", ErrAPI)
	}

	endpoint := c.restURL.JoinPath("items", id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(command))
	if err != nil {
		return fmt.Errorf("%w: building request: %w", ErrAPI, err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("sending command to %s: %w", id, err)
	}
	resp.Body.Close()
	return nil
}

// getJSON performs a GET and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, u *url.URL, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %w", ErrAPI, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrAPI, err)
	}
	return nil
}

// do sends req with auth applied and turns non-2xx responses into errors.
// On success the caller owns resp.Body.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", userAgent)
	c.auth.Apply(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAPI, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best-effort error detail
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s: status %d: %s",
			ErrAPI, req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}
