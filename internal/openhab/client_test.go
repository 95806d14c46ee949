package openhab

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/nerrad567/habsync/internal/item"
)

const itemsJSON = `[
  {"name":"Kitchen_Light","label":"Kitchen","type":"Dimmer","state":"40","tags":[]},
  {"name":"Living_Temp","label":"Living Temperature","type":"Number:Temperature","state":"21.5 °C"},
  {"name":"Floor_Heating","type":"Number","state":"1","tags":["devireg_attr_ui_switch","Heating"]},
  {"name":"Blinds","type":"Group","groupType":"Rollershutter","state":"UNDEF","members":[{"name":"Blind_1"},{"name":"Blind_2"}]},
  {"name":"Everything","type":"Group","state":"NULL"},
  {"name":"","type":"Switch","state":"ON"}
]`

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{
		BaseURL: srv.URL,
		Auth:    Auth{Mode: AuthToken, Token: "secret-token"},
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return srv, c
}

func TestClient_ListItems(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/items" {
			t.Errorf("path = %q, want /rest/items", r.URL.Path)
		}
		if got := r.Header.Get(TokenHeader); got != "secret-token" {
			t.Errorf("%s = %q, want secret-token", TokenHeader, got)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, itemsJSON) //nolint:errcheck
	})

	records, err := c.ListItems(context.Background())
	if err != nil {
		t.Fatalf("ListItems() error = %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("ListItems() = %d records, want 5", len(records))
	}

	byID := make(map[string]item.Record)
	for _, r := range records {
		byID[r.ID] = r
	}

	temp := byID["Living_Temp"]
	if temp.PrimaryType != item.TypeNumber || temp.Dimension != "Temperature" {
		t.Errorf("Living_Temp type = %q/%q, want Number/Temperature", temp.PrimaryType, temp.Dimension)
	}
	if temp.HasExtendedType() {
		t.Error("Living_Temp should have no extended type")
	}
	if n, ok := temp.State.Float(); !ok || n != 21.5 {
		t.Errorf("Living_Temp state = %v, %v", n, ok)
	}

	heating := byID["Floor_Heating"]
	if !heating.ExtendedTypeIs("devireg_attr_ui_switch") {
		t.Errorf("Floor_Heating extended type = %v", heating.ExtendedType)
	}

	blinds := byID["Blinds"]
	if !blinds.GroupTypeIs(item.TypeRollershutter) {
		t.Errorf("Blinds group type = %v", blinds.GroupType)
	}
	if len(blinds.Members) != 2 {
		t.Errorf("Blinds members = %v", blinds.Members)
	}
	if blinds.State.Kind != item.KindUndefined {
		t.Errorf("Blinds state kind = %v, want undefined", blinds.State.Kind)
	}

	if byID["Everything"].GroupType != nil {
		t.Error("untyped group should have nil GroupType")
	}
}

func TestClient_ListItems_HTTPError(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.ListItems(context.Background())
	if !errors.Is(err, ErrAPI) {
		t.Fatalf("ListItems() error = %v, want ErrAPI", err)
	}
}

func TestClient_ListItems_BadJSON(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "{not json") //nolint:errcheck
	})

	_, err := c.ListItems(context.Background())
	if !errors.Is(err, ErrAPI) {
		t.Fatalf("ListItems() error = %v, want ErrAPI", err)
	}
}

func TestClient_Version(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest" && r.URL.Path != "/rest/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		io.WriteString(w, `{"version":"8","runtimeInfo":{"version":"4.1.0"}}`) //nolint:errcheck
	})

	v, err := c.Version(context.Background())
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if v != "4.1.0" {
		t.Errorf("Version() = %q, want 4.1.0", v)
	}
}

func TestClient_SendCommand(t *testing.T) {
	var mu sync.Mutex
	var gotPath, gotBody, gotType string

	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body) //nolint:errcheck
		mu.Lock()
		gotPath, gotBody, gotType = r.URL.Path, string(body), r.Header.Get("Content-Type")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	if err := c.SendCommand(context.Background(), "Kitchen_Light", "ON"); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotPath != "/rest/items/Kitchen_Light" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody != "ON" {
		t.Errorf("body = %q, want ON", gotBody)
	}
	if gotType != "text/plain" {
		t.Errorf("Content-Type = %q, want text/plain", gotType)
	}
}

func TestClient_SendCommand_EmptyID(t *testing.T) {
	_, c := newTestServer(t, func(http.ResponseWriter, *http.Request) {
		t.Error("server should not be called")
	})
	if err := c.SendCommand(context.Background(), "", "ON"); !errors.Is(err, ErrAPI) {
		t.Errorf("SendCommand(\"\") error = %v, want ErrAPI", err)
	}
}

func TestClient_BasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get(TokenHeader) != "" {
			t.Error("token header must not be sent in basic mode")
		}
		io.WriteString(w, "[]") //nolint:errcheck
	}))
	defer srv.Close()

	c, err := NewClient(Options{
		BaseURL: srv.URL,
		Auth:    Auth{Mode: AuthBasic, Username: "admin", Password: "pw"},
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if _, err := c.ListItems(context.Background()); err != nil {
		t.Errorf("ListItems() error = %v", err)
	}
}

func TestNewClient_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want error
	}{
		{"bad url", Options{BaseURL: "not a url", Auth: Auth{Mode: AuthToken, Token: "x"}}, ErrInvalidBaseURL},
		{"token without token", Options{BaseURL: "http://oh:8080", Auth: Auth{Mode: AuthToken}}, ErrInvalidAuth},
		{"basic without user", Options{BaseURL: "http://oh:8080", Auth: Auth{Mode: AuthBasic}}, ErrInvalidAuth},
		{"unknown mode", Options{BaseURL: "http://oh:8080", Auth: Auth{Mode: "oauth"}}, ErrInvalidAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.opts)
			if !errors.Is(err, tt.want) {
				t.Errorf("NewClient() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClient_EventsURL(t *testing.T) {
	c, err := NewClient(Options{BaseURL: "http://oh:8080/", Auth: Auth{Mode: AuthToken, Token: "x"}})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if got := c.EventsURL(); got != "http://oh:8080/rest/events" {
		t.Errorf("EventsURL() = %q", got)
	}
}
