package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/habsync/internal/classify"
	"github.com/nerrad567/habsync/internal/entity"
)

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status            string             `json:"status"`
	Version           string             `json:"version"`
	OpenHABVersion    string             `json:"openhab_version,omitempty"`
	Online            bool               `json:"online"`
	LastUpdateSuccess bool               `json:"last_update_success"`
	LastError         string             `json:"last_error,omitempty"`
	Items             int                `json:"items"`
	FetchedAt         *time.Time         `json:"fetched_at,omitempty"`
	Polls             uint64             `json:"polls"`
	PollFailures      uint64             `json:"poll_failures"`
	StreamStarted     bool               `json:"stream_started"`
	Stream            *streamStatsFields `json:"stream,omitempty"`
	WSClients         int                `json:"ws_clients"`
}

type streamStatsFields struct {
	State     string     `json:"state"`
	Connects  uint64     `json:"connects"`
	Failures  uint64     `json:"failures"`
	Events    uint64     `json:"events"`
	Signals   uint64     `json:"signals"`
	Dropped   uint64     `json:"dropped"`
	LastError string     `json:"last_error,omitempty"`
	LastEvent *time.Time `json:"last_event,omitempty"`
}

// handleHealth reports sync status. "degraded" means the last poll failed.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.sync.Current()
	polls, failures := s.sync.Stats()

	resp := healthResponse{
		Status:            "ok",
		Version:           s.version,
		OpenHABVersion:    s.sync.Version(),
		Online:            s.sync.IsOnline(),
		LastUpdateSuccess: s.sync.LastUpdateSuccess(),
		Items:             snap.Len(),
		Polls:             polls,
		PollFailures:      failures,
		StreamStarted:     s.sync.StreamStarted(),
	}
	if !resp.LastUpdateSuccess && polls > 0 {
		resp.Status = "degraded"
	}
	if err := s.sync.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	if t := snap.FetchedAt(); !t.IsZero() {
		resp.FetchedAt = &t
	}
	if s.stream != nil {
		st := s.stream.Stats()
		resp.Stream = &streamStatsFields{
			State:     st.StateName,
			Connects:  st.Connects,
			Failures:  st.Failures,
			Events:    st.Events,
			Signals:   st.Signals,
			Dropped:   st.Dropped,
			LastError: st.LastError,
		}
		if !st.LastEvent.IsZero() {
			resp.Stream.LastEvent = &st.LastEvent
		}
	}
	if s.hub != nil {
		resp.WSClients = s.hub.ClientCount()
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleListItems returns every record in the current snapshot.
func (s *Server) handleListItems(w http.ResponseWriter, _ *http.Request) {
	snap := s.sync.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"items":      snap.Records(),
		"count":      snap.Len(),
		"fetched_at": snap.FetchedAt(),
	})
}

// handleGetItem returns one record with the categories it matches.
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := s.sync.Current().Get(id)
	if !ok {
		fail(w, http.StatusNotFound, "item not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"item":       rec,
		"categories": classify.Categories(rec),
	})
}

// handleListEntities returns entity views, optionally filtered by ?category=.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	cats := s.categories
	if name := r.URL.Query().Get("category"); name != "" {
		cat, ok := classify.Parse(name)
		if !ok || !s.categoryEnabled(cat) {
			fail(w, http.StatusBadRequest, "unknown or disabled category: "+name)
			return
		}
		cats = []classify.Category{cat}
	}

	ents := entity.BuildCategories(s.sync.Current(), cats)
	if ents == nil {
		ents = []entity.Entity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entities": ents,
		"count":    len(ents),
	})
}

// handleGetEntity returns a single entity view.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	cat, ok := s.parseCategory(w, r)
	if !ok {
		return
	}
	e, _, err := entity.Find(s.sync.Current(), cat, chi.URLParam(r, "id"))
	if err != nil {
		fail(w, http.StatusNotFound, "entity not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleEntityCommand translates and sends a command.
func (s *Server) handleEntityCommand(w http.ResponseWriter, r *http.Request) {
	cat, ok := s.parseCategory(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var cmd entity.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if cmd.Action == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "action is required")
		return
	}

	payload, err := s.commander.Execute(r.Context(), cat, id, cmd)
	if err != nil {
		s.logger.Warn("entity command failed", "category", cat, "item", id, "error", err)
		writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "accepted",
		"item":    id,
		"command": payload,
	})
}

// handleListRegistry returns registry entries, optionally by ?category=.
func (s *Server) handleListRegistry(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		fail(w, http.StatusServiceUnavailable, "entity registry not configured")
		return
	}
	var cat classify.Category
	if name := r.URL.Query().Get("category"); name != "" {
		c, ok := classify.Parse(name)
		if !ok {
			fail(w, http.StatusBadRequest, "unknown category: "+name)
			return
		}
		cat = c
	}

	entries, err := s.registry.List(r.Context(), cat)
	if err != nil {
		s.logger.Error("listing registry failed", "error", err)
		fail(w, http.StatusInternalServerError, "failed to list registry")
		return
	}
	if entries == nil {
		entries = []entity.RegistryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleRefresh schedules a refresh and returns immediately.
func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	s.sync.RequestRefresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh requested"})
}

func (s *Server) parseCategory(w http.ResponseWriter, r *http.Request) (classify.Category, bool) {
	name := chi.URLParam(r, "category")
	cat, ok := classify.Parse(name)
	if !ok || !s.categoryEnabled(cat) {
		fail(w, http.StatusNotFound, "unknown or disabled category: "+name)
		return "", false
	}
	return cat, true
}

func (s *Server) categoryEnabled(cat classify.Category) bool {
	return len(s.categories) == 0 || slices.Contains(s.categories, cat)
}
