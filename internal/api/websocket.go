package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/habsync/internal/entity"
	"github.com/nerrad567/habsync/internal/eventstream"
	"github.com/nerrad567/habsync/internal/infrastructure/config"
	"github.com/nerrad567/habsync/internal/infrastructure/logging"
)

// Message types exchanged over /ws.
const (
	WSTypeWelcome     = "welcome"
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// ChannelOpenHABEvent carries raw item events from the openHAB stream.
// Snapshot and entity channels are defined in package entity.
const ChannelOpenHABEvent = "openhab.event"

// ChannelAll subscribes a client to every channel.
const ChannelAll = "*"

// wsSendBufferSize is the per-client outbound queue length. A client
// whose queue is full misses events rather than stalling the hub.
const wsSendBufferSize = 256

// knownChannels is advertised in the welcome message.
var knownChannels = []string{
	entity.ChannelSnapshotUpdated,
	entity.ChannelEntityStateChanged,
	ChannelOpenHABEvent,
}

// WSMessage is the envelope for every frame in both directions.
type WSMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Channel string          `json:"channel,omitempty"`
	At      string          `json:"at,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload selects channels and, optionally, openHAB items.
// With Items set, item-scoped events (entity changes and raw openHAB
// events) are only delivered for the listed items.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
	Items    []string `json:"items,omitempty"`
}

// itemEvent is the payload relayed on ChannelOpenHABEvent.
type itemEvent struct {
	Kind  string         `json:"kind"`
	Topic string         `json:"topic"`
	Item  string         `json:"item,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// Hub fans out broadcast events to connected WebSocket clients.
//
// Thread Safety: all methods are safe for concurrent use.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers are gated by the ticket, not by Origin.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "subject", c.subject, "clients", n)
}

// Unregister removes a client and closes its queue. Safe to call twice.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	c.closeQueue()
	h.logger.Debug("websocket client disconnected", "subject", c.subject, "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers payload on channel to every client whose
// subscription matches. It never blocks on a slow client.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeMessage(WSTypeEvent, "", channel, payload)
	if err != nil {
		h.logger.Error("encoding broadcast", "channel", channel, "error", err)
		return
	}
	item := eventItem(payload)

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.wants(channel, item) && c.enqueue(data) {
			delivered++
		}
	}
	if delivered > 0 {
		h.logger.Debug("broadcast", "channel", channel, "item", item, "recipients", delivered)
	}
}

// RelayEvent forwards an openHAB stream event on ChannelOpenHABEvent.
// Its signature matches eventstream.Client.SetOnEvent.
func (h *Hub) RelayEvent(ev eventstream.Event) {
	h.Broadcast(ChannelOpenHABEvent, itemEvent{
		Kind:  ev.Kind,
		Topic: ev.Topic,
		Item:  ev.ItemName(),
		Data:  ev.Fields,
	})
}

// eventItem returns the openHAB item an event concerns, or "" when the
// event is not item-scoped (snapshot summaries).
func eventItem(payload any) string {
	switch v := payload.(type) {
	case entity.Entity:
		return v.ItemID
	case *entity.Entity:
		return v.ItemID
	case itemEvent:
		return v.Item
	default:
		return ""
	}
}

// encodeMessage builds one outbound frame.
func encodeMessage(msgType, id, channel string, payload any) ([]byte, error) {
	msg := WSMessage{
		Type:    msgType,
		ID:      id,
		Channel: channel,
		At:      time.Now().UTC().Format(time.RFC3339),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = raw
	}
	return json.Marshal(msg)
}

// handleWebSocket upgrades an authenticated request. Browsers cannot set
// headers on the upgrade, so the caller presents a single-use ticket from
// POST /auth/ws-ticket as the "ticket" query parameter.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	subject, ok := s.tickets.consume(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newWSClient(s.hub, conn, subject)
	s.hub.Register(c)
	c.reply(WSTypeWelcome, "", map[string]any{
		"subject":  subject,
		"channels": knownChannels,
	})

	go c.writeLoop()
	go c.readLoop()
}
