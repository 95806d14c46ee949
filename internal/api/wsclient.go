package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// subscription is what a client has asked to receive.
type subscription struct {
	channels map[string]struct{}
	items    map[string]struct{} // empty means every item
}

func (s subscription) matches(channel, item string) bool {
	_, all := s.channels[ChannelAll]
	_, named := s.channels[channel]
	if !all && !named {
		return false
	}
	if item == "" || len(s.items) == 0 {
		return true
	}
	_, ok := s.items[item]
	return ok
}

// WSClient is one connected WebSocket peer.
type WSClient struct {
	hub     *Hub
	conn    *websocket.Conn
	subject string // from the WebSocket ticket

	mu     sync.RWMutex
	sub    subscription
	send   chan []byte
	closed bool
}

func newWSClient(hub *Hub, conn *websocket.Conn, subject string) *WSClient {
	return &WSClient{
		hub:     hub,
		conn:    conn,
		subject: subject,
		send:    make(chan []byte, wsSendBufferSize),
		sub: subscription{
			channels: make(map[string]struct{}),
			items:    make(map[string]struct{}),
		},
	}
}

func (c *WSClient) wants(channel, item string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sub.matches(channel, item)
}

// enqueue queues data without blocking. It reports false when the client
// is gone or its queue is full.
func (c *WSClient) enqueue(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeQueue closes the send queue once, ending writeLoop.
func (c *WSClient) closeQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// shutdown closes the queue and the socket.
func (c *WSClient) shutdown() {
	c.closeQueue()
	if c.conn != nil {
		c.conn.Close() //nolint:errcheck // best-effort on hub shutdown
	}
}

func (c *WSClient) reply(msgType, id string, payload any) {
	data, err := encodeMessage(msgType, id, "", payload)
	if err != nil {
		c.hub.logger.Error("encoding websocket reply", "type", msgType, "error", err)
		return
	}
	c.enqueue(data)
}

func (c *WSClient) replyError(id, message string) {
	c.reply(WSTypeError, id, map[string]string{"message": message})
}

// readLoop consumes client frames until the connection fails, then
// unregisters the client.
func (c *WSClient) readLoop() {
	cfg := c.hub.cfg
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close() //nolint:errcheck // connection already failing
	}()

	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend() //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "subject", c.subject, "error", err)
			}
			return
		}
		// Application frames count as liveness too.
		extend() //nolint:errcheck // a failed deadline surfaces on the next read
		c.dispatch(data)
	}
}

// writeLoop drains the send queue and pings the peer on an interval.
func (c *WSClient) writeLoop() {
	cfg := c.hub.cfg
	ping := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ping.Stop()
		c.conn.Close() //nolint:errcheck // writer is done either way
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error reported below
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // peer may be gone
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) dispatch(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.replyError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var p WSSubscribePayload
		if len(msg.Payload) == 0 || json.Unmarshal(msg.Payload, &p) != nil {
			c.replyError(msg.ID, "invalid "+msg.Type+" payload")
			return
		}
		c.reply(WSTypeResponse, msg.ID, c.update(msg.Type == WSTypeSubscribe, p))
	case WSTypePing:
		c.reply(WSTypePong, msg.ID, nil)
	default:
		c.replyError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// update applies a subscribe or unsubscribe and returns the resulting
// subscription.
func (c *WSClient) update(add bool, p WSSubscribePayload) WSSubscribePayload {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range p.Channels {
		if add {
			c.sub.channels[ch] = struct{}{}
		} else {
			delete(c.sub.channels, ch)
		}
	}
	for _, it := range p.Items {
		if add {
			c.sub.items[it] = struct{}{}
		} else {
			delete(c.sub.items, it)
		}
	}

	state := WSSubscribePayload{
		Channels: make([]string, 0, len(c.sub.channels)),
		Items:    make([]string, 0, len(c.sub.items)),
	}
	for ch := range c.sub.channels {
		state.Channels = append(state.Channels, ch)
	}
	for it := range c.sub.items {
		state.Items = append(state.Items, it)
	}
	c.hub.logger.Debug("websocket subscription changed",
		"subject", c.subject, "channels", state.Channels, "items", state.Items)
	return state
}
