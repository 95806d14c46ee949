package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/habsync/internal/classify"
	"github.com/nerrad567/habsync/internal/coordinator"
	"github.com/nerrad567/habsync/internal/infrastructure/mqtt"
)

// WebSocket channels broadcast by the Publisher.
const (
	ChannelSnapshotUpdated    = "snapshot.updated"
	ChannelEntityStateChanged = "entity.state_changed"
)

// Availability payloads.
const (
	AvailabilityOnline  = "online"
	AvailabilityOffline = "offline"
)

const (
	registryTimeout = 5 * time.Second
	commandTimeout  = 10 * time.Second
	commandQoS      = 1
)

// Broker is the MQTT surface the Publisher needs.
type Broker interface {
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Broadcaster fans events out to WebSocket clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger is the logging interface used by the Publisher.
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

// SnapshotSummary is published after every successful poll.
type SnapshotSummary struct {
	Items     int       `json:"items"`
	Entities  int       `json:"entities"`
	Changed   int       `json:"changed"`
	Online    bool      `json:"online"`
	FetchedAt time.Time `json:"fetched_at"`
}

// PublisherOptions configures a Publisher. Every collaborator is optional.
type PublisherOptions struct {
	Broker    Broker
	Topics    mqtt.Topics
	Hub       Broadcaster
	Registry  Registry
	Commander *Commander

	// Categories limits the published entities. Empty means all.
	Categories []classify.Category
}

// Publisher turns coordinator updates into retained MQTT state, WebSocket
// events and registry rows, and routes MQTT commands to the Commander.
//
// Entity state is published only when its payload differs from the last
// one published, so a poll that changes nothing produces no state traffic.
//
// Thread Safety:
//   - Handle may be called concurrently; updates are applied one at a time.
type Publisher struct {
	opts   PublisherOptions
	logger Logger

	mu        sync.Mutex
	last      map[string]string
	available *bool
}

// NewPublisher creates a Publisher.
func NewPublisher(opts PublisherOptions) *Publisher {
	return &Publisher{
		opts:   opts,
		logger: noopLogger{},
		last:   make(map[string]string),
	}
}

// SetLogger sets the logger.
func (p *Publisher) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Restore seeds change detection from the registry so a restart does not
// republish unchanged state.
func (p *Publisher) Restore(ctx context.Context) error {
	if p.opts.Registry == nil {
		return nil
	}
	states, err := p.opts.Registry.LastStates(ctx)
	if err != nil {
		return fmt.Errorf("restoring published state: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, s := range states {
		p.last[id] = s
	}
	p.logger.Info("restored published entity state", "entities", len(states))
	return nil
}

// Handle applies one coordinator update. It is registered with
// coordinator.AddListener.
func (p *Publisher) Handle(u coordinator.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.publishAvailability(u.Err == nil && u.Online)
	if u.Err != nil {
		return
	}

	entities := BuildCategories(u.Snapshot, p.opts.Categories)

	ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
	defer cancel()
	if p.opts.Registry != nil {
		if err := p.opts.Registry.Sync(ctx, entities, u.At); err != nil {
			p.logger.Warn("registry sync failed", "error", err)
		}
	}

	seen := make(map[string]struct{}, len(entities))
	changed := 0
	for _, e := range entities {
		seen[e.UniqueID] = struct{}{}
		payload, err := e.StatePayload()
		if err != nil {
			p.logger.Error("encoding entity state", "entity", e.UniqueID, "error", err)
			continue
		}
		if p.last[e.UniqueID] == string(payload) {
			continue
		}
		p.last[e.UniqueID] = string(payload)
		changed++
		p.publishEntity(ctx, e, payload)
	}
	for id := range p.last {
		if _, ok := seen[id]; !ok {
			delete(p.last, id)
		}
	}

	summary := SnapshotSummary{
		Items:     u.Snapshot.Len(),
		Entities:  len(entities),
		Changed:   changed,
		Online:    u.Online,
		FetchedAt: u.Snapshot.FetchedAt(),
	}
	if p.opts.Broker != nil {
		if data, err := json.Marshal(summary); err == nil {
			if err := p.opts.Broker.PublishRetained(p.opts.Topics.Snapshot(), data); err != nil {
				p.logger.Warn("publishing snapshot summary failed", "error", err)
			}
		}
	}
	if p.opts.Hub != nil {
		p.opts.Hub.Broadcast(ChannelSnapshotUpdated, summary)
	}
	p.logger.Debug("snapshot published", "entities", len(entities), "changed", changed)
}

func (p *Publisher) publishEntity(ctx context.Context, e Entity, payload []byte) {
	if p.opts.Broker != nil {
		topic := p.opts.Topics.EntityState(string(e.Category), e.ItemID)
		if err := p.opts.Broker.PublishRetained(topic, payload); err != nil {
			p.logger.Warn("publishing entity state failed", "entity", e.UniqueID, "error", err)
		}
	}
	if p.opts.Hub != nil {
		p.opts.Hub.Broadcast(ChannelEntityStateChanged, e)
	}
	if p.opts.Registry != nil {
		if err := p.opts.Registry.SaveState(ctx, e.UniqueID, payload); err != nil {
			p.logger.Debug("saving entity state failed", "entity", e.UniqueID, "error", err)
		}
	}
}

// publishAvailability publishes on the first update and on every change.
func (p *Publisher) publishAvailability(online bool) {
	if p.available != nil && *p.available == online {
		return
	}
	p.available = &online

	state := AvailabilityOffline
	if online {
		state = AvailabilityOnline
	}
	p.logger.Info("openhab availability changed", "availability", state)
	if p.opts.Broker == nil {
		return
	}
	if err := p.opts.Broker.PublishRetained(p.opts.Topics.Availability(), []byte(state)); err != nil {
		p.logger.Warn("publishing availability failed", "error", err)
	}
}

// SubscribeCommands subscribes to every entity command topic.
func (p *Publisher) SubscribeCommands() error {
	if p.opts.Broker == nil || p.opts.Commander == nil {
		return nil
	}
	topic := p.opts.Topics.AllEntityCommands()
	if err := p.opts.Broker.Subscribe(topic, commandQoS, p.handleCommand); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	p.logger.Info("subscribed to entity commands", "topic", topic)
	return nil
}

// handleCommand accepts either a JSON Command or a bare action name.
// ON and OFF are accepted as turn_on and turn_off.
func (p *Publisher) handleCommand(topic string, payload []byte) error {
	catName, id, ok := p.opts.Topics.ParseEntityCommand(topic)
	if !ok {
		return nil
	}
	cat, ok := classify.Parse(catName)
	if !ok {
		p.logger.Warn("command for unknown category", "topic", topic)
		return nil
	}

	cmd, err := ParseCommand(payload)
	if err != nil {
		p.logger.Warn("invalid command payload", "topic", topic, "error", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	sent, err := p.opts.Commander.Execute(ctx, cat, id, cmd)
	if err != nil {
		p.logger.Warn("entity command failed", "category", cat, "item", id, "action", cmd.Action, "error", err)
		return nil
	}
	p.logger.Debug("entity command sent", "category", cat, "item", id, "payload", sent)
	return nil
}

// ParseCommand decodes a command payload.
func ParseCommand(payload []byte) (Command, error) {
	raw := strings.TrimSpace(string(payload))
	if raw == "" {
		return Command{}, fmt.Errorf("%w: empty payload", ErrInvalidCommand)
	}
	if strings.HasPrefix(raw, "{") {
		var cmd Command
		if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
			return Command{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		if cmd.Action == "" {
			return Command{}, fmt.Errorf("%w: missing action", ErrInvalidCommand)
		}
		return cmd, nil
	}
	switch strings.ToUpper(raw) {
	case "ON":
		return Command{Action: ActionTurnOn}, nil
	case "OFF":
		return Command{Action: ActionTurnOff}, nil
	}
	return Command{Action: strings.ToLower(raw)}, nil
}
