package eventstream

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event kinds that openHAB publishes for items.
const (
	KindItemState   = "ItemStateEvent"
	KindItemCommand = "ItemCommandEvent"
)

// Event is one parsed event block.
type Event struct {
	// Kind is the "type" of the JSON payload, e.g. ItemStateEvent.
	Kind string

	// Topic is the event topic, e.g. openhab/items/Kitchen_Light/state.
	Topic string

	// Name is the SSE "event:" field, if any.
	Name string

	// ID is the SSE "id:" field, if any.
	ID string

	// Fields holds every accumulated field, JSON data merged in.
	Fields map[string]any
}

// IsItemEvent reports whether the event concerns an item and should make the
// snapshot stale.
func (e Event) IsItemEvent() bool {
	return strings.Contains(e.Kind, "Item") && strings.Contains(e.Topic, "items/")
}

// ItemName extracts the item name from the topic, or "" if there is none.
func (e Event) ItemName() string {
	_, rest, found := strings.Cut(e.Topic, "items/")
	if !found {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")
	return name
}

// frameParser accumulates "field: value" lines until a blank line closes the
// block.
type frameParser struct {
	fields map[string]any
}

// feed consumes one line. It returns a completed event when the line closes
// a non-empty block. A non-nil error means the line's data was dropped; the
// block itself stays open.
func (p *frameParser) feed(line string) (Event, bool, error) {
	s := strings.TrimSpace(line)

	if s == "" {
		if len(p.fields) == 0 {
			return Event{}, false, nil
		}
		ev := buildEvent(p.fields)
		p.fields = nil
		return ev, true, nil
	}

	field, value, found := strings.Cut(s, ":")
	if !found {
		return Event{}, false, nil
	}
	field = strings.TrimSpace(field)
	value = strings.TrimSpace(value)

	switch field {
	case "data":
		var data map[string]any
		if err := json.Unmarshal([]byte(value), &data); err != nil {
			return Event{}, false, fmt.Errorf("%w: data: %w", ErrProtocol, err)
		}
		p.ensure()
		for k, v := range data {
			p.fields[k] = v
		}
	case "event", "id":
		p.ensure()
		p.fields[field] = value
	}

	return Event{}, false, nil
}

func (p *frameParser) ensure() {
	if p.fields == nil {
		p.fields = make(map[string]any)
	}
}

func buildEvent(fields map[string]any) Event {
	str := func(key string) string {
		v, _ := fields[key].(string) //nolint:errcheck // missing or non-string fields read as ""
		return v
	}
	return Event{
		Kind:   str("type"),
		Topic:  str("topic"),
		Name:   str("event"),
		ID:     str("id"),
		Fields: fields,
	}
}
