package eventstream

import (
	"errors"
	"testing"
)

func feedAll(t *testing.T, p *frameParser, lines ...string) []Event {
	t.Helper()
	var out []Event
	for _, l := range lines {
		ev, ok, _ := p.feed(l)
		if ok {
			out = append(out, ev)
		}
	}
	return out
}

func TestFrameParser_ItemStateEvent(t *testing.T) {
	var p frameParser
	events := feedAll(t, &p,
		"event: state\n",
		`data: {"type":"ItemStateEvent","topic":"openhab/items/Kitchen_Light/state"}`+"\n",
		"\n",
	)

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Kind != KindItemState {
		t.Errorf("Kind = %q, want %q", ev.Kind, KindItemState)
	}
	if ev.Name != "state" {
		t.Errorf("Name = %q, want state", ev.Name)
	}
	if !ev.IsItemEvent() {
		t.Error("IsItemEvent() = false, want true")
	}
	if got := ev.ItemName(); got != "Kitchen_Light" {
		t.Errorf("ItemName() = %q, want Kitchen_Light", got)
	}
}

func TestFrameParser_NonItemTopic(t *testing.T) {
	var p frameParser
	events := feedAll(t, &p,
		`data: {"type":"ItemStateEvent","topic":"openhab/things/zwave:1/status"}`,
		"",
	)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].IsItemEvent() {
		t.Error("IsItemEvent() = true for a topic without items/")
	}
}

func TestFrameParser_NonItemKind(t *testing.T) {
	ev := Event{Kind: "ThingStatusInfoEvent", Topic: "openhab/items/x/state"}
	if ev.IsItemEvent() {
		t.Error("IsItemEvent() = true for a non-item kind")
	}
}

func TestFrameParser_MalformedDataDropped(t *testing.T) {
	var p frameParser

	if _, ok, err := p.feed("data: {not json"); ok || !errors.Is(err, ErrProtocol) {
		t.Fatalf("feed(bad json) = ok %v err %v, want ErrProtocol", ok, err)
	}
	if _, ok, err := p.feed("data: [1,2]"); ok || !errors.Is(err, ErrProtocol) {
		t.Fatalf("feed(array) = ok %v err %v, want ErrProtocol", ok, err)
	}

	events := feedAll(t, &p,
		`data: {"type":"ItemStateChangedEvent","topic":"openhab/items/Door/statechanged"}`,
		"",
	)
	if len(events) != 1 || !events[0].IsItemEvent() {
		t.Fatalf("stream did not continue after malformed data: %+v", events)
	}
}

func TestFrameParser_BlankLinesWithoutFields(t *testing.T) {
	var p frameParser
	if events := feedAll(t, &p, "", "\n", "   \r\n"); len(events) != 0 {
		t.Errorf("got %d events from blank lines, want 0", len(events))
	}
}

func TestFrameParser_IgnoresUnknownAndComments(t *testing.T) {
	var p frameParser
	events := feedAll(t, &p,
		": keepalive",
		"retry: 1000",
		"no colon here",
		"",
	)
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}

func TestFrameParser_MergesDataLinesAndID(t *testing.T) {
	var p frameParser
	events := feedAll(t, &p,
		"id: 42",
		`data: {"type":"ItemStateEvent"}`,
		`data: {"topic":"openhab/items/A/state","payload":"{}"}`,
		"",
	)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.ID != "42" || ev.Kind != KindItemState || ev.Topic != "openhab/items/A/state" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Fields["payload"] != "{}" {
		t.Errorf("payload field = %v", ev.Fields["payload"])
	}

	// Accumulator is reset after a block closes.
	if events := feedAll(t, &p, ""); len(events) != 0 {
		t.Error("accumulator not reset after block")
	}
}
