package entity

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nerrad567/habsync/internal/classify"
	"github.com/nerrad567/habsync/internal/item"
)

// Actions accepted by Translate.
const (
	ActionTurnOn      = "turn_on"
	ActionTurnOff     = "turn_off"
	ActionToggle      = "toggle"
	ActionOpen        = "open"
	ActionClose       = "close"
	ActionStop        = "stop"
	ActionSetPosition = "set_position"
)

// Command is a consumer request against one entity.
type Command struct {
	Action     string      `json:"action"`
	Brightness *int        `json:"brightness,omitempty"`
	HS         *[2]float64 `json:"hs,omitempty"`
	Position   *int        `json:"position,omitempty"`
}

// Translation is the openHAB command derived from an entity Command.
type Translation struct {
	// Payload is posted as text/plain to the item.
	Payload string

	// Refresh asks the coordinator for a refresh once the command is sent.
	// Only switches need this; other categories rely on the event stream.
	Refresh bool
}

// Translate maps cmd against rec's current state onto an openHAB command.
//
// Returns ErrUnsupportedAction for actions the category does not accept and
// ErrInvalidCommand for out-of-range arguments.
func Translate(cat classify.Category, rec *item.Record, cmd Command) (Translation, error) {
	switch cat {
	case classify.Switch:
		return translateSwitch(rec, cmd)
	case classify.LightDimmer:
		return translateDimmer(rec, cmd)
	case classify.LightColor:
		return translateColor(rec, cmd)
	case classify.Cover:
		return translateCover(cmd)
	default:
		return Translation{}, fmt.Errorf("%w: %s is read-only", ErrUnsupportedAction, cat)
	}
}

func translateSwitch(rec *item.Record, cmd Command) (Translation, error) {
	var payload string
	switch cmd.Action {
	case ActionTurnOn:
		payload = item.TokenOn
	case ActionTurnOff:
		payload = item.TokenOff
	case ActionToggle:
		payload = item.TokenOn
		if rec.State.IsOn() {
			payload = item.TokenOff
		}
	default:
		return Translation{}, unsupported(classify.Switch, cmd.Action)
	}
	return Translation{Payload: payload, Refresh: true}, nil
}

func translateDimmer(rec *item.Record, cmd Command) (Translation, error) {
	switch cmd.Action {
	case ActionTurnOn:
		if cmd.Brightness != nil {
			if *cmd.Brightness < 0 || *cmd.Brightness > 255 {
				return Translation{}, fmt.Errorf("%w: brightness %d out of range 0..255", ErrInvalidCommand, *cmd.Brightness)
			}
			return Translation{Payload: strconv.Itoa(toPercent(*cmd.Brightness))}, nil
		}
		return Translation{Payload: item.TokenOn}, nil
	case ActionTurnOff:
		return Translation{Payload: item.TokenOff}, nil
	case ActionToggle:
		if pct, _ := rec.State.Float(); pct > 0 {
			return Translation{Payload: item.TokenOff}, nil
		}
		return Translation{Payload: item.TokenOn}, nil
	default:
		return Translation{}, unsupported(classify.LightDimmer, cmd.Action)
	}
}

func translateColor(rec *item.Record, cmd Command) (Translation, error) {
	h, _ := rec.State.Component(0)
	s, _ := rec.State.Component(1)
	v, _ := rec.State.Component(2)

	switch cmd.Action {
	case ActionTurnOn:
		bright := 100.0
		if cmd.HS != nil {
			if cmd.HS[0] < 0 || cmd.HS[0] > 360 || cmd.HS[1] < 0 || cmd.HS[1] > 100 {
				return Translation{}, fmt.Errorf("%w: hs %v out of range", ErrInvalidCommand, *cmd.HS)
			}
			h, s = cmd.HS[0], cmd.HS[1]
			if v > 0 {
				bright = v
			}
		}
		if cmd.Brightness != nil {
			if *cmd.Brightness < 0 || *cmd.Brightness > 255 {
				return Translation{}, fmt.Errorf("%w: brightness %d out of range 0..255", ErrInvalidCommand, *cmd.Brightness)
			}
			bright = float64(toPercent(*cmd.Brightness))
		}
		return Translation{Payload: hsv(h, s, bright)}, nil
	case ActionTurnOff:
		return Translation{Payload: hsv(h, s, 0)}, nil
	case ActionToggle:
		if v > 0 {
			return Translation{Payload: hsv(h, s, 0)}, nil
		}
		return Translation{Payload: hsv(h, s, 100)}, nil
	default:
		return Translation{}, unsupported(classify.LightColor, cmd.Action)
	}
}

func translateCover(cmd Command) (Translation, error) {
	switch cmd.Action {
	case ActionOpen:
		return Translation{Payload: "UP"}, nil
	case ActionClose:
		return Translation{Payload: "DOWN"}, nil
	case ActionStop:
		return Translation{Payload: "STOP"}, nil
	case ActionSetPosition:
		if cmd.Position == nil || *cmd.Position < 0 || *cmd.Position > 100 {
			return Translation{}, fmt.Errorf("%w: position must be 0..100", ErrInvalidCommand)
		}
		return Translation{Payload: strconv.Itoa(100 - *cmd.Position)}, nil
	default:
		return Translation{}, unsupported(classify.Cover, cmd.Action)
	}
}

func unsupported(cat classify.Category, action string) error {
	return fmt.Errorf("%w: %s does not accept %q", ErrUnsupportedAction, cat, action)
}

func hsv(h, s, v float64) string {
	f := func(x float64) string { return strconv.FormatFloat(x, 'f', -1, 64) }
	return f(h) + "," + f(s) + "," + f(v)
}

// Sender posts a command to an openHAB item.
type Sender interface {
	SendCommand(ctx context.Context, id, command string) error
}

// Source supplies the current snapshot and accepts refresh requests.
type Source interface {
	Current() *item.Snapshot
	RequestRefresh()
}

// Commander resolves an entity in the current snapshot, translates the
// command and sends it.
type Commander struct {
	sender Sender
	source Source
}

// NewCommander creates a Commander.
func NewCommander(sender Sender, source Source) *Commander {
	return &Commander{sender: sender, source: source}
}

// Execute runs cmd against the entity (cat, id).
//
// Returns:
//   - string: The payload sent to openHAB
//   - error: ErrNotFound, ErrUnsupportedAction, ErrInvalidCommand or the
//     sender's error
func (c *Commander) Execute(ctx context.Context, cat classify.Category, id string, cmd Command) (string, error) {
	_, rec, err := Find(c.source.Current(), cat, id)
	if err != nil {
		return "", err
	}
	tr, err := Translate(cat, rec, cmd)
	if err != nil {
		return "", err
	}
	if err := c.sender.SendCommand(ctx, id, tr.Payload); err != nil {
		return "", fmt.Errorf("sending %s to %s: %w", tr.Payload, id, err)
	}
	if tr.Refresh {
		c.source.RequestRefresh()
	}
	return tr.Payload, nil
}
