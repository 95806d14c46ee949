package item

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind tags the variant held by a State.
type Kind int

// State kinds. KindUnset is the zero value and means the state was never
// fetched; KindUndefined is the controller explicitly reporting NULL/UNDEF.
const (
	KindUnset Kind = iota
	KindUndefined
	KindBoolean
	KindNumeric
	KindComposite
	KindText
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindBoolean:
		return "boolean"
	case KindNumeric:
		return "numeric"
	case KindComposite:
		return "composite"
	case KindText:
		return "text"
	default:
		return "unset"
	}
}

// Wire tokens with a fixed meaning.
const (
	TokenOn     = "ON"
	TokenOff    = "OFF"
	TokenOpen   = "OPEN"
	TokenClosed = "CLOSED"
	TokenNull   = "NULL"
	TokenUndef  = "UNDEF"
)

// State is a tagged value. Only the field matching Kind is meaningful.
type State struct {
	Kind      Kind
	Bool      bool
	Number    float64
	Unit      string
	Composite []float64
	Text      string

	// Raw is the token exactly as received.
	Raw string
}

// ParseState maps a raw state token onto a tagged State.
//
// Mapping:
//   - "" → Unset
//   - NULL, UNDEF → Undefined
//   - ON, OPEN → Boolean(true); OFF, CLOSED → Boolean(false)
//   - "21.5" or "21.5 °C" → Numeric (unit kept separately)
//   - "120,100,50" → Composite
//   - anything else → Text
func ParseState(raw string) State {
	s := strings.TrimSpace(raw)
	switch s {
	case "":
		return State{Kind: KindUnset, Raw: raw}
	case TokenNull, TokenUndef:
		return State{Kind: KindUndefined, Raw: raw}
	case TokenOn, TokenOpen:
		return State{Kind: KindBoolean, Bool: true, Raw: raw}
	case TokenOff, TokenClosed:
		return State{Kind: KindBoolean, Bool: false, Raw: raw}
	}

	if n, unit, ok := parseQuantity(s); ok {
		return State{Kind: KindNumeric, Number: n, Unit: unit, Raw: raw}
	}

	if strings.Contains(s, ",") {
		if parts, ok := parseComposite(s); ok {
			return State{Kind: KindComposite, Composite: parts, Raw: raw}
		}
	}

	return State{Kind: KindText, Text: s, Raw: raw}
}

// parseQuantity accepts "42", "-3.5" and "21.5 °C".
func parseQuantity(s string) (float64, string, bool) {
	num, unit, _ := strings.Cut(s, " ")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, "", false
	}
	return n, strings.TrimSpace(unit), true
}

func parseComposite(s string) ([]float64, bool) {
	fields := strings.Split(s, ",")
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}

// IsDefined reports whether the state carries a usable value.
func (s State) IsDefined() bool {
	return s.Kind != KindUnset && s.Kind != KindUndefined
}

// IsOn reports whether a Boolean state is true. Non-boolean states are off.
func (s State) IsOn() bool {
	return s.Kind == KindBoolean && s.Bool
}

// Float returns the numeric value, if the state is Numeric.
func (s State) Float() (float64, bool) {
	if s.Kind != KindNumeric {
		return 0, false
	}
	return s.Number, true
}

// Component returns element i of a Composite state.
func (s State) Component(i int) (float64, bool) {
	if s.Kind != KindComposite || i < 0 || i >= len(s.Composite) {
		return 0, false
	}
	return s.Composite[i], true
}

// Value returns the state as a plain Go value for JSON consumers:
// nil, bool, float64, []float64 or string.
func (s State) Value() any {
	switch s.Kind {
	case KindBoolean:
		return s.Bool
	case KindNumeric:
		return s.Number
	case KindComposite:
		return s.Composite
	case KindText:
		return s.Text
	default:
		return nil
	}
}

// MarshalJSON encodes the state as {"kind":...,"value":...,"raw":...}.
func (s State) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind  string `json:"kind"`
		Value any    `json:"value"`
		Unit  string `json:"unit,omitempty"`
		Raw   string `json:"raw,omitempty"`
	}{
		Kind:  s.Kind.String(),
		Value: s.Value(),
		Unit:  s.Unit,
		Raw:   s.Raw,
	}
	return json.Marshal(out)
}

// Equal reports whether two states hold the same value.
func (s State) Equal(o State) bool {
	if s.Kind != o.Kind {
		return false
	}
	switch s.Kind {
	case KindBoolean:
		return s.Bool == o.Bool
	case KindNumeric:
		return s.Number == o.Number && s.Unit == o.Unit
	case KindComposite:
		if len(s.Composite) != len(o.Composite) {
			return false
		}
		for i := range s.Composite {
			if s.Composite[i] != o.Composite[i] {
				return false
			}
		}
		return true
	case KindText:
		return s.Text == o.Text
	default:
		return true
	}
}
