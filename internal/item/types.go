package item

// Primary item types reported by openHAB.
const (
	TypeSwitch        = "Switch"
	TypeDimmer        = "Dimmer"
	TypeColor         = "Color"
	TypeContact       = "Contact"
	TypeGroup         = "Group"
	TypeNumber        = "Number"
	TypeString        = "String"
	TypeDateTime      = "DateTime"
	TypeRollershutter = "Rollershutter"
	TypeLocation      = "Location"
	TypePlayer        = "Player"
)

// Record represents one remote item or group as seen in a single poll.
//
// ExtendedType and GroupType are optional: nil means "absent", which is
// different from a present-but-empty value.
type Record struct {
	// Identity
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`

	// Classification
	PrimaryType  string  `json:"primary_type"`
	ExtendedType *string `json:"extended_type,omitempty"`
	GroupType    *string `json:"group_type,omitempty"`

	// Dimension is the unit-of-measure suffix of quantity types
	// (e.g. "Temperature" for "Number:Temperature"). Informational only.
	Dimension string `json:"dimension,omitempty"`

	Tags    []string `json:"tags,omitempty"`
	Members []string `json:"members,omitempty"`

	State State `json:"state"`
}

// IsGroup reports whether the record is a Group item.
func (r *Record) IsGroup() bool {
	return r.PrimaryType == TypeGroup
}

// HasExtendedType reports whether an extended type override is present.
func (r *Record) HasExtendedType() bool {
	return r.ExtendedType != nil
}

// ExtendedTypeIs reports whether the extended type is present and equal to v.
func (r *Record) ExtendedTypeIs(v string) bool {
	return r.ExtendedType != nil && *r.ExtendedType == v
}

// GroupTypeIs reports whether the group type is present and equal to v.
func (r *Record) GroupTypeIs(v string) bool {
	return r.GroupType != nil && *r.GroupType == v
}

// DisplayName returns the label, falling back to the identifier.
func (r *Record) DisplayName() string {
	if r.Label != "" {
		return r.Label
	}
	return r.ID
}

// StringPtr returns a pointer to a copy of s. Handy for optional fields.
func StringPtr(s string) *string {
	return &s
}
