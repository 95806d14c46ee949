// Package classify assigns openHAB items to the entity categories surfaced to
// consumers (lights, switches, sensors, covers, trackers).
//
// Each category has its own predicate, evaluated independently by whichever
// consumer builds that category. Within one category the first matching rule
// wins:
//
//  1. a known UI-hint extended type for the category
//  2. no extended type at all, and a primary type in the category's base set
//  3. a Group whose group type names the category's group role
//     (an untyped Group is a switch)
//  4. any other typed Group is a sensor
//
// Items that match no category are not surfaced.
package classify

import (
	"github.com/nerrad567/habsync/internal/item"
)

// Category is a consumer-facing entity domain.
type Category string

// Categories.
const (
	LightColor   Category = "light-color"
	LightDimmer  Category = "light-dimmer"
	Switch       Category = "switch"
	Sensor       Category = "sensor"
	BinarySensor Category = "binary-sensor"
	Cover        Category = "cover"
	Tracker      Category = "tracker"
)

// All lists every category in classification precedence order.
var All = []Category{LightColor, LightDimmer, Switch, Sensor, BinarySensor, Cover, Tracker}

// UI-hint extended types.
const (
	HintSwitch       = "devireg_attr_ui_switch"
	HintSensor       = "devireg_attr_ui_sensor"
	HintBinarySensor = "devireg_attr_ui_binary_sensor"
)

// Rule names which precedence rule produced a match.
type Rule int

// Rules in precedence order.
const (
	RuleNone Rule = iota
	RuleHint
	RuleBaseType
	RuleGroupRole
	RuleGroupFallback
)

// String returns the rule name used in logs.
func (r Rule) String() string {
	switch r {
	case RuleHint:
		return "hint"
	case RuleBaseType:
		return "base_type"
	case RuleGroupRole:
		return "group_role"
	case RuleGroupFallback:
		return "group_fallback"
	default:
		return "none"
	}
}

type categoryRules struct {
	hint       string
	baseTypes  []string
	groupRoles []string
}

var rules = map[Category]categoryRules{
	LightColor:   {baseTypes: []string{item.TypeColor}, groupRoles: []string{item.TypeColor}},
	LightDimmer:  {baseTypes: []string{item.TypeDimmer}, groupRoles: []string{item.TypeDimmer}},
	Switch:       {hint: HintSwitch, baseTypes: []string{item.TypeSwitch}, groupRoles: []string{item.TypeSwitch}},
	Sensor:       {hint: HintSensor, baseTypes: []string{item.TypeString, item.TypeNumber, item.TypeDateTime}},
	BinarySensor: {hint: HintBinarySensor, baseTypes: []string{item.TypeContact}},
	Cover:        {baseTypes: []string{item.TypeRollershutter}, groupRoles: []string{item.TypeRollershutter}},
	Tracker:      {baseTypes: []string{item.TypeLocation}},
}

// specificGroupRoles are the group types that route a Group to a category
// other than sensor.
var specificGroupRoles = map[string]bool{
	item.TypeSwitch:        true,
	item.TypeColor:         true,
	item.TypeDimmer:        true,
	item.TypeRollershutter: true,
}

// Match evaluates the predicate for one category.
func Match(cat Category, rec *item.Record) (Rule, bool) {
	if rec == nil {
		return RuleNone, false
	}
	cr, ok := rules[cat]
	if !ok {
		return RuleNone, false
	}

	if cr.hint != "" && rec.ExtendedTypeIs(cr.hint) {
		return RuleHint, true
	}

	if !rec.HasExtendedType() && contains(cr.baseTypes, rec.PrimaryType) {
		return RuleBaseType, true
	}

	if !rec.IsGroup() {
		return RuleNone, false
	}

	if rec.GroupType == nil {
		if cat == Switch {
			return RuleGroupRole, true
		}
		return RuleNone, false
	}

	if contains(cr.groupRoles, *rec.GroupType) {
		return RuleGroupRole, true
	}

	if cat == Sensor && !specificGroupRoles[*rec.GroupType] {
		return RuleGroupFallback, true
	}

	return RuleNone, false
}

// Matches reports whether rec belongs to cat.
func Matches(cat Category, rec *item.Record) bool {
	_, ok := Match(cat, rec)
	return ok
}

// Classify returns the first category in All that rec matches.
func Classify(rec *item.Record) (Category, bool) {
	for _, cat := range All {
		if Matches(cat, rec) {
			return cat, true
		}
	}
	return "", false
}

// Categories returns every category rec matches, in precedence order.
func Categories(rec *item.Record) []Category {
	var out []Category
	for _, cat := range All {
		if Matches(cat, rec) {
			out = append(out, cat)
		}
	}
	return out
}

// Filter returns the snapshot records belonging to cat, in identifier order.
func Filter(snap *item.Snapshot, cat Category) []*item.Record {
	var out []*item.Record
	for _, rec := range snap.Records() {
		if Matches(cat, rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Parse converts a category name into a Category.
func Parse(s string) (Category, bool) {
	for _, cat := range All {
		if string(cat) == s {
			return cat, true
		}
	}
	return "", false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
