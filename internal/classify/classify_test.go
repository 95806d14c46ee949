package classify

import (
	"testing"
	"time"

	"github.com/nerrad567/habsync/internal/item"
)

func rec(primary string, ext, group *string) *item.Record {
	return &item.Record{ID: "x", PrimaryType: primary, ExtendedType: ext, GroupType: group}
}

func TestClassify_PrecedenceTable(t *testing.T) {
	s := item.StringPtr

	tests := []struct {
		name    string
		rec     *item.Record
		want    Category
		wantHit bool
	}{
		{"switch", rec("Switch", nil, nil), Switch, true},
		{"dimmer", rec("Dimmer", nil, nil), LightDimmer, true},
		{"color", rec("Color", nil, nil), LightColor, true},
		{"rollershutter group", rec("Group", nil, s("Rollershutter")), Cover, true},
		{"untyped group", rec("Group", nil, nil), Switch, true},
		{"contact group falls back to sensor", rec("Group", nil, s("Contact")), Sensor, true},
		{"player group falls back to sensor", rec("Group", nil, s("Player")), Sensor, true},
		{"number group falls back to sensor", rec("Group", nil, s("Number")), Sensor, true},
		{"switch group", rec("Group", nil, s("Switch")), Switch, true},
		{"dimmer group", rec("Group", nil, s("Dimmer")), LightDimmer, true},
		{"color group", rec("Group", nil, s("Color")), LightColor, true},
		{"sensor hint", rec("Number", s(HintSensor), nil), Sensor, true},
		{"switch hint on number", rec("Number", s(HintSwitch), nil), Switch, true},
		{"binary hint", rec("Switch", s(HintBinarySensor), nil), BinarySensor, true},
		{"plain number", rec("Number", nil, nil), Sensor, true},
		{"plain string", rec("String", nil, nil), Sensor, true},
		{"contact", rec("Contact", nil, nil), BinarySensor, true},
		{"rollershutter", rec("Rollershutter", nil, nil), Cover, true},
		{"location", rec("Location", nil, nil), Tracker, true},
		{"unknown hint blocks base type", rec("Switch", s("something_else"), nil), "", false},
		{"empty hint is not absent", rec("Number", s(""), nil), "", false},
		{"player item", rec("Player", nil, nil), "", false},
		{"call item", rec("Call", nil, nil), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.rec)
			if ok != tt.wantHit {
				t.Fatalf("Classify() ok = %v, want %v", ok, tt.wantHit)
			}
			if got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMatch_Rules(t *testing.T) {
	s := item.StringPtr

	tests := []struct {
		name string
		cat  Category
		rec  *item.Record
		want Rule
	}{
		{"hint", Sensor, rec("Number", s(HintSensor), nil), RuleHint},
		{"base type", Switch, rec("Switch", nil, nil), RuleBaseType},
		{"group role", Cover, rec("Group", nil, s("Rollershutter")), RuleGroupRole},
		{"untyped group is switch", Switch, rec("Group", nil, nil), RuleGroupRole},
		{"fallback", Sensor, rec("Group", nil, s("Contact")), RuleGroupFallback},
		{"untyped group not sensor", Sensor, rec("Group", nil, nil), RuleNone},
		{"switch group not sensor", Sensor, rec("Group", nil, s("Switch")), RuleNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Match(tt.cat, tt.rec)
			if got != tt.want {
				t.Errorf("Match(%s) = %v, want %v", tt.cat, got, tt.want)
			}
		})
	}
}

func TestMatch_NilAndUnknownCategory(t *testing.T) {
	if Matches(Switch, nil) {
		t.Error("nil record should not match")
	}
	if Matches(Category("media-player"), rec("Player", nil, nil)) {
		t.Error("unknown category should not match")
	}
}

func TestFilter(t *testing.T) {
	snap := item.NewSnapshot([]item.Record{
		{ID: "Kitchen_Light", PrimaryType: "Dimmer"},
		{ID: "Hall_Switch", PrimaryType: "Switch"},
		{ID: "All_Lights", PrimaryType: "Group"},
		{ID: "Temp", PrimaryType: "Number"},
	}, time.Now())

	switches := Filter(snap, Switch)
	if len(switches) != 2 {
		t.Fatalf("Filter(Switch) = %d records, want 2", len(switches))
	}
	if switches[0].ID != "All_Lights" || switches[1].ID != "Hall_Switch" {
		t.Errorf("Filter(Switch) ids = %s, %s", switches[0].ID, switches[1].ID)
	}

	if got := Filter(snap, Tracker); len(got) != 0 {
		t.Errorf("Filter(Tracker) = %d records, want 0", len(got))
	}
}

func TestParse(t *testing.T) {
	for _, cat := range All {
		got, ok := Parse(string(cat))
		if !ok || got != cat {
			t.Errorf("Parse(%q) = %q, %v", cat, got, ok)
		}
	}
	if _, ok := Parse("fan"); ok {
		t.Error("Parse(fan) should fail")
	}
}
