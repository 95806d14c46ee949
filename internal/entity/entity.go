package entity

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/nerrad567/habsync/internal/classify"
	"github.com/nerrad567/habsync/internal/item"
)

// Entity is a typed view of one item under one category.
//
// Only the fields relevant to the category are set; the rest stay nil so
// they drop out of the JSON encoding.
type Entity struct {
	UniqueID string            `json:"unique_id"`
	ItemID   string            `json:"item_id"`
	Category classify.Category `json:"category"`
	Name     string            `json:"name"`

	// switch, binary-sensor, light-*
	On *bool `json:"on,omitempty"`

	// light-dimmer, light-color: 0..255
	Brightness *int `json:"brightness,omitempty"`

	// light-color: hue 0..360, saturation 0..100
	HS *[2]float64 `json:"hs,omitempty"`

	// cover: 0 closed, 100 open
	Position *int  `json:"position,omitempty"`
	Closed   *bool `json:"closed,omitempty"`

	// sensor
	Value any    `json:"value,omitempty"`
	Unit  string `json:"unit,omitempty"`

	// tracker
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	LocationName string   `json:"location_name,omitempty"`
}

// UniqueID returns the stable identifier of the entity for item id under
// category cat.
func UniqueID(cat classify.Category, id string) string {
	return string(cat) + ":" + id
}

// StatePayload returns the state portion of the entity as JSON, used for
// change detection and MQTT publishing.
func (e Entity) StatePayload() ([]byte, error) {
	return json.Marshal(e)
}

// Build returns the entities of category cat in snap, in identifier order.
func Build(snap *item.Snapshot, cat classify.Category) []Entity {
	recs := classify.Filter(snap, cat)
	out := make([]Entity, 0, len(recs))
	for _, rec := range recs {
		out = append(out, View(cat, rec))
	}
	return out
}

// BuildAll returns the entities of every category in snap. An item that
// matches several categories yields one entity per category.
func BuildAll(snap *item.Snapshot) []Entity {
	return BuildCategories(snap, classify.All)
}

// BuildCategories is BuildAll limited to cats. An empty cats means all.
func BuildCategories(snap *item.Snapshot, cats []classify.Category) []Entity {
	if len(cats) == 0 {
		cats = classify.All
	}
	var out []Entity
	for _, cat := range cats {
		out = append(out, Build(snap, cat)...)
	}
	return out
}

// ParseCategories converts configured category names, rejecting unknown ones.
func ParseCategories(names []string) ([]classify.Category, error) {
	out := make([]classify.Category, 0, len(names))
	for _, n := range names {
		cat, ok := classify.Parse(n)
		if !ok {
			return nil, fmt.Errorf("unknown entity category %q", n)
		}
		out = append(out, cat)
	}
	return out, nil
}

// Find returns the entity for item id under cat.
func Find(snap *item.Snapshot, cat classify.Category, id string) (Entity, *item.Record, error) {
	rec, ok := snap.Get(id)
	if !ok || !classify.Matches(cat, rec) {
		return Entity{}, nil, ErrNotFound
	}
	return View(cat, rec), rec, nil
}

// View builds the entity for rec under cat. The caller is responsible for
// checking that rec belongs to cat.
func View(cat classify.Category, rec *item.Record) Entity {
	e := Entity{
		UniqueID: UniqueID(cat, rec.ID),
		ItemID:   rec.ID,
		Category: cat,
		Name:     rec.DisplayName(),
	}
	st := rec.State

	switch cat {
	case classify.Switch, classify.BinarySensor:
		e.On = boolPtr(st.IsOn())

	case classify.LightDimmer:
		pct, _ := st.Float()
		e.On = boolPtr(pct > 0)
		e.Brightness = intPtr(toBrightness(pct))

	case classify.LightColor:
		h, _ := st.Component(0)
		s, _ := st.Component(1)
		v, _ := st.Component(2)
		e.On = boolPtr(v > 0)
		e.HS = &[2]float64{h, s}
		e.Brightness = intPtr(toBrightness(v))

	case classify.Cover:
		pos := 0
		if n, ok := st.Float(); ok {
			pos = clamp(100-int(math.Round(n)), 0, 100)
		}
		e.Position = intPtr(pos)
		e.Closed = boolPtr(pos == 0)

	case classify.Sensor:
		e.Value = st.Value()
		e.Unit = st.Unit

	case classify.Tracker:
		e.LocationName = rec.DisplayName()
		if lat, ok := st.Component(0); ok {
			e.Latitude = &lat
		}
		if lon, ok := st.Component(1); ok {
			e.Longitude = &lon
		}
	}
	return e
}

// toBrightness maps a 0..100 percentage onto 0..255.
func toBrightness(pct float64) int {
	return clamp(int(math.Round(pct*255/100)), 0, 255)
}

// toPercent maps 0..255 onto a 0..100 percentage.
func toPercent(b int) int {
	return clamp(int(math.Round(float64(b)*100/255)), 0, 100)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }
