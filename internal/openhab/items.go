package openhab

import (
	"strings"

	"github.com/nerrad567/habsync/internal/item"
)

// uiHintPrefix marks item tags that carry a UI-hint extended type.
const uiHintPrefix = "devireg_attr_ui_"

// itemDTO mirrors the JSON shape of one entry of GET /rest/items.
type itemDTO struct {
	Name      string   `json:"name"`
	Label     string   `json:"label"`
	Type      string   `json:"type"`
	GroupType string   `json:"groupType"`
	State     string   `json:"state"`
	Tags      []string `json:"tags"`
	Members   []member `json:"members"`
}

type member struct {
	Name string `json:"name"`
}

// toRecord converts the wire form into an item.Record. Optional fields are
// decided here once, so classification never probes raw JSON.
func (d itemDTO) toRecord() item.Record {
	primary, dimension, _ := strings.Cut(d.Type, ":")

	rec := item.Record{
		ID:          d.Name,
		Label:       d.Label,
		PrimaryType: primary,
		Dimension:   dimension,
		State:       item.ParseState(d.State),
	}

	if len(d.Tags) > 0 {
		rec.Tags = append([]string(nil), d.Tags...)
	}
	for _, tag := range d.Tags {
		if strings.HasPrefix(tag, uiHintPrefix) {
			rec.ExtendedType = item.StringPtr(tag)
			break
		}
	}

	if primary == item.TypeGroup && d.GroupType != "" {
		groupPrimary, _, _ := strings.Cut(d.GroupType, ":")
		rec.GroupType = item.StringPtr(groupPrimary)
	}

	for _, m := range d.Members {
		rec.Members = append(rec.Members, m.Name)
	}

	return rec
}
