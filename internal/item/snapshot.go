package item

import (
	"sort"
	"time"
)

// Snapshot is the complete set of items produced by one poll.
//
// A Snapshot is immutable once built. Readers may hold on to it for as long
// as they like; the coordinator replaces it wholesale rather than editing it.
type Snapshot struct {
	items     map[string]*Record
	ids       []string
	fetchedAt time.Time
}

// NewSnapshot builds a Snapshot from a poll result. Later records win when
// an identifier appears more than once, keeping identifiers unique.
func NewSnapshot(records []Record, fetchedAt time.Time) *Snapshot {
	items := make(map[string]*Record, len(records))
	for i := range records {
		rec := records[i]
		if rec.ID == "" {
			continue
		}
		items[rec.ID] = &rec
	}

	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return &Snapshot{
		items:     items,
		ids:       ids,
		fetchedAt: fetchedAt,
	}
}

// Empty returns a snapshot with no items, used before the first poll.
func Empty() *Snapshot {
	return &Snapshot{items: map[string]*Record{}}
}

// Get returns the record for id. The returned record must not be modified.
func (s *Snapshot) Get(id string) (*Record, bool) {
	if s == nil {
		return nil, false
	}
	rec, ok := s.items[id]
	return rec, ok
}

// Len returns the number of items.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// IDs returns the identifiers in sorted order.
func (s *Snapshot) IDs() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Records returns the records in identifier order.
func (s *Snapshot) Records() []*Record {
	if s == nil {
		return nil
	}
	out := make([]*Record, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.items[id])
	}
	return out
}

// FetchedAt returns when the poll that produced this snapshot completed.
func (s *Snapshot) FetchedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.fetchedAt
}
