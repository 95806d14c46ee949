package mqtt

import (
	"fmt"
	"strings"
)

// DefaultPrefix is used when no topic prefix is configured.
const DefaultPrefix = "habsync"

// Topics builds habsync topic names under a common prefix.
//
// Hierarchy:
//
//	<prefix>/status                                  bridge online/offline (LWT)
//	<prefix>/openhab/availability                    controller online/offline
//	<prefix>/openhab/snapshot                        last poll summary
//	<prefix>/entity/<category>/<item>/state          retained entity state
//	<prefix>/entity/<category>/<item>/set            inbound entity commands
type Topics struct {
	prefix string
}

// NewTopics returns a builder for prefix. Trailing slashes are dropped.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string {
	return t.prefix
}

// Status is the bridge process availability topic.
func (t Topics) Status() string {
	return t.prefix + "/status"
}

// Availability carries whether openHAB returned items on the last poll.
func (t Topics) Availability() string {
	return t.prefix + "/openhab/availability"
}

// Snapshot carries a JSON summary of the last poll.
func (t Topics) Snapshot() string {
	return t.prefix + "/openhab/snapshot"
}

// EntityState is the retained state topic of one entity.
//
// Example: habsync/entity/light-dimmer/Kitchen_Dimmer/state
func (t Topics) EntityState(category, itemID string) string {
	return fmt.Sprintf("%s/entity/%s/%s/state", t.prefix, category, itemID)
}

// EntityCommand is the inbound command topic of one entity.
func (t Topics) EntityCommand(category, itemID string) string {
	return fmt.Sprintf("%s/entity/%s/%s/set", t.prefix, category, itemID)
}

// AllEntityCommands matches every entity command topic.
func (t Topics) AllEntityCommands() string {
	return t.prefix + "/entity/+/+/set"
}

// ParseEntityCommand extracts category and item ID from an entity command
// topic. It returns false for any other topic.
func (t Topics) ParseEntityCommand(topic string) (category, itemID string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix+"/entity/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] != "set" || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
