// Package entity turns item snapshots into consumer-facing entities and
// carries commands back to openHAB.
//
// An entity is a typed view of one item under one category: a dimmer item
// becomes a light with on/brightness, a rollershutter becomes a cover with
// an inverted position, and so on. Views are rebuilt from every snapshot;
// nothing here caches item state between polls.
//
// # Components
//
//   - Build/Find: snapshot to entity views, using package classify
//   - Translate: entity command to openHAB command string
//   - Commander: resolves, translates and sends a command
//   - Publisher: coordinator listener fanning changes out to MQTT and the
//     WebSocket hub, and receiving commands from MQTT
//   - SQLiteRegistry: every entity ever surfaced, with first/last seen
//
// # Position Convention
//
// openHAB rollershutters report 0 for fully open and 100 for fully closed.
// Entities use the opposite convention (100 is open), so both reads and
// set_position writes are inverted.
package entity
