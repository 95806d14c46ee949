// Package coordinator owns the authoritative item snapshot and keeps it
// fresh.
//
// Freshness comes from two sources:
//
//   - Periodic polling: every Interval the coordinator lists all items from
//     openHAB and publishes a new snapshot.
//   - Push events: after the first non-empty poll the coordinator starts the
//     event stream. Each item event signals the Debouncer, which requests a
//     single refresh once the feed has been quiet for the cooldown.
//
// Single-flight polling:
//
// At most one listing call is in flight at any time. A Poll or
// RequestRefresh that arrives while a poll is running joins it and receives
// the same result; it never starts a second remote call. A change that
// lands on the controller after the in-flight listing was read is picked up
// by the next debounced refresh or the next periodic poll.
//
// Snapshots are immutable and replaced with a single atomic pointer swap, so
// Current never observes a partially updated set.
//
// Shutdown stops the debouncer, cancels the event stream and any in-flight
// poll, and waits for every background goroutine. A refresh whose debounce
// timer was still pending when Shutdown began is dropped.
package coordinator
