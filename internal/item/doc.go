// Package item defines the in-memory model of the remote openHAB controller:
// item records, their typed state values, and the immutable snapshot that the
// sync coordinator publishes after every successful poll.
//
// Records are created fresh on every poll and never mutated afterwards. A
// Snapshot is read-shared freely; replacing it is the only way state changes.
//
// State tokens coming off the wire ("ON", "OFF", "OPEN", "NULL", "UNDEF",
// numbers, comma-separated tuples) are mapped onto a tagged State value once,
// at the parse boundary. Consumers switch on State.Kind and never compare raw
// strings.
package item
