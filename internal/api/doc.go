// Package api implements the HTTP REST API and WebSocket server for habsync.
//
// This package provides:
//   - REST endpoints for the current item snapshot, entity views and the
//     entity registry
//   - Entity commands and refresh requests routed through the coordinator
//   - WebSocket hub broadcasting snapshot and entity state changes
//   - JWT bearer authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server is a read-mostly view over the coordinator. Reads never block
// on a poll; they return whatever snapshot was last published. Commands go
// to openHAB through entity.Commander and show up in later snapshots.
//
// # Security
//
// Every route except /health requires an HS256 token signed with the
// configured secret (see "habsync token"). WebSocket connections use
// single-use tickets so the token never appears in a URL.
package api
