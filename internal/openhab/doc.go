// Package openhab is the HTTP client for the openHAB REST API.
//
// It covers the three calls the sync engine and its consumers need:
//   - ListItems: GET /rest/items, parsed into item.Record values
//   - Version:   GET /rest/, the runtime version string
//   - SendCommand: POST /rest/items/{id} with a plain-text command
//
// Authentication is selected once at construction: either an API token sent
// as the X-OPENHAB-TOKEN header, or an HTTP basic-auth credential pair. The
// same Auth value is reused by the event stream client.
//
// Thread Safety: Client is safe for concurrent use.
package openhab
