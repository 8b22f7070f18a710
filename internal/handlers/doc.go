// Package handlers implements the HTTP surface: the inbound conversion
// webhook, the read-only status and stats snapshots, the bulk dispatch
// trigger, and the health and version endpoints.
package handlers
