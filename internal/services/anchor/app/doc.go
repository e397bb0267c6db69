// Package app assembles and serves the anchor service: the SQLite store, the
// delegation engine, the workspace, release, and registry services, the MCP
// API surface, and a gRPC health endpoint for process supervision.
package app
