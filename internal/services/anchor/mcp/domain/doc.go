// Package domain defines the MCP tools and resources exposed by the anchor
// service. Each tool pairs a schema constructor with a handler constructor;
// handlers call the anchor services in-process and translate between wire
// strings (hex identities, base64 signatures) and the typed domain API.
package domain
