// Package server puts the chat engine on the network.
//
// It provides two transports for the same room: WebSocket clients exchange
// JSON frames on /ws, and raw TCP clients exchange newline terminated text
// after answering a NICK prompt. The package also owns configuration
// loading, the origin policy for browser clients, per-connection rate
// limiting and the HTTP endpoints for health, statistics and a test page.
package server
