// Package chat implements the transport-agnostic core of the GoChat broadcast
// server.
//
// A Registry tracks the live participants and their outbound connection
// handles, a History keeps the bounded log of sequenced events replayed to new
// joiners, the Engine stamps and fans out events to every participant, and a
// Session drives one connection through its Connecting, Joined and Closed
// states. Transports (WebSocket, raw TCP) plug in by implementing Transport.
package chat
