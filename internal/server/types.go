// Package server defines the WebSocket frame types and utility helpers that
// are reused across the transports.
package server

import (
	"errors"
	"net"
	"strings"
)

// Inbound frame types understood by the WebSocket transport.
const (
	frameJoin    = "join"
	frameMessage = "message"
)

// inboundFrame is the JSON frame a WebSocket client sends. A join frame
// carries the display name; message frames carry the chat text.
type inboundFrame struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Text     string `json:"text"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil || errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

// isTimeout reports whether err is a network deadline expiry.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
