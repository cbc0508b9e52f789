//go:generate go run go.uber.org/mock/mockgen -source=conn.go -destination=mocks/mock_conn.go -package=mocks
package chat

import "context"

// Conn is the outbound capability of one client connection.
//
// Send must not block on a slow peer: it either queues the event or fails
// with ErrSlowConsumer or ErrConnClosed. Close must be idempotent.
type Conn interface {
	ID() string
	Send(event Event) error
	Close() error
}

// Transport is a full client connection as seen by a Session.
type Transport interface {
	Conn

	// RemoteAddr returns the peer network address for logging.
	RemoteAddr() string

	// Handshake obtains the display name of the peer. It honours the
	// deadline of ctx and reports ErrHandshakeTimeout or
	// ErrHandshakeMalformed on failure.
	Handshake(ctx context.Context) (string, error)

	// Receive blocks until the next inbound chat submission. Decoding
	// failures wrap ErrMalformedFrame or ErrUnsupportedFrame; any other
	// error ends the session.
	Receive(ctx context.Context) (Submission, error)
}

// Submission is one decoded inbound chat message.
type Submission struct {
	Text string
}
