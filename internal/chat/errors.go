package chat

import "errors"

var (
	// ErrConnClosed is returned by a Conn whose peer is gone or which was
	// closed locally. Delivery failures with this error reap the participant.
	ErrConnClosed = errors.New("chat: connection closed")

	// ErrSlowConsumer is returned by Send when the outbound buffer of a
	// connection is full. The participant is reaped like a closed connection.
	ErrSlowConsumer = errors.New("chat: outbound buffer full")

	// ErrMalformedFrame reports an inbound frame that could not be decoded.
	// The session discards the frame and keeps reading.
	ErrMalformedFrame = errors.New("chat: malformed frame")

	// ErrUnsupportedFrame reports a well-formed frame the server does not act on.
	ErrUnsupportedFrame = errors.New("chat: unsupported frame")

	// ErrHandshakeTimeout is returned when the peer does not supply a display
	// name in time.
	ErrHandshakeTimeout = errors.New("chat: handshake timed out")

	// ErrHandshakeMalformed is returned when the peer supplies an unusable
	// display name.
	ErrHandshakeMalformed = errors.New("chat: malformed handshake")

	// ErrDuplicateHandle is returned by Registry.Add for a handle that is
	// already registered. Callers treat it as a programming error.
	ErrDuplicateHandle = errors.New("chat: connection handle already registered")

	// ErrEngineClosed is returned by Join once the engine has been shut down.
	ErrEngineClosed = errors.New("chat: engine shut down")
)
