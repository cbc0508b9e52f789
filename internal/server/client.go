// Package server adapts individual WebSocket connections to the chat
// transport contract, handling the write pump, keepalive and frame decoding.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gochat/internal/chat"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// wsConn is a chat.Transport over a gorilla WebSocket connection.
// Outbound events are queued on a buffered channel drained by writePump,
// which is the only goroutine writing to the socket.
type wsConn struct {
	id             string
	conn           *websocket.Conn
	addr           string
	name           string
	send           chan []byte
	maxMessageSize int64
	log            *slog.Logger

	mu     sync.RWMutex
	closed bool
	broken atomic.Bool
}

// newWSConn wraps conn and starts its write pump. A non-empty name skips the
// join frame handshake.
func newWSConn(conn *websocket.Conn, addr, name string, cfg Config, log *slog.Logger) *wsConn {
	conn.SetReadLimit(cfg.MaxMessageSize)

	c := &wsConn{
		id:             uuid.NewString(),
		conn:           conn,
		addr:           addr,
		name:           name,
		send:           make(chan []byte, cfg.SendBufferSize),
		maxMessageSize: cfg.MaxMessageSize,
		log:            log.With("transport", "websocket", "remote", addr),
	}
	conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	go c.writePump()
	return c
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) RemoteAddr() string { return c.addr }

// Send queues ev as a JSON text frame without blocking.
func (c *wsConn) Send(ev chat.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed || c.broken.Load() {
		return chat.ErrConnClosed
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return chat.ErrSlowConsumer
	}
}

// Close stops accepting events. The write pump flushes what is queued, sends
// a close frame and closes the socket, which also ends any pending read.
func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.send)
	return nil
}

// Handshake reads the join frame carrying the display name, unless the name
// was already supplied on the upgrade request.
func (c *wsConn) Handshake(ctx context.Context) (string, error) {
	defer c.extendReadDeadline()

	if c.name != "" {
		return c.name, nil
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return "", fmt.Errorf("%w: %w", chat.ErrConnClosed, err)
		}
	}

	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("%w: %w", chat.ErrHandshakeTimeout, err)
		}
		return "", fmt.Errorf("%w: %w", chat.ErrHandshakeMalformed, err)
	}

	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return "", fmt.Errorf("%w: %w", chat.ErrHandshakeMalformed, err)
	}
	if frame.Type != frameJoin || frame.Username == "" {
		return "", fmt.Errorf("%w: expected join frame with username", chat.ErrHandshakeMalformed)
	}
	return frame.Username, nil
}

// Receive reads the next chat message frame.
func (c *wsConn) Receive(_ context.Context) (chat.Submission, error) {
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return chat.Submission{}, c.readError(err)
	}

	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return chat.Submission{}, fmt.Errorf("%w: %w", chat.ErrMalformedFrame, err)
	}
	if frame.Type != frameMessage {
		return chat.Submission{}, fmt.Errorf("%w: type %q", chat.ErrUnsupportedFrame, frame.Type)
	}
	return chat.Submission{Text: frame.Text}, nil
}

func (c *wsConn) extendReadDeadline() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Debug("setting read deadline", "error", err)
	}
}

// readError maps a read failure onto the chat error taxonomy. Everything the
// peer or the network can cause is reported as a closed connection.
func (c *wsConn) readError(err error) error {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("message exceeded maximum size", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), isExpectedCloseError(err), isTimeout(err):
	case websocket.IsUnexpectedCloseError(err):
		c.log.Info("unexpected close", "error", err)
	default:
		return err
	}
	return fmt.Errorf("%w: %w", chat.ErrConnClosed, err)
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.broken.Store(true)
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *wsConn) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *wsConn) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Debug("closing connection", "error", err)
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *wsConn) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Debug("setting write deadline", "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Debug("writing message", "error", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the client
func (c *wsConn) writeCloseMessage() bool {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil && !isExpectedCloseError(err) {
		c.log.Debug("writing close message", "error", err)
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *wsConn) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Debug("setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Debug("writing ping", "error", err)
		return false
	}
	return true
}
