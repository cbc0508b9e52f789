package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Tyrowin/gochat/internal/chat"
)

// nickPrompt asks a raw TCP client for its display name.
const nickPrompt = "NICK"

var errLineTooLong = errors.New("line exceeds maximum message size")

var lineSanitizer = strings.NewReplacer("\r", " ", "\n", " ")

// formatLine renders an event as one line of text for stream clients.
func formatLine(ev chat.Event) string {
	ts := ev.Timestamp.Format(time.TimeOnly)
	text := lineSanitizer.Replace(ev.Text)
	if ev.Kind == chat.KindMessage {
		return fmt.Sprintf("[%s] %s: %s\n", ts, ev.Author, text)
	}
	return fmt.Sprintf("[%s] * %s\n", ts, text)
}

// tcpConn is a chat.Transport over a raw stream socket with newline framing.
type tcpConn struct {
	id      string
	conn    net.Conn
	reader  *bufio.Reader
	maxLine int
	send    chan string
	log     *slog.Logger

	mu     sync.RWMutex
	closed bool
	broken atomic.Bool
}

func newTCPConn(conn net.Conn, cfg Config, log *slog.Logger) *tcpConn {
	c := &tcpConn{
		id:      uuid.NewString(),
		conn:    conn,
		reader:  bufio.NewReader(conn),
		maxLine: int(cfg.MaxMessageSize),
		send:    make(chan string, cfg.SendBufferSize),
		log:     log.With("transport", "tcp", "remote", conn.RemoteAddr().String()),
	}
	go c.writePump()
	return c
}

func (c *tcpConn) ID() string { return c.id }

func (c *tcpConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

func (c *tcpConn) Send(ev chat.Event) error {
	return c.enqueue(formatLine(ev))
}

func (c *tcpConn) enqueue(line string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed || c.broken.Load() {
		return chat.ErrConnClosed
	}
	select {
	case c.send <- line:
		return nil
	default:
		return chat.ErrSlowConsumer
	}
}

// Close stops accepting lines; the write pump flushes the queue and closes
// the socket.
func (c *tcpConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.send)
	return nil
}

// Handshake prompts with NICK and reads the name from the first line.
func (c *tcpConn) Handshake(ctx context.Context) (string, error) {
	if err := c.enqueue(nickPrompt + "\n"); err != nil {
		return "", fmt.Errorf("%w: %w", chat.ErrHandshakeMalformed, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return "", fmt.Errorf("%w: %w", chat.ErrHandshakeMalformed, err)
		}
		defer func() {
			_ = c.conn.SetReadDeadline(time.Time{})
		}()
	}

	name, err := c.readLine()
	switch {
	case err == nil:
		return name, nil
	case isTimeout(err):
		return "", fmt.Errorf("%w: %w", chat.ErrHandshakeTimeout, err)
	default:
		return "", fmt.Errorf("%w: %w", chat.ErrHandshakeMalformed, err)
	}
}

// Receive reads the next line as a chat message.
func (c *tcpConn) Receive(_ context.Context) (chat.Submission, error) {
	line, err := c.readLine()
	switch {
	case err == nil:
		if !utf8.ValidString(line) {
			return chat.Submission{}, fmt.Errorf("%w: invalid UTF-8", chat.ErrMalformedFrame)
		}
		return chat.Submission{Text: line}, nil
	case errors.Is(err, errLineTooLong):
		return chat.Submission{}, fmt.Errorf("%w: %w", chat.ErrMalformedFrame, err)
	default:
		return chat.Submission{}, fmt.Errorf("%w: %w", chat.ErrConnClosed, err)
	}
}

// readLine returns the next line without its terminator. Lines longer than
// maxLine are consumed and reported as errLineTooLong.
func (c *tcpConn) readLine() (string, error) {
	var line []byte
	for {
		chunk, isPrefix, err := c.reader.ReadLine()
		if err != nil {
			return "", err
		}
		if len(line)+len(chunk) > c.maxLine {
			for isPrefix {
				if _, isPrefix, err = c.reader.ReadLine(); err != nil {
					return "", err
				}
			}
			return "", errLineTooLong
		}
		line = append(line, chunk...)
		if !isPrefix {
			return string(line), nil
		}
	}
}

func (c *tcpConn) writePump() {
	defer func() {
		c.broken.Store(true)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("closing connection", "error", err)
		}
	}()

	for line := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			c.log.Debug("setting write deadline", "error", err)
			return
		}
		if _, err := io.WriteString(c.conn, line); err != nil {
			if !isExpectedCloseError(err) {
				c.log.Debug("writing line", "error", err)
			}
			return
		}
	}
}

// TCPServer accepts raw stream clients and runs a chat session for each.
type TCPServer struct {
	engine *chat.Engine
	cfg    Config
	log    *slog.Logger
	wg     sync.WaitGroup
}

// NewTCPServer creates a TCP front end for engine.
func NewTCPServer(engine *chat.Engine, cfg Config, log *slog.Logger) *TCPServer {
	return &TCPServer{
		engine: engine,
		cfg:    cfg,
		log:    log.With("component", "tcp"),
	}
}

// Serve accepts connections on ln until ctx is cancelled or ln is closed.
func (s *TCPServer) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	s.log.Info("tcp server listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("accept failed", "error", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *TCPServer) serveConn(ctx context.Context, conn net.Conn) {
	tc := newTCPConn(conn, s.cfg, s.log)
	session := chat.NewSession(s.engine, tc, sessionOptions(s.cfg, s.log)...)
	if err := session.Run(ctx); err != nil {
		s.log.Info("tcp session ended", "remote", tc.RemoteAddr(), "error", err)
	}
}

// Wait blocks until every session has finished or timeout elapses.
func (s *TCPServer) Wait(timeout time.Duration) error {
	return waitTimeout(&s.wg, timeout)
}
