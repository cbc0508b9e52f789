package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultHandshakeTimeout bounds how long a peer may take to supply its name.
const DefaultHandshakeTimeout = 10 * time.Second

// State is the lifecycle state of a Session.
type State int32

const (
	StateConnecting State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Limiter decides whether the next inbound message may be broadcast.
// *rate.Limiter satisfies it.
type Limiter interface {
	Allow() bool
}

// Session drives one client connection through join, receive loop and leave.
type Session struct {
	engine           *Engine
	conn             Transport
	log              *slog.Logger
	handshakeTimeout time.Duration
	limiter          Limiter

	state       atomic.Int32
	participant Participant
}

// SessionOption configures a Session.
type SessionOption func(s *Session)

// WithSessionLogger sets the logger used by the session.
func WithSessionLogger(log *slog.Logger) SessionOption {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// WithHandshakeTimeout overrides DefaultHandshakeTimeout.
func WithHandshakeTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.handshakeTimeout = d
		}
	}
}

// WithLimiter throttles inbound messages. Messages over the limit are dropped.
func WithLimiter(l Limiter) SessionOption {
	return func(s *Session) {
		s.limiter = l
	}
}

// NewSession creates a session for conn in the Connecting state.
func NewSession(engine *Engine, conn Transport, opts ...SessionOption) *Session {
	s := &Session{
		engine:           engine,
		conn:             conn,
		log:              slog.New(slog.DiscardHandler),
		handshakeTimeout: DefaultHandshakeTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.log = s.log.With("conn", conn.ID(), "remote", conn.RemoteAddr())
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Participant returns the registered participant once the session has joined.
func (s *Session) Participant() (Participant, bool) {
	if s.State() == StateConnecting {
		return Participant{}, false
	}
	return s.participant, s.participant.Conn != nil
}

// Run performs the handshake, joins the participant and broadcasts its
// messages until the transport fails or ctx is cancelled. It returns nil
// after an orderly disconnect, the handshake error when the peer never
// joined, or the unexpected transport error that ended the session.
//
// Run panics if the transport handle is already registered.
func (s *Session) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.Close()
	})
	defer stop()

	name, err := s.handshake(ctx)
	if err != nil {
		s.close()
		s.log.Info("handshake failed", "error", err)
		return err
	}

	p, err := s.engine.Join(s.conn, name)
	if err != nil {
		if errors.Is(err, ErrDuplicateHandle) {
			panic(err)
		}
		s.close()
		s.log.Info("join failed", "participant", name, "error", err)
		return err
	}
	s.participant = p
	s.state.Store(int32(StateJoined))

	err = s.receive(ctx, s.log.With("participant", p.Name))

	s.engine.Leave(s.conn)
	s.close()
	if errors.Is(err, ErrConnClosed) || ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Session) handshake(ctx context.Context) (string, error) {
	hctx, cancel := context.WithTimeout(ctx, s.handshakeTimeout)
	defer cancel()

	raw, err := s.conn.Handshake(hctx)
	switch {
	case err == nil:
		return NormalizeName(raw)
	case errors.Is(err, ErrHandshakeTimeout), errors.Is(err, ErrHandshakeMalformed):
		return "", err
	case errors.Is(hctx.Err(), context.DeadlineExceeded):
		return "", fmt.Errorf("%w: %w", ErrHandshakeTimeout, err)
	default:
		return "", fmt.Errorf("%w: %w", ErrHandshakeMalformed, err)
	}
}

func (s *Session) receive(ctx context.Context, log *slog.Logger) error {
	for {
		sub, err := s.conn.Receive(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrMalformedFrame):
			log.Warn("discarding malformed frame", "error", err)
			continue
		case errors.Is(err, ErrUnsupportedFrame):
			log.Debug("ignoring frame", "error", err)
			continue
		case errors.Is(err, ErrConnClosed):
			log.Info("connection closed", "error", err)
			return err
		default:
			log.Warn("receive failed", "error", err)
			return err
		}

		if s.limiter != nil && !s.limiter.Allow() {
			log.Warn("rate limit exceeded; discarding message")
			continue
		}

		s.engine.Broadcast(Message{Author: s.participant.Name, Text: sub.Text, Kind: KindMessage})
	}
}

func (s *Session) close() {
	s.state.Store(int32(StateClosed))
	if err := s.conn.Close(); err != nil && !errors.Is(err, ErrConnClosed) {
		s.log.Debug("closing transport", "error", err)
	}
}
