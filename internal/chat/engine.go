package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultWelcome is the system notice sent to every participant on join.
const DefaultWelcome = "Welcome to GoChat!"

// Engine stamps, records and fans out broadcast events to every registered
// participant. Delivery failures remove the failing participant and announce
// its departure instead of failing the broadcast.
//
// An Engine is safe for concurrent use by any number of sessions.
type Engine struct {
	registry *Registry
	history  *History
	log      *slog.Logger
	clock    func() time.Time
	replay   int
	welcome  string

	// deliverMu serialises append and fan-out so every participant observes
	// events in sequence order. Sends only enqueue, so holding it is brief.
	deliverMu sync.Mutex
	closed    bool // set by Shutdown, guarded by deliverMu
}

// EngineOption configures an Engine.
type EngineOption func(e *Engine)

// WithLogger sets the logger used by the engine.
func WithLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithClock overrides the time source used to stamp events.
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithReplayWindow sets how many past events a new participant receives.
// It defaults to the history capacity.
func WithReplayWindow(n int) EngineOption {
	return func(e *Engine) {
		if n >= 0 {
			e.replay = n
		}
	}
}

// WithWelcome sets the system notice sent to joiners. An empty text disables it.
func WithWelcome(text string) EngineOption {
	return func(e *Engine) {
		e.welcome = text
	}
}

// NewEngine creates an Engine over the given registry and history.
func NewEngine(registry *Registry, history *History, opts ...EngineOption) *Engine {
	e := &Engine{
		registry: registry,
		history:  history,
		log:      slog.New(slog.DiscardHandler),
		clock:    time.Now,
		replay:   history.Cap(),
		welcome:  DefaultWelcome,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Registry returns the participant registry driven by the engine.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// History returns the event log owned by the engine.
func (e *Engine) History() *History {
	return e.history
}

// Broadcast records msg as a new event and delivers it to every participant.
// Participants whose delivery fails are removed, closed and announced as
// departed through a follow-up broadcast. It returns the recorded event.
func (e *Engine) Broadcast(msg Message) Event {
	ev, failed := e.publish(msg)
	e.reap(failed)
	return ev
}

// publish appends the event and fans it out, returning the participants
// whose delivery failed.
func (e *Engine) publish(msg Message) (Event, []Participant) {
	e.deliverMu.Lock()
	defer e.deliverMu.Unlock()

	ev := e.history.Append(e.newEvent(msg))
	if e.registry.Count() == 0 {
		return ev, nil
	}

	members := e.registry.Snapshot()
	e.log.Debug("broadcasting event", "id", ev.ID, "kind", ev.Kind, "recipients", len(members))
	return ev, e.fanOut(members, ev)
}

func (e *Engine) newEvent(msg Message) Event {
	author := msg.Author
	if author == "" {
		author = AnonymousAuthor
	}
	kind := msg.Kind
	if kind == "" {
		kind = KindMessage
	}
	return Event{
		Author:    author,
		Text:      msg.Text,
		Timestamp: e.clock().UTC(),
		Kind:      kind,
	}
}

// fanOut attempts delivery to every member and never stops early.
func (e *Engine) fanOut(members []Participant, ev Event) []Participant {
	var failed []Participant
	for _, p := range members {
		if err := p.Conn.Send(ev); err != nil {
			e.log.Debug("delivery failed", "participant", p.Name, "conn", p.ID(), "error", err)
			failed = append(failed, p)
		}
	}
	return failed
}

func (e *Engine) reap(failed []Participant) {
	for _, p := range failed {
		e.leave(p.Conn, "delivery failed")
	}
}

// Join registers conn under name, sends it the welcome notice and the replay
// window, then announces the new participant to everyone.
func (e *Engine) Join(conn Conn, name string) (Participant, error) {
	p, err := e.admit(conn, name)
	if err != nil {
		return Participant{}, err
	}

	e.log.Info("participant joined", "participant", p.Name, "conn", p.ID(), "participants", e.registry.Count())
	e.Broadcast(Message{Author: p.Name, Text: joinedText(p.Name), Kind: KindNotification})
	return p, nil
}

// admit registers and replays under deliverMu so no newer event can reach
// the joiner before its replay.
func (e *Engine) admit(conn Conn, name string) (Participant, error) {
	e.deliverMu.Lock()
	defer e.deliverMu.Unlock()

	if e.closed {
		return Participant{}, ErrEngineClosed
	}

	p, err := e.registry.Add(conn, name)
	if err != nil {
		return Participant{}, err
	}

	if e.welcome != "" {
		welcome := Event{Text: e.welcome, Timestamp: e.clock().UTC(), Kind: KindSystem}
		if err := conn.Send(welcome); err != nil {
			e.registry.Remove(p.ID())
			return Participant{}, fmt.Errorf("send welcome: %w", err)
		}
	}

	for _, ev := range e.history.Recent(e.replay) {
		if err := conn.Send(ev); err != nil {
			e.registry.Remove(p.ID())
			return Participant{}, fmt.Errorf("replay history: %w", err)
		}
	}
	return p, nil
}

// Leave removes the participant owning conn, closes conn and announces the
// departure. Only the first call for a handle has any effect; it reports
// whether this call performed the removal.
func (e *Engine) Leave(conn Conn) (Participant, bool) {
	return e.leave(conn, "disconnected")
}

func (e *Engine) leave(conn Conn, reason string) (Participant, bool) {
	p, ok := e.registry.Remove(conn.ID())
	if !ok {
		return Participant{}, false
	}

	if err := conn.Close(); err != nil && !errors.Is(err, ErrConnClosed) {
		e.log.Debug("closing connection", "conn", conn.ID(), "error", err)
	}
	e.log.Info("participant left", "participant", p.Name, "conn", p.ID(), "reason", reason, "participants", e.registry.Count())

	e.Broadcast(Message{Author: p.Name, Text: leftText(p.Name), Kind: KindNotification})
	return p, true
}

// Shutdown unregisters and closes every participant without announcing
// departures. Later joins fail with ErrEngineClosed. It returns the number of
// connections closed.
func (e *Engine) Shutdown() int {
	e.deliverMu.Lock()
	e.closed = true
	e.deliverMu.Unlock()

	members := e.registry.Snapshot()
	for _, p := range members {
		e.registry.Remove(p.ID())
		if err := p.Conn.Close(); err != nil && !errors.Is(err, ErrConnClosed) {
			e.log.Debug("closing connection", "conn", p.ID(), "error", err)
		}
	}
	e.log.Info("closed participant connections", "count", len(members))
	return len(members)
}
