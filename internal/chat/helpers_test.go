package chat_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/gochat/internal/chat"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

// fakeConn records every event delivered to it.
type fakeConn struct {
	id string

	mu      sync.Mutex
	events  []chat.Event
	sendErr error
	closed  bool
	closes  int
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ev chat.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return chat.ErrConnClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closes++
	return nil
}

func (c *fakeConn) failWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

func (c *fakeConn) Events() []chat.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chat.Event(nil), c.events...)
}

func (c *fakeConn) Texts() []string {
	return lo.Map(c.Events(), func(ev chat.Event, _ int) string { return ev.Text })
}

func (c *fakeConn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type inbound struct {
	sub chat.Submission
	err error
}

// fakeTransport is a fakeConn driven by a channel of inbound frames.
type fakeTransport struct {
	*fakeConn

	name           string
	handshakeErr   error
	blockHandshake bool

	inbound chan inbound
	done    chan struct{}
	once    sync.Once
}

func newFakeTransport(id, name string) *fakeTransport {
	return &fakeTransport{
		fakeConn: newFakeConn(id),
		name:     name,
		inbound:  make(chan inbound),
		done:     make(chan struct{}),
	}
}

func (t *fakeTransport) RemoteAddr() string { return "pipe/" + t.id }

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return t.fakeConn.Close()
}

func (t *fakeTransport) Handshake(ctx context.Context) (string, error) {
	if t.blockHandshake {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.done:
			return "", chat.ErrConnClosed
		}
	}
	return t.name, t.handshakeErr
}

func (t *fakeTransport) Receive(_ context.Context) (chat.Submission, error) {
	select {
	case in := <-t.inbound:
		return in.sub, in.err
	case <-t.done:
		return chat.Submission{}, chat.ErrConnClosed
	}
}

func (t *fakeTransport) push(tb testing.TB, text string) {
	tb.Helper()
	t.deliver(tb, inbound{sub: chat.Submission{Text: text}})
}

func (t *fakeTransport) deliver(tb testing.TB, in inbound) {
	tb.Helper()
	select {
	case t.inbound <- in:
	case <-time.After(time.Second):
		tb.Fatalf("transport %s did not accept inbound frame", t.id)
	}
}

func newTestEngine(historySize int, opts ...chat.EngineOption) *chat.Engine {
	return chat.NewEngine(chat.NewRegistry(), chat.NewHistory(historySize), opts...)
}

// runSession starts s in the background and returns a channel with its result.
func runSession(ctx context.Context, s *chat.Session) <-chan error {
	result := make(chan error, 1)
	go func() {
		result <- s.Run(ctx)
	}()
	return result
}

func waitResult(tb testing.TB, result <-chan error) error {
	tb.Helper()
	select {
	case err := <-result:
		return err
	case <-time.After(2 * time.Second):
		tb.Fatal("session did not finish in time")
		return nil
	}
}

func requireCount(tb testing.TB, e *chat.Engine, want int) {
	tb.Helper()
	require.Eventually(tb, func() bool {
		return e.Registry().Count() == want
	}, time.Second, 5*time.Millisecond, "registry count never reached %d", want)
}

func historyTexts(e *chat.Engine) []string {
	return lo.Map(e.History().Recent(e.History().Cap()), func(ev chat.Event, _ int) string { return ev.Text })
}
