package server_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat/internal/chat"
	"github.com/Tyrowin/gochat/internal/testhelpers"
)

func joinTCP(t *testing.T, addr, name string) *testhelpers.LineConn {
	t.Helper()
	c := testhelpers.DialTCP(t, addr)

	prompt, err := c.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "NICK", prompt)

	require.NoError(t, c.WriteLine(name))
	c.ReadUntil(t, name+" joined the chat")
	return c
}

func TestTCPConversation(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMessageSize = 64
	engine, addr := startTCPServer(t, cfg)

	alice := joinTCP(t, addr, "Alice")
	bob := joinTCP(t, addr, "Bob")
	alice.ReadUntil(t, "Bob joined the chat")
	assert.Equal(t, 2, engine.Registry().Count())

	require.NoError(t, alice.WriteLine("hello bob"))
	bob.ReadUntil(t, "Alice: hello bob")
	alice.ReadUntil(t, "Alice: hello bob")

	require.NoError(t, alice.WriteLine(strings.Repeat("x", 100)))
	require.NoError(t, alice.WriteLine("after"))
	lines := bob.ReadUntil(t, "Alice: after")
	assert.False(t, lo.SomeBy(lines, func(l string) bool { return strings.Contains(l, "xxxx") }),
		"over-long line must be dropped")

	require.NoError(t, alice.Close())
	bob.ReadUntil(t, "* Alice left the chat")

	require.Eventually(t, func() bool { return engine.Registry().Count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestTCPJoinerReceivesWelcomeAndReplay(t *testing.T) {
	engine, addr := startTCPServer(t, testConfig())

	alice := joinTCP(t, addr, "Alice")
	require.NoError(t, alice.WriteLine("first"))
	alice.ReadUntil(t, "Alice: first")

	bob := testhelpers.DialTCP(t, addr)
	prompt, err := bob.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "NICK", prompt)
	require.NoError(t, bob.WriteLine("  Bob  "))

	lines := bob.ReadUntil(t, "Bob joined the chat")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasSuffix(lines[0], "* Welcome to GoChat!"))
	assert.True(t, strings.HasSuffix(lines[1], "* Alice joined the chat"))
	assert.True(t, strings.HasSuffix(lines[2], "Alice: first"))
	assert.True(t, strings.HasSuffix(lines[3], "* Bob joined the chat"))

	assert.Equal(t, uint64(3), engine.History().LastID())
}

func TestTCPBlankNickIsRejected(t *testing.T) {
	engine, addr := startTCPServer(t, testConfig())
	watcher := joinTCP(t, addr, "Watcher")

	c := testhelpers.DialTCP(t, addr)
	prompt, err := c.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "NICK", prompt)
	require.NoError(t, c.WriteLine("   "))

	_, err = c.ReadLine()
	require.Error(t, err, "server closes the connection")

	assert.Equal(t, 1, engine.Registry().Count())
	assert.Equal(t, uint64(1), engine.History().LastID(), "no broadcast for a failed handshake")

	require.NoError(t, watcher.WriteLine("still alone"))
	lines := watcher.ReadUntil(t, "Watcher: still alone")
	assert.Len(t, lines, 1)
}

func TestTCPHandshakeTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.HandshakeTimeout = 100 * time.Millisecond
	engine, addr := startTCPServer(t, cfg)

	c := testhelpers.DialTCP(t, addr)
	prompt, err := c.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "NICK", prompt)

	_, err = c.ReadLine()
	require.Error(t, err)
	assert.Zero(t, engine.Registry().Count())
	assert.Zero(t, engine.History().Len())
}

func TestTCPJoinWithFullHistoryAndSmallestSendBuffer(t *testing.T) {
	cfg := testConfig()
	cfg.HistorySize = 50
	cfg.SendBufferSize = 52
	require.NoError(t, cfg.Validate())
	engine, addr := startTCPServer(t, cfg)

	for i := 1; i <= cfg.HistorySize; i++ {
		engine.Broadcast(chat.Message{Author: "Seed", Text: fmt.Sprintf("m%d", i)})
	}

	c := testhelpers.DialTCP(t, addr)
	prompt, err := c.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "NICK", prompt)
	require.NoError(t, c.WriteLine("Alice"))

	lines := c.ReadUntil(t, "Alice joined the chat")
	require.Len(t, lines, cfg.HistorySize+2)
	assert.True(t, strings.HasSuffix(lines[0], "* Welcome to GoChat!"))
	assert.True(t, strings.HasSuffix(lines[1], "Seed: m1"))
	assert.True(t, strings.HasSuffix(lines[cfg.HistorySize], "Seed: m50"))
	assert.Equal(t, 1, engine.Registry().Count())
}
