package server_test

import (
	"context"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat/internal/chat"
	"github.com/Tyrowin/gochat/internal/server"
	"github.com/Tyrowin/gochat/internal/testhelpers"
)

// testConfig returns defaults tuned for fast tests.
func testConfig() server.Config {
	cfg := server.NewConfig()
	cfg.HistorySize = 10
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.RateLimit = server.RateLimitConfig{Burst: 100, RefillInterval: time.Second}
	return cfg
}

func newTestEngine(cfg server.Config) *chat.Engine {
	return chat.NewEngine(chat.NewRegistry(), chat.NewHistory(cfg.HistorySize))
}

// startWebSocketServer serves the HTTP routes for a fresh engine. Sessions
// are shut down when the test ends.
func startWebSocketServer(t *testing.T, cfg server.Config) (*chat.Engine, *httptest.Server) {
	t.Helper()
	engine := newTestEngine(cfg)
	handlers := server.NewHandlers(engine, cfg, testhelpers.DiscardLogger())
	srv := testhelpers.CreateTestServer(t, server.SetupRoutes(handlers))

	t.Cleanup(func() {
		engine.Shutdown()
		require.NoError(t, handlers.Wait(cfg.ShutdownTimeout))
	})
	return engine, srv
}

// startTCPServer serves the raw TCP transport on a loopback port.
func startTCPServer(t *testing.T, cfg server.Config) (*chat.Engine, string) {
	t.Helper()
	engine := newTestEngine(cfg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	tcp := server.NewTCPServer(engine, cfg, testhelpers.DiscardLogger())
	done := make(chan error, 1)
	go func() { done <- tcp.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
		engine.Shutdown()
		require.NoError(t, tcp.Wait(cfg.ShutdownTimeout))
	})
	return engine, ln.Addr().String()
}
