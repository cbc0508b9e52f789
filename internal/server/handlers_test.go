package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat/internal/chat"
	"github.com/Tyrowin/gochat/internal/server"
	"github.com/Tyrowin/gochat/internal/testhelpers"
)

func newTestHandlers(t *testing.T) (*chat.Engine, *server.Handlers) {
	t.Helper()
	cfg := testConfig()
	engine := newTestEngine(cfg)
	return engine, server.NewHandlers(engine, cfg, testhelpers.DiscardLogger())
}

func TestHealthHandler(t *testing.T) {
	_, h := newTestHandlers(t)

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodHead} {
		t.Run(method, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.Health(rr, httptest.NewRequest(method, "/", http.NoBody))

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
			assert.Equal(t, "GoChat server is running!", rr.Body.String())
		})
	}
}

func TestStatsHandler(t *testing.T) {
	engine, h := newTestHandlers(t)
	engine.Broadcast(chat.Message{Author: "Alice", Text: "one"})
	engine.Broadcast(chat.Message{Author: "Alice", Text: "two"})

	rr := httptest.NewRecorder()
	h.Stats(rr, httptest.NewRequest(http.MethodGet, "/stats", http.NoBody))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var stats server.Stats
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&stats))
	assert.Equal(t, server.Stats{Participants: 0, LastEventID: 2, History: 2}, stats)
}

func TestWebSocketHandlerRejectsNonGet(t *testing.T) {
	_, h := newTestHandlers(t)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.WebSocket(rr, httptest.NewRequest(method, "/ws", http.NoBody))

			assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
		})
	}
}

func TestWebSocketHandlerRejectsPlainHTTP(t *testing.T) {
	_, h := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/ws", http.NoBody)
	req.Header.Set("Origin", testhelpers.DefaultOrigin)
	rr := httptest.NewRecorder()
	h.WebSocket(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRoutes(t *testing.T) {
	_, h := newTestHandlers(t)
	srv := testhelpers.CreateTestServer(t, server.SetupRoutes(h))

	resp := testhelpers.MakeRequest(t, http.MethodGet, srv.URL+"/")
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "text/plain")

	resp = testhelpers.MakeRequest(t, http.MethodGet, srv.URL+"/stats")
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "application/json")

	resp = testhelpers.MakeRequest(t, http.MethodGet, srv.URL+"/test")
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "text/html")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "GoChat WebSocket Test")
	assert.Contains(t, string(body), `type: 'join'`)

	resp = testhelpers.MakeRequest(t, http.MethodPost, srv.URL+"/ws")
	testhelpers.AssertStatusCode(t, resp, http.StatusMethodNotAllowed)
}

func TestWebSocketHandlerRefusesSessionsAfterWait(t *testing.T) {
	_, h := newTestHandlers(t)
	srv := testhelpers.CreateTestServer(t, server.SetupRoutes(h))

	require.NoError(t, h.Wait(time.Second))

	conn, resp, err := testhelpers.DialWebSocket(testhelpers.WebSocketURL(srv.URL, "username=Late"), testhelpers.DefaultOrigin)
	require.Error(t, err)
	assert.Nil(t, conn)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandlersWaitCoversUpgradedSessions(t *testing.T) {
	engine, h := newTestHandlers(t)
	srv := testhelpers.CreateTestServer(t, server.SetupRoutes(h))

	conn := testhelpers.ConnectWebSocket(t, testhelpers.WebSocketURL(srv.URL, "username=Alice"))
	testhelpers.ReceiveUntil(t, conn, "Alice joined the chat")

	assert.ErrorIs(t, h.Wait(50*time.Millisecond), context.DeadlineExceeded, "session still running")

	engine.Shutdown()
	require.NoError(t, h.Wait(time.Second))
}
