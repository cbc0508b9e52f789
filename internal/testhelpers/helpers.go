// Package testhelpers provides common utilities for testing the GoChat server.
//
// It holds the dialers, frame helpers and assertions shared by the transport
// and HTTP tests so each test can focus on the conversation it exercises.
package testhelpers

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat/internal/chat"
)

// DefaultOrigin is the origin the WebSocket helpers present by default.
const DefaultOrigin = "http://localhost:8080"

// ReadTimeout bounds every helper read so a broken test fails instead of hanging.
const ReadTimeout = 2 * time.Second

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// CreateTestServer creates a test HTTP server with the given handler and
// closes it when the test ends.
func CreateTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	assert.Equal(t, expected, resp.StatusCode, "unexpected status code")
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	assert.Equal(t, expected, resp.Header.Get("Content-Type"), "unexpected content type")
}

// MakeRequest creates and executes an HTTP request, returning the response.
// The response body is closed when the test ends.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

// WebSocketURL converts an httptest server URL into the chat endpoint URL.
// query is appended verbatim when not empty.
func WebSocketURL(serverURL, query string) string {
	u := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

// DialWebSocket opens a WebSocket connection presenting origin. An empty
// origin sends no Origin header.
func DialWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// ConnectWebSocket dials url with the default origin and closes the
// connection when the test ends.
func ConnectWebSocket(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := DialWebSocket(url, DefaultOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendJoin sends the join frame carrying the display name.
func SendJoin(conn *websocket.Conn, name string) error {
	return conn.WriteJSON(map[string]string{"type": "join", "username": name})
}

// SendChat sends a chat message frame.
func SendChat(conn *websocket.Conn, text string) error {
	return conn.WriteJSON(map[string]string{"type": "message", "text": text})
}

// ReceiveEvent reads the next event from the connection.
func ReceiveEvent(conn *websocket.Conn) (chat.Event, error) {
	var ev chat.Event
	if err := conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
		return ev, err
	}
	err := conn.ReadJSON(&ev)
	return ev, err
}

// ReceiveUntil reads events until one has the given text and returns every
// event read, the matching one last.
func ReceiveUntil(t *testing.T, conn *websocket.Conn, text string) []chat.Event {
	t.Helper()
	var events []chat.Event
	for {
		ev, err := ReceiveEvent(conn)
		require.NoError(t, err, "waiting for %q", text)
		events = append(events, ev)
		if ev.Text == text {
			return events
		}
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// LineConn is a raw TCP chat client.
type LineConn struct {
	net.Conn
	reader *bufio.Reader
}

// DialTCP connects to a raw TCP chat listener and closes the connection when
// the test ends.
func DialTCP(t *testing.T, addr string) *LineConn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &LineConn{Conn: conn, reader: bufio.NewReader(conn)}
}

// WriteLine sends line followed by a newline.
func (c *LineConn) WriteLine(line string) error {
	_, err := c.Write([]byte(line + "\n"))
	return err
}

// ReadLine returns the next line without its terminator.
func (c *LineConn) ReadLine() (string, error) {
	if err := c.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
		return "", err
	}
	line, err := c.reader.ReadString('\n')
	return strings.TrimRight(line, "\r\n"), err
}

// ReadUntil reads lines until one contains substr and returns every line
// read, the matching one last.
func (c *LineConn) ReadUntil(t *testing.T, substr string) []string {
	t.Helper()
	var lines []string
	for {
		line, err := c.ReadLine()
		require.NoError(t, err, "waiting for %q", substr)
		lines = append(lines, line)
		if strings.Contains(line, substr) {
			return lines
		}
	}
}
