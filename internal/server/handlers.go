// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, statistics and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gochat/internal/chat"
)

// Handlers serves the HTTP surface of a chat engine.
type Handlers struct {
	engine   *chat.Engine
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	draining bool
	sessions sync.WaitGroup
}

// NewHandlers creates the HTTP handlers for engine.
func NewHandlers(engine *chat.Engine, cfg Config, log *slog.Logger) *Handlers {
	log = log.With("component", "http")
	origins := newOriginPolicy(cfg.AllowedOrigins, log)
	return &Handlers{
		engine: engine,
		cfg:    cfg,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
	}
}

// WebSocket handles WebSocket upgrade requests and runs a chat session for
// the connection until it ends. The display name may be given with the
// username query parameter; otherwise the client must send a join frame.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	if !h.beginSession() {
		http.Error(w, "Server is shutting down.", http.StatusServiceUnavailable)
		return
	}
	defer h.sessions.Done()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	ws := newWSConn(conn, r.RemoteAddr, r.URL.Query().Get("username"), h.cfg, h.log)
	session := chat.NewSession(h.engine, ws, sessionOptions(h.cfg, h.log)...)
	if err := session.Run(r.Context()); err != nil {
		h.log.Info("websocket session ended", "remote", r.RemoteAddr, "error", err)
	}
}

// beginSession counts a new session unless Wait has been called.
func (h *Handlers) beginSession() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.draining {
		return false
	}
	h.sessions.Add(1)
	return true
}

// Wait refuses further WebSocket sessions and blocks until every running one
// has finished or timeout elapses.
func (h *Handlers) Wait(timeout time.Duration) error {
	h.mu.Lock()
	h.draining = true
	h.mu.Unlock()

	return waitTimeout(&h.sessions, timeout)
}

// Health provides a simple health check endpoint that returns server status.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "GoChat server is running!")
}

// Stats describes the current state of the room.
type Stats struct {
	Participants int    `json:"participants"`
	LastEventID  uint64 `json:"last_event_id"`
	History      int    `json:"history"`
}

// Stats reports the participant count and history position as JSON.
func (h *Handlers) Stats(w http.ResponseWriter, _ *http.Request) {
	stats := Stats{
		Participants: h.engine.Registry().Count(),
		LastEventID:  h.engine.History().LastID(),
		History:      h.engine.History().Len(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		h.log.Error("writing stats response", "error", err)
	}
}

// TestPage serves an HTML page for trying the chat from a browser.
func (h *Handlers) TestPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		h.log.Error("writing HTML response", "error", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>GoChat WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        #nameInput { width: 150px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
        .message { color: #222; }
        .notification, .system { color: gray; font-style: italic; }
    </style>
</head>
<body>
    <h1>GoChat WebSocket Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="nameInput" placeholder="Your name">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const nameInput = document.getElementById('nameInput');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addLine(text, kind) {
            const el = document.createElement('div');
            el.className = kind;
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function renderEvent(ev) {
            const ts = new Date(ev.timestamp).toLocaleTimeString();
            if (ev.type === 'message') {
                addLine('[' + ts + '] ' + ev.username + ': ' + ev.text, 'message');
            } else {
                addLine('[' + ts + '] ' + ev.text, ev.type);
            }
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            nameInput.disabled = connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function connect() {
            const name = nameInput.value.trim() || 'Anonymous';
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');

            ws.onopen = function() {
                ws.send(JSON.stringify({type: 'join', username: name}));
                updateStatus(true);
            };

            ws.onmessage = function(event) {
                try {
                    renderEvent(JSON.parse(event.data));
                } catch (e) {
                    addLine(event.data, 'system');
                }
            };

            ws.onclose = function() {
                addLine('Connection closed', 'system');
                updateStatus(false);
                ws = null;
            };

            ws.onerror = function() {
                addLine('Connection error', 'system');
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendMessage() {
            const text = messageInput.value.trim();
            if (text && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({type: 'message', text: text}));
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
