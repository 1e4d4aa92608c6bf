// Package ws hosts chat sessions over a websocket connection: it accepts
// connections, constructs and tears down sessions, and routes frames between
// the client and the session.
package ws

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tenochca/dementia-chat-app/internal/session"
)

// ReadyChecker gates session creation on the completion collaborator being
// available. An unready collaborator refuses the connection outright.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Allow any origin for browser clients; restrict in production
		return true
	},
}

// Host accepts websocket connections and runs one session per connection.
type Host struct {
	ready ReadyChecker
	opts  session.Options
}

func NewHost(ready ReadyChecker, opts session.Options) *Host {
	return &Host{ready: ready, opts: opts}
}

// ServeWebSocket upgrades the request and drives the session until the
// connection closes.
func (h *Host) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := h.ready.Ready(r.Context()); err != nil {
		log.Printf("connection refused, completion model not ready: %v", err)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	id := generateSessionID()
	log.Printf("[%s] client connected: %s", id, r.RemoteAddr)

	sess := session.New(id, &wsSender{conn: conn}, h.opts)
	if err := sess.Start(); err != nil {
		log.Printf("[%s] session start error: %v", id, err)
		return
	}
	defer sess.Close()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[%s] connection closed: %v", id, err)
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		sess.Handle(data)
	}
}

// wsSender serializes all outbound writes on one connection. The session
// handler and its periodic task both send; gorilla connections support only
// one concurrent writer.
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSender) Send(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

func generateSessionID() string { return time.Now().Format("0102150405.000") }
