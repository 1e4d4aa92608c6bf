package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tenochca/dementia-chat-app/internal/convo"
	"github.com/tenochca/dementia-chat-app/internal/session"
)

type readyFunc func(ctx context.Context) error

func (f readyFunc) Ready(ctx context.Context) error { return f(ctx) }

type fakeResponder struct{ reply string }

func (f fakeResponder) Reply(ctx context.Context, l *convo.Log, userText string) string {
	l.Append(convo.SpeakerUser, userText)
	l.Append(convo.SpeakerSystem, f.reply)
	return f.reply
}

type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialHost(t *testing.T, h *Host) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWebSocket))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() { _ = conn.Close(); srv.Close() }
}

func readMessage(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m wireMessage
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return m
}

func TestHost_TranscriptionRoundTrip(t *testing.T) {
	h := NewHost(
		readyFunc(func(context.Context) error { return nil }),
		session.Options{Responder: fakeResponder{reply: "good morning"}, Interval: time.Hour},
	)
	conn, cleanup := dialHost(t, h)
	defer cleanup()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"transcription","data":"hello"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	first := readMessage(t, conn)
	if first.Type != "biomarker_scores" {
		t.Fatalf("expected biomarker_scores first, got %s", first.Type)
	}
	var scores map[string]float64
	if err := json.Unmarshal(first.Data, &scores); err != nil {
		t.Fatalf("decode scores: %v", err)
	}
	for _, k := range []string{"pragmatic", "grammar", "prosody", "pronunciation"} {
		v, ok := scores[k]
		if !ok || v < 0 || v > 1 {
			t.Fatalf("missing or out-of-range %s score: %v", k, scores)
		}
	}

	second := readMessage(t, conn)
	if second.Type != "llm_response" {
		t.Fatalf("expected llm_response second, got %s", second.Type)
	}
	var reply string
	if err := json.Unmarshal(second.Data, &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply != "good morning" {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestHost_RefusesWhenModelNotReady(t *testing.T) {
	h := NewHost(
		readyFunc(func(context.Context) error { return errors.New("model unavailable") }),
		session.Options{Responder: fakeResponder{}, Interval: time.Hour},
	)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWebSocket))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("expected handshake failure when model not ready")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %+v", resp)
	}
}

func TestHost_PeriodicScoresPushedWithoutTraffic(t *testing.T) {
	h := NewHost(
		readyFunc(func(context.Context) error { return nil }),
		session.Options{Responder: fakeResponder{}, Interval: 30 * time.Millisecond},
	)
	conn, cleanup := dialHost(t, h)
	defer cleanup()

	m := readMessage(t, conn)
	if m.Type != "periodic_scores" {
		t.Fatalf("expected periodic_scores push, got %s", m.Type)
	}
	var p map[string]float64
	if err := json.Unmarshal(m.Data, &p); err != nil {
		t.Fatalf("decode periodic scores: %v", err)
	}
	for _, k := range []string{"anomia", "turntaking"} {
		v, ok := p[k]
		if !ok || v < 0 || v > 1 {
			t.Fatalf("missing or out-of-range %s: %v", k, p)
		}
	}
}

func TestHost_MalformedFrameKeepsConnectionOpen(t *testing.T) {
	h := NewHost(
		readyFunc(func(context.Context) error { return nil }),
		session.Options{Responder: fakeResponder{reply: "still here"}, Interval: time.Hour},
	)
	conn, cleanup := dialHost(t, h)
	defer cleanup()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{garbage`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"transcription","data":"hi"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readMessage(t, conn); got.Type != "biomarker_scores" {
		t.Fatalf("connection should still serve after malformed frame, got %s", got.Type)
	}
}
