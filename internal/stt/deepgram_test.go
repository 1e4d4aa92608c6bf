package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func redirected(t *testing.T, srv *httptest.Server) *DeepgramClient {
	t.Helper()
	c := NewDeepgramClient("key", "")
	c.HTTPClient = &http.Client{Timeout: time.Second, Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		req.URL.Scheme = "http"
		req.URL.Host = srv.Listener.Addr().String()
		return http.DefaultTransport.RoundTrip(req)
	})}
	return c
}

func TestTranscribe_NoKey(t *testing.T) {
	c := NewDeepgramClient("", "")
	if _, err := c.Transcribe(context.Background(), []byte{1, 2}, 16000); err == nil {
		t.Fatalf("expected error with missing key")
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	c := NewDeepgramClient("key", "")
	if _, err := c.Transcribe(context.Background(), nil, 16000); err == nil {
		t.Fatalf("expected error with empty audio")
	}
}

func TestTranscribe_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("sample_rate"); got != "16000" {
			t.Errorf("expected sample_rate=16000, got %q", got)
		}
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":" what is today ","confidence":0.98}]}]}}`))
	}))
	defer srv.Close()
	c := redirected(t, srv)
	got, err := c.Transcribe(context.Background(), []byte{1, 2, 3}, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "what is today" {
		t.Fatalf("expected trimmed transcript, got %q", got)
	}
}

func TestTranscribe_Failures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status_non_2xx", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }},
		{"bad_json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("not-json")) }},
		{"empty_channels", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"results":{"channels":[]}}`)) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			c := redirected(t, srv)
			if _, err := c.Transcribe(context.Background(), []byte{1}, 8000); err == nil {
				t.Fatalf("expected error; got nil")
			}
		})
	}
}
