package dialogue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tenochca/dementia-chat-app/internal/convo"
)

type fakeCompleter struct {
	reply      string
	err        error
	lastPrompt string
	lastStop   []string
	lastMax    int
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string, maxTokens int, stop []string) (string, error) {
	f.lastPrompt, f.lastMax, f.lastStop = prompt, maxTokens, stop
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func TestBuildPrompt_SingleUserTurn(t *testing.T) {
	p := buildPrompt(nil, "hello")
	if got := strings.Count(p, "<|user|>"); got != 1 {
		t.Fatalf("expected exactly one user segment, got %d in %q", got, p)
	}
	if !strings.Contains(p, "<|user|>\nhello<|end|>") {
		t.Fatalf("user segment missing text: %q", p)
	}
	if !strings.HasSuffix(p, "<|assistant|>\n") {
		t.Fatalf("prompt must end with open assistant marker: %q", p)
	}
	if !strings.HasPrefix(p, "<|system|>\n") {
		t.Fatalf("prompt must start with system instruction: %q", p)
	}
}

func TestBuildPrompt_AlternatingHistory(t *testing.T) {
	history := []convo.Utterance{
		{Speaker: convo.SpeakerUser, Text: "hi"},
		{Speaker: convo.SpeakerSystem, Text: "hello"},
	}
	p := buildPrompt(history, "how are you")
	if got := strings.Count(p, "<|user|>"); got != 2 {
		t.Fatalf("expected 2 user segments, got %d", got)
	}
	// one history turn plus the open trailing marker
	if got := strings.Count(p, "<|assistant|>"); got != 2 {
		t.Fatalf("expected 2 assistant markers, got %d", got)
	}
	if strings.Index(p, "hi") > strings.Index(p, "hello") {
		t.Fatalf("history out of order: %q", p)
	}
}

func TestReply_AppendsExchange(t *testing.T) {
	fc := &fakeCompleter{reply: "I am fine"}
	m := NewManager(fc, time.Second)
	l := convo.NewLog(time.Now())

	got := m.Reply(context.Background(), l, "how are you")
	if got != "I am fine" {
		t.Fatalf("unexpected reply: %q", got)
	}
	entries := l.Recent(10)
	if len(entries) != 2 {
		t.Fatalf("expected user+system entries, got %d", len(entries))
	}
	if entries[0].Speaker != convo.SpeakerUser || entries[0].Text != "how are you" {
		t.Fatalf("unexpected user entry: %+v", entries[0])
	}
	if entries[1].Speaker != convo.SpeakerSystem || entries[1].Text != "I am fine" {
		t.Fatalf("unexpected system entry: %+v", entries[1])
	}
	if fc.lastMax != maxTokens {
		t.Fatalf("expected max tokens %d, got %d", maxTokens, fc.lastMax)
	}
	if len(fc.lastStop) == 0 || fc.lastStop[0] != "<|end|>" {
		t.Fatalf("expected stop markers passed through, got %v", fc.lastStop)
	}
}

func TestReply_FallbackOnError(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("timeout")}
	m := NewManager(fc, time.Second)
	l := convo.NewLog(time.Now())

	got := m.Reply(context.Background(), l, "what is today")
	if got != Fallback {
		t.Fatalf("expected fallback apology, got %q", got)
	}
	entries := l.Recent(10)
	if len(entries) != 1 {
		t.Fatalf("expected only the user entry on failure, got %d", len(entries))
	}
	if entries[0].Speaker != convo.SpeakerUser || entries[0].Text != "what is today" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestReply_HistoryBounded(t *testing.T) {
	fc := &fakeCompleter{reply: "ok"}
	m := NewManager(fc, time.Second)
	l := convo.NewLog(time.Now())
	for i := 0; i < 10; i++ {
		m.Reply(context.Background(), l, "turn")
	}
	// last prompt: at most historyTurns prior turns + the new user turn
	if got := strings.Count(fc.lastPrompt, "<|end|>"); got > historyTurns+2 {
		t.Fatalf("prompt carries too much history: %d segments\n%q", got, fc.lastPrompt)
	}
}

func TestExtractReply(t *testing.T) {
	cases := []struct{ in, want string }{
		{"plain reply", "plain reply"},
		{"echoed prompt <|assistant|>\n  the reply  ", "the reply"},
		{"<|assistant|>\na<|assistant|>\nb", "b"},
	}
	for _, tc := range cases {
		if got := extractReply(tc.in); got != tc.want {
			t.Fatalf("extractReply(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
