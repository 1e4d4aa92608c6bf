// Package dialogue turns a user utterance plus bounded conversation history
// into the next system utterance via the completion collaborator.
package dialogue

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/tenochca/dementia-chat-app/internal/convo"
)

// Completer is the completion collaborator. Generation halts at the first
// stop marker or at maxTokens.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int, stop []string) (string, error)
}

const (
	systemPrompt = "You are an assistant for dementia patients. Provide any response as much short as possible."
	maxTokens    = 256
	// historyTurns bounds how many prior utterances are rendered into the prompt.
	historyTurns = 5
)

// Fallback is returned whenever the completion collaborator fails. The
// failure is never fatal to the session.
const Fallback = "I'm sorry, I encountered an error while processing your request."

var stopMarkers = []string{"<|end|>", ".", "?"}

// Manager builds prompts and records exchanges for one session.
type Manager struct {
	completer Completer
	timeout   time.Duration
}

func NewManager(c Completer, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Manager{completer: c, timeout: timeout}
}

// Reply generates the next system utterance for userText and appends the
// exchange to the log. On completion failure only the user turn is appended
// and the fixed fallback string is returned.
func (m *Manager) Reply(ctx context.Context, convLog *convo.Log, userText string) string {
	prompt := buildPrompt(convLog.Recent(historyTurns), userText)

	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	out, err := m.completer.Complete(cctx, prompt, maxTokens, stopMarkers)
	if err != nil {
		log.Printf("llm error: %v", err)
		convLog.Append(convo.SpeakerUser, userText)
		return Fallback
	}

	reply := extractReply(out)
	convLog.Append(convo.SpeakerUser, userText)
	convLog.Append(convo.SpeakerSystem, reply)
	return reply
}

// buildPrompt renders the fixed system instruction, up to the last
// historyTurns prior turns, the new user turn, and an open assistant marker.
func buildPrompt(history []convo.Utterance, userText string) string {
	var b strings.Builder
	b.WriteString("<|system|>\n")
	b.WriteString(systemPrompt)
	b.WriteString("<|end|>")
	for _, u := range history {
		if u.Speaker == convo.SpeakerUser {
			b.WriteString("\n<|user|>\n")
		} else {
			b.WriteString("\n<|assistant|>\n")
		}
		b.WriteString(u.Text)
		b.WriteString("<|end|>")
	}
	b.WriteString("\n<|user|>\n")
	b.WriteString(userText)
	b.WriteString("<|end|>\n<|assistant|>\n")
	return b.String()
}

// extractReply keeps the text after the final assistant marker. Models that
// echo the prompt include the marker; plain completions pass through intact.
func extractReply(output string) string {
	parts := strings.Split(output, "<|assistant|>")
	return strings.TrimSpace(parts[len(parts)-1])
}
