package session

import (
	"context"
	"encoding/json"

	"github.com/tenochca/dementia-chat-app/internal/convo"
)

// Inbound message types.
const (
	TypeOverlappedSpeech = "overlapped_speech"
	TypeTranscription    = "transcription"
	TypeAudioData        = "audio_data"
)

// Outbound message types.
const (
	TypeBiomarkerScores = "biomarker_scores"
	TypeLLMResponse     = "llm_response"
	TypePeriodicScores  = "periodic_scores"
)

// Envelope is the framed wire message. Data is type-dependent: a string for
// transcription, a base64 string for audio_data, absent for overlapped_speech.
type Envelope struct {
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	SampleRate int             `json:"sampleRate,omitempty"`
}

// outMessage is the outbound frame shape shared by all message kinds.
type outMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Sender delivers one outbound message to the client. Implementations must
// serialize concurrent calls; the handler and the periodic task both send.
type Sender interface {
	Send(v interface{}) error
}

// Responder generates the next system utterance and records the exchange.
type Responder interface {
	Reply(ctx context.Context, log *convo.Log, userText string) string
}

// Transcriber converts recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, sampleRate int) (string, error)
}

// Synthesizer speaks a system utterance aloud.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) error
}

// TranscriptStore persists a rendered transcript snapshot.
type TranscriptStore interface {
	Upload(key, contentType string, data []byte) error
}

// State is the session lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}
