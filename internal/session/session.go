// Package session drives one client connection's conversation: inbound
// message handling, the periodic score push, and the lifecycle
// Connecting -> Active -> Closing -> Closed.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/tenochca/dementia-chat-app/internal/biomarker"
	"github.com/tenochca/dementia-chat-app/internal/convo"
)

// Options carries the collaborators injected into every session. The
// completion, speech and storage handles are process-wide and read-only.
type Options struct {
	Responder   Responder
	Transcriber Transcriber
	Synthesizer Synthesizer
	Store       TranscriptStore
	// Interval between periodic score pushes. Defaults to 5s.
	Interval time.Duration
}

// Session owns one connection's conversational state. Inbound handling runs
// on the connection's reader goroutine; the periodic tick is a second
// goroutine. They share state only through the mutex-guarded log and engine.
type Session struct {
	id     string
	start  time.Time
	log    *convo.Log
	engine *biomarker.Engine
	sender Sender
	opts   Options

	mu         sync.Mutex
	state      State
	cancelTick context.CancelFunc
}

// New creates a session in the Connecting state.
func New(id string, sender Sender, opts Options) *Session {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	return &Session{
		id:     id,
		sender: sender,
		opts:   opts,
		state:  StateConnecting,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Log exposes the utterance log (used by the host for final flushing and by tests).
func (s *Session) Log() *convo.Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log
}

// Start transitions Connecting -> Active: initializes the log and rolling
// state and launches the periodic score task.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return fmt.Errorf("session %s: start from state %s", s.id, s.state)
	}
	s.start = time.Now()
	s.log = convo.NewLog(s.start)
	s.engine = biomarker.NewEngine()
	s.state = StateActive

	if s.opts.Store != nil {
		store := s.opts.Store
		key := fmt.Sprintf("transcripts/%s.csv", s.id)
		s.log.OnAppend(func(rows [][]string) {
			data, err := convo.CSV(rows)
			if err != nil {
				log.Printf("[%s] transcript encode error: %v", s.id, err)
				return
			}
			if err := store.Upload(key, "text/csv", data); err != nil {
				log.Printf("[%s] transcript upload error: %v", s.id, err)
			}
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelTick = cancel
	interval := s.opts.Interval
	s.mu.Unlock()

	go s.runPeriodic(ctx, interval)
	log.Printf("[%s] session active", s.id)
	return nil
}

// Handle parses and dispatches one inbound frame. Malformed payloads are
// logged and dropped; the connection stays open.
func (s *Session) Handle(raw []byte) {
	if s.State() != StateActive {
		return
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("[%s] malformed message dropped: %v", s.id, err)
		return
	}
	switch env.Type {
	case TypeOverlappedSpeech:
		s.handleOverlap()
	case TypeTranscription:
		var text string
		if err := json.Unmarshal(env.Data, &text); err != nil {
			log.Printf("[%s] malformed transcription dropped: %v", s.id, err)
			return
		}
		s.handleTranscription(strings.ToLower(text))
	case TypeAudioData:
		var b64 string
		if err := json.Unmarshal(env.Data, &b64); err != nil {
			log.Printf("[%s] malformed audio_data dropped: %v", s.id, err)
			return
		}
		s.handleAudio(b64, env.SampleRate)
	default:
		log.Printf("[%s] unknown message type %q dropped", s.id, env.Type)
	}
}

func (s *Session) handleOverlap() {
	s.engine.RecordOverlap()
	log.Printf("[%s] overlapped speech detected (count=%.1f)", s.id, s.engine.OverlapCount())
}

// handleTranscription produces exactly two sends, in order: the immediate
// per-utterance scores, then the generated reply.
func (s *Session) handleTranscription(userUtt string) {
	scores := s.engine.Scores(userUtt)
	s.send(outMessage{Type: TypeBiomarkerScores, Data: scores})

	reply := s.opts.Responder.Reply(context.Background(), s.log, userUtt)
	s.send(outMessage{Type: TypeLLMResponse, Data: reply})

	if s.opts.Synthesizer != nil && reply != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.opts.Synthesizer.Synthesize(ctx, reply); err != nil {
				log.Printf("[%s] tts error: %v", s.id, err)
			}
		}()
	}
}

// handleAudio decodes the payload and hands it to the transcription pipeline.
// Failures are logged and ignored; no reply is required.
func (s *Session) handleAudio(b64 string, sampleRate int) {
	audio, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		log.Printf("[%s] audio decode error: %v", s.id, err)
		return
	}
	log.Printf("[%s] received audio data: %d bytes at %dHz", s.id, len(audio), sampleRate)
	if s.opts.Transcriber == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		text, err := s.opts.Transcriber.Transcribe(ctx, audio, sampleRate)
		if err != nil {
			log.Printf("[%s] audio transcription error: %v", s.id, err)
			return
		}
		log.Printf("[%s] audio transcription: %s", s.id, text)
	}()
}

// runPeriodic pushes the rolling scores on a fixed interval, independent of
// inbound traffic, until the session closes.
func (s *Session) runPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Session) tick() {
	scores := biomarker.PeriodicScores{
		Anomia:     s.engine.Anomia(time.Since(s.start)),
		TurnTaking: s.engine.TurnTaking(),
	}
	s.send(outMessage{Type: TypePeriodicScores, Data: scores})
}

// send writes one outbound message. Sends after close and write failures are
// non-fatal, logged errors.
func (s *Session) send(msg outMessage) {
	s.mu.Lock()
	closed := s.state == StateClosing || s.state == StateClosed
	s.mu.Unlock()
	if closed {
		log.Printf("[%s] dropped %s send on closed session", s.id, msg.Type)
		return
	}
	if err := s.sender.Send(msg); err != nil {
		log.Printf("[%s] send %s error: %v", s.id, msg.Type, err)
	}
}

// Close transitions to Closing: cancels the periodic task, clears rolling
// state, flushes the transcript best-effort, then lands in Closed. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	wasActive := s.state == StateActive
	s.state = StateClosing
	cancel := s.cancelTick
	s.cancelTick = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if wasActive {
		s.engine.Reset()
		if s.opts.Store != nil {
			if data, err := convo.CSV(s.log.Records()); err == nil {
				key := fmt.Sprintf("transcripts/%s.csv", s.id)
				if err := s.opts.Store.Upload(key, "text/csv", data); err != nil {
					log.Printf("[%s] final transcript upload error: %v", s.id, err)
				}
			}
		}
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	log.Printf("[%s] session closed", s.id)
}
