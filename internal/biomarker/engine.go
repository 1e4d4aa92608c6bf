// Package biomarker computes heuristic speech/language indicator scores for a
// session: immediate per-utterance scores plus two rolling scores evaluated on
// a periodic tick.
package biomarker

import (
	"math/rand"
	"regexp"
	"sync"
	"time"
)

// ScoreFn maps a single utterance to a score in [0,1]. The built-in scorers
// are placeholders; real models can be substituted without touching session
// or host logic.
type ScoreFn func(utterance string) float64

// RandomScore is the placeholder scorer.
func RandomScore(_ string) float64 { return rand.Float64() }

// Scores are the immediate per-utterance indicators returned on every
// transcribed user turn.
type Scores struct {
	Pragmatic     float64 `json:"pragmatic"`
	Grammar       float64 `json:"grammar"`
	Prosody       float64 `json:"prosody"`
	Pronunciation float64 `json:"pronunciation"`
}

// PeriodicScores are the rolling indicators pushed on each background tick.
type PeriodicScores struct {
	Anomia     float64 `json:"anomia"`
	TurnTaking float64 `json:"turntaking"`
}

const (
	// windowCap bounds the FIFO of retained raw user utterances.
	windowCap = 100
	// maxOverlaps is the overlap count at which turn-taking saturates at 1.
	maxOverlaps = 10
	// overlapDecay is subtracted from the overlap count once per tick.
	overlapDecay = 0.1
	// maxFillersPerMinute is the filler rate at which anomia saturates at 1.
	maxFillersPerMinute = 10
)

// fillerPattern matches repeated-letter hesitation markers ("uh", "um",
// "hmm", "ah" and combinations), case-insensitively.
var fillerPattern = regexp.MustCompile(`(?i)\b(u+h+|a+h+|u+m+|h+m+|h+u+h+|m+h+|h+a+h+)\b`)

// Engine holds one session's rolling biomarker state. The connection handler
// and the periodic task both touch it, so all state is mutex-guarded.
type Engine struct {
	mu      sync.Mutex
	window  []string
	overlap float64

	pragmatic     ScoreFn
	grammar       ScoreFn
	prosody       ScoreFn
	pronunciation ScoreFn
}

// NewEngine constructs an engine with the placeholder scorers.
func NewEngine() *Engine {
	return &Engine{
		pragmatic:     RandomScore,
		grammar:       RandomScore,
		prosody:       RandomScore,
		pronunciation: RandomScore,
	}
}

// WithScorers replaces the per-utterance scoring strategies.
func (e *Engine) WithScorers(pragmatic, grammar, prosody, pronunciation ScoreFn) *Engine {
	e.pragmatic, e.grammar, e.prosody, e.pronunciation = pragmatic, grammar, prosody, pronunciation
	return e
}

// Scores retains the utterance in the rolling window and returns the four
// immediate per-utterance scores.
func (e *Engine) Scores(utterance string) Scores {
	e.mu.Lock()
	e.window = append(e.window, utterance)
	if len(e.window) > windowCap {
		e.window = e.window[len(e.window)-windowCap:]
	}
	e.mu.Unlock()
	return Scores{
		Pragmatic:     e.pragmatic(utterance),
		Grammar:       e.grammar(utterance),
		Prosody:       e.prosody(utterance),
		Pronunciation: e.pronunciation(utterance),
	}
}

// RecordOverlap notes one overlapped-speech event.
func (e *Engine) RecordOverlap() {
	e.mu.Lock()
	e.overlap++
	e.mu.Unlock()
}

// TurnTaking returns min(overlapCount/10, 1), then decays the count by 0.1
// (floored at 0). The decay is per call, not per unit of wall-clock time; the
// periodic tick is the only caller in normal operation.
func (e *Engine) TurnTaking() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	score := e.overlap / maxOverlaps
	if score > 1 {
		score = 1
	}
	e.overlap -= overlapDecay
	if e.overlap < 0 {
		e.overlap = 0
	}
	return score
}

// Anomia scans the retained window for filler-word matches and normalizes the
// per-minute rate against elapsed wall-clock session time. The window is
// capacity-bounded while elapsed time is not; a very long session dilutes the
// rate once old utterances are evicted. That asymmetry is intentional.
func (e *Engine) Anomia(elapsed time.Duration) float64 {
	e.mu.Lock()
	var fillers int
	for _, utt := range e.window {
		fillers += len(fillerPattern.FindAllString(utt, -1))
	}
	e.mu.Unlock()

	minutes := elapsed.Minutes()
	if minutes <= 0 || fillers == 0 {
		return 0
	}
	rate := float64(fillers) / minutes
	score := rate / maxFillersPerMinute
	if score > 1 {
		score = 1
	}
	return score
}

// OverlapCount reports the current (possibly fractionally decayed) overlap count.
func (e *Engine) OverlapCount() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.overlap
}

// WindowLen reports how many user utterances are retained.
func (e *Engine) WindowLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.window)
}

// Reset clears all rolling state. Called when the session closes.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.window = nil
	e.overlap = 0
	e.mu.Unlock()
}
