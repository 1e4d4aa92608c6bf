// Package convo keeps the ordered utterance log for one conversation session.
package convo

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sync"
	"time"
)

// Speaker identifies who produced an utterance.
type Speaker string

const (
	SpeakerUser   Speaker = "User"
	SpeakerSystem Speaker = "System"
)

// Utterance is one recorded turn. Immutable once appended.
type Utterance struct {
	Speaker Speaker
	Text    string
	// Offset is the duration since session start at which the utterance was recorded.
	Offset time.Duration
}

// Log is an append-only, time-ordered record of turns for one session.
// Appends happen on the connection's handler goroutine; reads may come from the
// periodic task or a flusher, so all access is mutex-guarded.
type Log struct {
	mu      sync.Mutex
	start   time.Time
	entries []Utterance
	flush   func(rows [][]string)
}

// NewLog creates a log anchored at the given session start time.
func NewLog(start time.Time) *Log {
	return &Log{start: start}
}

// OnAppend registers a durable-write hook. It is invoked asynchronously with a
// full snapshot of the records after every append; any failure is the hook's
// to log and never affects the in-memory log.
func (l *Log) OnAppend(flush func(rows [][]string)) {
	l.mu.Lock()
	l.flush = flush
	l.mu.Unlock()
}

// Append records an utterance stamped with the current relative time.
func (l *Log) Append(speaker Speaker, text string) Utterance {
	l.mu.Lock()
	u := Utterance{Speaker: speaker, Text: text, Offset: time.Since(l.start)}
	l.entries = append(l.entries, u)
	flush := l.flush
	var rows [][]string
	if flush != nil {
		rows = l.recordsLocked()
	}
	l.mu.Unlock()
	if flush != nil {
		go flush(rows)
	}
	return u
}

// Recent returns the last k entries, oldest first (fewer if the log is shorter).
// The returned slice is a copy.
func (l *Log) Recent(k int) []Utterance {
	l.mu.Lock()
	defer l.mu.Unlock()
	if k > len(l.entries) {
		k = len(l.entries)
	}
	out := make([]Utterance, k)
	copy(out, l.entries[len(l.entries)-k:])
	return out
}

// Len reports the number of recorded utterances.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Records renders the full log as durable rows: a header followed by one
// Speaker/Utt/Time row per utterance in chronological order.
func (l *Log) Records() [][]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recordsLocked()
}

func (l *Log) recordsLocked() [][]string {
	rows := make([][]string, 0, len(l.entries)+1)
	rows = append(rows, []string{"Speaker", "Utt", "Time"})
	for _, u := range l.entries {
		rows = append(rows, []string{string(u.Speaker), u.Text, FormatOffset(u.Offset)})
	}
	return rows
}

// CSV serializes the records for upload.
func CSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("encode transcript csv: %w", err)
	}
	return buf.Bytes(), nil
}

// FormatOffset renders a relative time as H:MM:SS.
func FormatOffset(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
