// Package session owns a single typing attempt: its clock, keystroke log and
// live metrics.
//
// A Session is not safe for concurrent use. It is driven from one event loop
// which calls AcceptInput on every input change and Tick once per second.
package session

import (
	"errors"
	"time"

	"github.com/verte-zerg/typerace/internal/model"
)

// ErrInvalidWordCount is returned when a session is asked for no words.
var ErrInvalidWordCount = errors.New("word count must be > 0")

// TargetSource produces target texts.
type TargetSource interface {
	Target(wordCount int) string
}

// FixedText is a TargetSource that always returns the same text, used when
// every racer in a room must type identical words.
type FixedText string

// Target implements TargetSource.
func (f FixedText) Target(int) string { return string(f) }

// Option customises a Session.
type Option func(*Session)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is one timed typing attempt.
type Session struct {
	source    TargetSource
	wordCount int
	budget    time.Duration
	now       func() time.Time

	target []rune
	typed  []rune
	log    []model.Keystroke

	state     model.SessionState
	startedAt time.Time
	endedAt   time.Time
	remaining time.Duration
	reason    model.FinishReason
	pastes    int
	metrics   model.Metrics
	epoch     uint64
}

// New creates an idle session with a freshly generated target.
func New(source TargetSource, wordCount int, budget time.Duration, opts ...Option) (*Session, error) {
	if wordCount <= 0 {
		return nil, ErrInvalidWordCount
	}
	s := &Session{
		source:    source,
		wordCount: wordCount,
		budget:    budget,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset()
	return s, nil
}

// Reset discards the current attempt, generates a fresh target and returns to
// idle. Ticks scheduled for the previous attempt are invalidated.
func (s *Session) Reset() {
	s.target = []rune(s.source.Target(s.wordCount))
	s.typed = nil
	s.log = nil
	s.state = model.SessionIdle
	s.startedAt = time.Time{}
	s.endedAt = time.Time{}
	s.remaining = s.budget
	s.reason = ""
	s.pastes = 0
	s.metrics = ComputeMetrics(nil, s.target, 0)
	s.epoch++
}

// AcceptInput applies the full current input string. Input after the session
// finished, and input equal to what is already typed, are ignored.
func (s *Session) AcceptInput(text string) {
	if s.state == model.SessionFinished {
		return
	}
	next := []rune(text)
	if equalRunes(next, s.typed) {
		return
	}
	now := s.now()
	if s.state == model.SessionIdle {
		if len(next) == 0 {
			return
		}
		s.state = model.SessionActive
		s.startedAt = now
	}
	for i := len(s.typed); i < len(next); i++ {
		s.log = append(s.log, model.Keystroke{Char: next[i], At: now})
	}
	s.typed = next
	s.metrics = ComputeMetrics(s.typed, s.target, now.Sub(s.startedAt))
	if len(s.typed) >= len(s.target) {
		s.finish(now, model.FinishCompleted)
	}
}

// NotePaste records a discrete paste event reported by the input layer.
func (s *Session) NotePaste() {
	if s.state == model.SessionFinished {
		return
	}
	s.pastes++
}

// Tick advances the countdown by one second.
func (s *Session) Tick() {
	s.TickEpoch(s.epoch)
}

// TickEpoch advances the countdown only when epoch matches the current
// attempt. It reports whether the tick was applied.
func (s *Session) TickEpoch(epoch uint64) bool {
	if epoch != s.epoch || s.state != model.SessionActive {
		return false
	}
	s.remaining -= time.Second
	if s.remaining <= 0 {
		s.remaining = 0
		now := s.now()
		s.metrics = ComputeMetrics(s.typed, s.target, now.Sub(s.startedAt))
		s.finish(now, model.FinishTimeout)
	}
	return true
}

func (s *Session) finish(now time.Time, reason model.FinishReason) {
	s.state = model.SessionFinished
	s.endedAt = now
	s.reason = reason
}

// Epoch identifies the current attempt. It changes on every Reset.
func (s *Session) Epoch() uint64 { return s.epoch }

// State returns the lifecycle state.
func (s *Session) State() model.SessionState { return s.state }

// Target returns the target text.
func (s *Session) Target() string { return string(s.target) }

// Typed returns the typed text.
func (s *Session) Typed() string { return string(s.typed) }

// Metrics returns the metrics computed at the last state change.
func (s *Session) Metrics() model.Metrics { return s.metrics }

// Remaining returns the time left in the duration budget.
func (s *Session) Remaining() time.Duration { return s.remaining }

// StartedAt returns the time of the first keystroke, or zero when idle.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Log returns a copy of the keystroke log.
func (s *Session) Log() []model.Keystroke {
	out := make([]model.Keystroke, len(s.log))
	copy(out, s.log)
	return out
}

// Progress returns the typed share of the target as a percentage in 0..100.
func (s *Session) Progress() int {
	if len(s.target) == 0 {
		return 0
	}
	p := len(s.typed) * 100 / len(s.target)
	if p > 100 {
		return 100
	}
	return p
}

// Result returns a snapshot of the attempt. It is only meaningful once the
// session has finished.
func (s *Session) Result() model.SessionResult {
	return model.SessionResult{
		Target:      string(s.target),
		Typed:       string(s.typed),
		Log:         s.Log(),
		Metrics:     s.metrics,
		StartedAt:   s.startedAt,
		EndedAt:     s.endedAt,
		Reason:      s.reason,
		PasteEvents: s.pastes,
	}
}

func equalRunes(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
