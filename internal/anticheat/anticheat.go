// Package anticheat scores a finished typing session for signs of automated
// or assisted input.
//
// The Analyzer is stateless: all per-session data arrives in Input, so one
// Analyzer can serve any number of concurrent sessions.
package anticheat

import (
	"fmt"
	"math"
	"time"

	"github.com/samber/lo"

	"github.com/verte-zerg/typerace/internal/model"
)

// Human-readable flags attached to a verdict.
const (
	FlagUnnaturalConsistency = "unnatural consistency"
	FlagPossiblePaste        = "possible paste"
	FlagPasteDetected        = "paste detected"
	FlagWPMMismatch          = "wpm mismatch"
)

// Policy holds every threshold and penalty used by the analyzer.
type Policy struct {
	// MinKeystrokes below which a log carries too little signal to judge.
	MinKeystrokes int

	// PauseCutoff separates typing bursts from thinking pauses.
	PauseCutoff time.Duration
	// MinBurstIntervals needed before variance is meaningful.
	MinBurstIntervals int
	// VarianceFloor in ms²; burst variance below it is machine-like.
	VarianceFloor   float64
	VariancePenalty int

	// MaxWPM over the full log span.
	MaxWPM       float64
	SpikePenalty int

	// InstantInterval below which two keystrokes count as one burst pair.
	InstantInterval  time.Duration
	MaxInstantBursts int
	BurstPenalty     int

	// PastePenalty applies per session when the input layer saw a paste.
	PastePenalty int

	// MismatchTolerance is the allowed gap between claimed and recomputed WPM.
	MismatchTolerance float64
	MismatchPenalty   int

	// RejectAt is the score at which a session stops being valid.
	RejectAt int
}

// DefaultPolicy is the authoritative end-of-session policy.
func DefaultPolicy() Policy {
	return Policy{
		MinKeystrokes:     5,
		PauseCutoff:       2 * time.Second,
		MinBurstIntervals: 5,
		VarianceFloor:     5,
		VariancePenalty:   50,
		MaxWPM:            250,
		SpikePenalty:      100,
		InstantInterval:   10 * time.Millisecond,
		MaxInstantBursts:  5,
		BurstPenalty:      40,
		PastePenalty:      40,
		MismatchTolerance: 10,
		MismatchPenalty:   50,
		RejectAt:          100,
	}
}

// AdvisoryPolicy is a softer variant for live, in-game hints. A speed spike
// alone does not reject under it.
func AdvisoryPolicy() Policy {
	p := DefaultPolicy()
	p.MaxWPM = 220
	p.SpikePenalty = 30
	return p
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "default":
		return DefaultPolicy(), nil
	case "advisory":
		return AdvisoryPolicy(), nil
	default:
		return Policy{}, fmt.Errorf("unknown anticheat policy %q", name)
	}
}

// Input is everything the analyzer knows about one session.
type Input struct {
	Log []model.Keystroke
	// TextLen is the length of the submitted text that ClaimedWPM refers to.
	TextLen int
	// Elapsed is the measured session span ClaimedWPM is checked against.
	Elapsed time.Duration
	// ClaimedWPM is the raw WPM the client computed; zero skips the cross-check.
	ClaimedWPM float64
	// PasteEvents counts discrete pastes seen by the input layer.
	PasteEvents int
}

// Analyzer applies a Policy to session inputs.
type Analyzer struct {
	policy Policy
}

// New returns an Analyzer using p.
func New(p Policy) *Analyzer {
	return &Analyzer{policy: p}
}

// Policy returns the analyzer's policy.
func (a *Analyzer) Policy() Policy { return a.policy }

// Analyze scores in. It never fails; a short or empty log is valid.
func (a *Analyzer) Analyze(in Input) model.Verdict {
	p := a.policy
	if len(in.Log) < p.MinKeystrokes {
		return model.Verdict{IsValid: true, SuspicionScore: 0, Flags: []string{}}
	}

	score := 0
	flags := []string{}

	intervals := Intervals(in.Log)
	bursts := lo.Filter(intervals, func(d time.Duration, _ int) bool {
		return d < p.PauseCutoff
	})
	if len(bursts) >= p.MinBurstIntervals && Variance(bursts) < p.VarianceFloor {
		score += p.VariancePenalty
		flags = append(flags, FlagUnnaturalConsistency)
	}

	span := in.Log[len(in.Log)-1].At.Sub(in.Log[0].At)
	if span <= 0 {
		score += p.SpikePenalty
		flags = append(flags, "unrealistic wpm: instantaneous")
	} else if wpm := wordsPerMinute(len(in.Log), span); wpm > p.MaxWPM {
		score += p.SpikePenalty
		flags = append(flags, fmt.Sprintf("unrealistic wpm: %d", int(math.Round(wpm))))
	}

	instant := lo.CountBy(intervals, func(d time.Duration) bool {
		return d < p.InstantInterval
	})
	if instant > p.MaxInstantBursts {
		score += p.BurstPenalty
		flags = append(flags, FlagPossiblePaste)
	}

	if in.ClaimedWPM > 0 && in.Elapsed > 0 {
		recomputed := wordsPerMinute(in.TextLen, in.Elapsed)
		if math.Abs(recomputed-in.ClaimedWPM) > p.MismatchTolerance {
			score += p.MismatchPenalty
			flags = append(flags, FlagWPMMismatch)
		}
	}

	pasted := in.PasteEvents > 0
	if pasted {
		score += p.PastePenalty
		flags = append(flags, FlagPasteDetected)
	}

	return model.Verdict{
		IsValid:        !pasted && score < p.RejectAt,
		SuspicionScore: score,
		Flags:          flags,
	}
}

// Intervals returns the gaps between consecutive keystrokes.
func Intervals(log []model.Keystroke) []time.Duration {
	if len(log) < 2 {
		return nil
	}
	out := make([]time.Duration, 0, len(log)-1)
	for i := 1; i < len(log); i++ {
		out = append(out, log[i].At.Sub(log[i-1].At))
	}
	return out
}

// Variance returns the population variance of ds in ms².
func Variance(ds []time.Duration) float64 {
	if len(ds) == 0 {
		return 0
	}
	ms := lo.Map(ds, func(d time.Duration, _ int) float64 {
		return float64(d) / float64(time.Millisecond)
	})
	mean := lo.Sum(ms) / float64(len(ms))
	var sum float64
	for _, v := range ms {
		sum += (v - mean) * (v - mean)
	}
	return sum / float64(len(ms))
}

func wordsPerMinute(chars int, d time.Duration) float64 {
	return (float64(chars) / 5) / d.Minutes()
}
