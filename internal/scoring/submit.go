// Package scoring validates finished sessions and records them.
package scoring

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/typerace/internal/anticheat"
	"github.com/verte-zerg/typerace/internal/model"
)

// ScoreStore persists submitted sessions and player ratings.
type ScoreStore interface {
	InsertSession(ctx context.Context, stats model.SessionStats, log []model.Keystroke) (int64, error)
	GetRating(ctx context.Context, userID string) (int, bool, error)
	SetRating(ctx context.Context, userID string, mmr int) error
}

// Submission is one finished session offered for scoring.
type Submission struct {
	UserID string
	Lang   string
	Mode   string
	RoomID string
	// Ranked submissions move the player's MMR when accepted.
	Ranked bool
	// Place is the finishing place in a race; zero counts as first.
	Place  int
	Result model.SessionResult
}

// Result is the outcome of a submission. A rejected score is a Result, not
// an error.
type Result struct {
	SessionID      int64
	Accepted       bool
	SuspicionScore int
	Flags          []string
	Message        string
	MMR            int
	MMRDelta       int
	Rank           Rank
}

// Submitter runs the analyzer over submissions and stores them.
type Submitter struct {
	analyzer *anticheat.Analyzer
	store    ScoreStore
	log      *logrus.Entry
}

// NewSubmitter returns a Submitter. store may be nil, in which case nothing
// is persisted and ratings are not tracked.
func NewSubmitter(analyzer *anticheat.Analyzer, store ScoreStore) *Submitter {
	return &Submitter{
		analyzer: analyzer,
		store:    store,
		log:      logrus.WithField("component", "scoring"),
	}
}

// Submit validates sub and records it. Only storage failures are errors.
func (s *Submitter) Submit(ctx context.Context, sub Submission) (Result, error) {
	res := sub.Result
	// The claimed figure comes from the reported metrics; the check
	// recomputes it over the span between the session timestamps.
	verdict := s.analyzer.Analyze(anticheat.Input{
		Log:         res.Log,
		TextLen:     len([]rune(res.Typed)),
		Elapsed:     res.EndedAt.Sub(res.StartedAt),
		ClaimedWPM:  res.Metrics.RawWPM,
		PasteEvents: res.PasteEvents,
	})

	out := Result{
		Accepted:       verdict.IsValid,
		SuspicionScore: verdict.SuspicionScore,
		Flags:          verdict.Flags,
	}
	if verdict.IsValid {
		out.Message = "Score accepted"
	} else {
		out.Message = "Score rejected: " + strings.Join(verdict.Flags, ", ")
	}
	entry := s.log.WithField("user", sub.UserID)
	if !verdict.IsValid {
		entry.Warnf("rejected session (score %d): %s", verdict.SuspicionScore, strings.Join(verdict.Flags, ", "))
	}

	if s.store == nil {
		return out, nil
	}

	stats := model.SessionStats{
		UserID:         sub.UserID,
		StartedAt:      res.StartedAt,
		EndedAt:        res.EndedAt,
		Lang:           sub.Lang,
		Mode:           sub.Mode,
		RoomID:         sub.RoomID,
		TargetText:     res.Target,
		Correct:        res.Metrics.CorrectChars,
		Incorrect:      res.Metrics.IncorrectChars,
		RawWPM:         res.Metrics.RawWPM,
		NetWPM:         res.Metrics.NetWPM,
		Accuracy:       res.Metrics.Accuracy,
		DurationMs:     res.Metrics.Elapsed.Milliseconds(),
		Accepted:       verdict.IsValid,
		SuspicionScore: verdict.SuspicionScore,
		Flags:          verdict.Flags,
	}
	id, err := s.store.InsertSession(ctx, stats, res.Log)
	if err != nil {
		return out, fmt.Errorf("save session: %w", err)
	}
	out.SessionID = id

	if !verdict.IsValid || !sub.Ranked {
		return out, nil
	}
	current, ok, err := s.store.GetRating(ctx, sub.UserID)
	if err != nil {
		return out, fmt.Errorf("load rating: %w", err)
	}
	if !ok {
		current = StartingMMR
	}
	place := sub.Place
	if place <= 0 {
		place = 1
	}
	delta := MMRDelta(current, res.Metrics.NetWPM, res.Metrics.Accuracy, place)
	next := current + delta
	if err := s.store.SetRating(ctx, sub.UserID, next); err != nil {
		return out, fmt.Errorf("save rating: %w", err)
	}
	out.MMR = next
	out.MMRDelta = delta
	out.Rank = RankFor(next)
	entry.Infof("mmr %d -> %d (%s)", current, next, out.Rank)
	return out, nil
}
