package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/typerace/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "typerace.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func sampleStats(ended time.Time, wpm float64, accepted bool) model.SessionStats {
	return model.SessionStats{
		UserID:         "u1",
		StartedAt:      ended.Add(-30 * time.Second),
		EndedAt:        ended,
		Lang:           "en",
		Mode:           "solo",
		TargetText:     "the quick brown fox",
		Correct:        19,
		RawWPM:         wpm,
		NetWPM:         wpm,
		Accuracy:       100,
		DurationMs:     30000,
		Accepted:       accepted,
		SuspicionScore: 0,
	}
}

func TestInsertAndListSessions(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	for i, wpm := range []float64{40, 50, 60} {
		if _, err := st.InsertSession(ctx, sampleStats(base.Add(time.Duration(i)*time.Hour), wpm, true), nil); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	rejected := sampleStats(base.Add(5*time.Hour), 300, false)
	rejected.SuspicionScore = 140
	rejected.Flags = []string{"paste detected"}
	if _, err := st.InsertSession(ctx, rejected, nil); err != nil {
		t.Fatalf("insert rejected: %v", err)
	}

	all, err := st.ListSessions(ctx, model.StatsConfig{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 4 || all[0].NetWPM != 40 || all[3].Accepted || all[3].SuspicionScore != 140 {
		t.Fatalf("unexpected sessions %+v", all)
	}

	accepted, err := st.ListSessions(ctx, model.StatsConfig{AcceptedOnly: true})
	if err != nil {
		t.Fatalf("list accepted: %v", err)
	}
	if len(accepted) != 3 {
		t.Fatalf("expected 3 accepted sessions, got %d", len(accepted))
	}

	last, err := st.ListSessions(ctx, model.StatsConfig{Last: 2, AcceptedOnly: true})
	if err != nil {
		t.Fatalf("list last: %v", err)
	}
	if len(last) != 2 || last[0].NetWPM != 50 || last[1].NetWPM != 60 {
		t.Fatalf("unexpected last sessions %+v", last)
	}

	since := base.Add(90 * time.Minute)
	recent, err := st.ListSessions(ctx, model.StatsConfig{Since: &since})
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 sessions since %s, got %d", since, len(recent))
	}

	other, err := st.ListSessions(ctx, model.StatsConfig{Lang: "de"})
	if err != nil {
		t.Fatalf("list lang: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no sessions for de, got %d", len(other))
	}
}

func TestKeystrokesRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 10, 0, 0, 123456789, time.UTC)
	log := []model.Keystroke{
		{Char: 'h', At: at},
		{Char: 'é', At: at.Add(120 * time.Millisecond)},
		{Char: ' ', At: at.Add(300 * time.Millisecond)},
	}
	id, err := st.InsertSession(ctx, sampleStats(at, 45, true), log)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := st.ListKeystrokes(ctx, id)
	if err != nil {
		t.Fatalf("list keystrokes: %v", err)
	}
	if len(got) != len(log) {
		t.Fatalf("expected %d keystrokes, got %d", len(log), len(got))
	}
	for i := range log {
		if got[i].Char != log[i].Char || !got[i].At.Equal(log[i].At) {
			t.Fatalf("keystroke %d mismatch: %+v vs %+v", i, got[i], log[i])
		}
	}
}

func TestRatings(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	if _, ok, err := st.GetRating(ctx, "u1"); err != nil || ok {
		t.Fatalf("expected no rating, got %v %v", ok, err)
	}
	if err := st.SetRating(ctx, "u1", 1250); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := st.SetRating(ctx, "u1", 1300); err != nil {
		t.Fatalf("update: %v", err)
	}
	mmr, ok, err := st.GetRating(ctx, "u1")
	if err != nil || !ok || mmr != 1300 {
		t.Fatalf("expected 1300, got %d %v %v", mmr, ok, err)
	}
}
