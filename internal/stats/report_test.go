package stats

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/typerace/internal/model"
	"github.com/verte-zerg/typerace/internal/store"
)

func TestBuildReport(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "typerace.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	ctx := context.Background()
	var ids []int64
	for i := 0; i < 4; i++ {
		start := time.Unix(0, 0).UTC().Add(time.Duration(i) * time.Minute)
		end := start.Add(30 * time.Second)
		stats := model.SessionStats{
			UserID:     "u1",
			StartedAt:  start,
			EndedAt:    end,
			Lang:       "en",
			Mode:       "solo",
			TargetText: "alpha beta",
			Correct:    10,
			Incorrect:  1,
			RawWPM:     float64(40 + 10*i),
			NetWPM:     float64(38 + 10*i),
			Accuracy:   90,
			DurationMs: end.Sub(start).Milliseconds(),
			Accepted:   i != 3,
		}
		id, err := st.InsertSession(ctx, stats, nil)
		if err != nil {
			t.Fatalf("insert session: %v", err)
		}
		ids = append(ids, id)
	}

	report, err := BuildReport(ctx, st, model.StatsConfig{Lang: "en", Last: 3, CurveWindow: 2})
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if len(report.Sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(report.Sessions))
	}
	if report.Sessions[0].SessionID != ids[1] || report.Sessions[2].SessionID != ids[3] {
		t.Fatalf("unexpected session ids: %+v", report.Sessions)
	}
	if report.Summary.Rejected != 1 || report.Summary.BestWPM != 58 {
		t.Fatalf("unexpected summary %+v", report.Summary)
	}

	accepted, err := BuildReport(ctx, st, model.StatsConfig{AcceptedOnly: true})
	if err != nil {
		t.Fatalf("build accepted report: %v", err)
	}
	if len(accepted.Sessions) != 3 || accepted.Summary.Rejected != 0 {
		t.Fatalf("unexpected accepted report %+v", accepted.Summary)
	}

	var buf bytes.Buffer
	if err := report.Render(&buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Summary", "Rejected: 1", "Learning Curves", "rejected (0)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}
