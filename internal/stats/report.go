package stats

import (
	"context"
	"io"

	"github.com/verte-zerg/typerace/internal/model"
)

// SessionLister loads stored sessions.
type SessionLister interface {
	ListSessions(ctx context.Context, cfg model.StatsConfig) ([]model.SessionAggregate, error)
}

// Report contains precomputed data for stats rendering.
type Report struct {
	Sessions    []model.SessionAggregate
	Summary     Summary
	CurveWindow int
}

// BuildReport loads and prepares data for stats rendering.
func BuildReport(ctx context.Context, src SessionLister, cfg model.StatsConfig) (Report, error) {
	sessions, err := src.ListSessions(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	if cfg.Last > 0 && len(sessions) > cfg.Last {
		sessions = sessions[len(sessions)-cfg.Last:]
	}
	return Report{
		Sessions:    sessions,
		Summary:     Summarize(sessions),
		CurveWindow: cfg.CurveWindow,
	}, nil
}

// Render writes the summary, the learning curves and the session table.
func (r Report) Render(w io.Writer) error {
	if err := RenderSummary(w, r.Sessions); err != nil {
		return err
	}
	if err := RenderCurves(w, r.Sessions, r.CurveWindow); err != nil {
		return err
	}
	return RenderSessionTable(w, r.Sessions)
}
