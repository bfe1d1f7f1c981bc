// Package stats contains statistics calculations and reporting.
package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/term"

	"github.com/verte-zerg/typerace/internal/model"
)

const (
	sparkChars   = " .:-=+*#%@"
	labelWidth   = 10
	defaultWidth = 80
)

// Summary aggregates a list of sessions.
type Summary struct {
	Sessions    int
	Rejected    int
	AvgWPM      float64
	BestWPM     float64
	AvgAccuracy float64
}

// Summarize computes averages over accepted sessions and counts rejections.
func Summarize(sessions []model.SessionAggregate) Summary {
	accepted := lo.Filter(sessions, func(s model.SessionAggregate, _ int) bool {
		return s.Accepted
	})
	sum := Summary{
		Sessions: len(sessions),
		Rejected: len(sessions) - len(accepted),
	}
	if len(accepted) == 0 {
		return sum
	}
	wpms := lo.Map(accepted, func(s model.SessionAggregate, _ int) float64 { return s.NetWPM })
	accs := lo.Map(accepted, func(s model.SessionAggregate, _ int) float64 { return float64(s.Accuracy) })
	sum.AvgWPM = lo.Sum(wpms) / float64(len(accepted))
	sum.BestWPM = lo.Max(wpms)
	sum.AvgAccuracy = lo.Sum(accs) / float64(len(accepted))
	return sum
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal := lo.Min(values)
	maxVal := lo.Max(values)
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = min(max(idx, 0), len(sparkChars)-1)
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// Resample shrinks values to at most width points by averaging buckets.
func Resample(values []float64, width int) []float64 {
	if width <= 0 || len(values) <= width {
		return values
	}
	out := make([]float64, width)
	for i := 0; i < width; i++ {
		start := i * len(values) / width
		end := max((i+1)*len(values)/width, start+1)
		out[i] = lo.Sum(values[start:end]) / float64(end-start)
	}
	return out
}

// RenderSummary prints a summary for sessions.
func RenderSummary(w io.Writer, sessions []model.SessionAggregate) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No sessions found.")
		return err
	}
	sum := Summarize(sessions)
	if _, err := fmt.Fprintln(w, "Summary"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Sessions: %d\n", sum.Sessions); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Rejected: %d\n", sum.Rejected); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Avg WPM: %.2f\n", sum.AvgWPM); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Best WPM: %.2f\n", sum.BestWPM); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Avg Accuracy: %.2f%%\n", sum.AvgAccuracy); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, ""); err != nil {
		return err
	}
	return nil
}

// RenderCurves prints learning curves for WPM and accuracy sized to the
// terminal.
func RenderCurves(w io.Writer, sessions []model.SessionAggregate, window int) error {
	return RenderCurvesWithWidth(w, sessions, window, terminalWidth())
}

// RenderCurvesWithWidth prints learning curves sized to a given total width.
// Rejected sessions are left out of the curves.
func RenderCurvesWithWidth(w io.Writer, sessions []model.SessionAggregate, window, totalWidth int) error {
	accepted := lo.Filter(sessions, func(s model.SessionAggregate, _ int) bool {
		return s.Accepted
	})
	if len(accepted) == 0 {
		return nil
	}
	wpms := lo.Map(accepted, func(s model.SessionAggregate, _ int) float64 { return s.NetWPM })
	accs := lo.Map(accepted, func(s model.SessionAggregate, _ int) float64 { return float64(s.Accuracy) })
	wpms = MovingAverage(wpms, window)
	accs = MovingAverage(accs, window)

	width := max(totalWidth-labelWidth, 1)
	if _, err := fmt.Fprintln(w, "Learning Curves"); err != nil {
		return err
	}
	rows := []struct {
		name   string
		values []float64
	}{
		{"WPM", wpms},
		{"Accuracy", accs},
	}
	for _, row := range rows {
		values := Resample(row.values, width)
		label := fmt.Sprintf("%-*s", labelWidth-1, row.name)
		if _, err := fmt.Fprintf(w, "%s %s\n", label, Sparkline(values)); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, ""); err != nil {
		return err
	}
	return nil
}

// RenderSessionTable prints one row per session.
func RenderSessionTable(w io.Writer, sessions []model.SessionAggregate) error {
	if len(sessions) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "Sessions"); err != nil {
		return err
	}
	cols := []column{
		{header: "Ended"},
		{header: "Net WPM", right: true},
		{header: "Raw WPM", right: true},
		{header: "Accuracy", right: true},
		{header: "Time", right: true},
		{header: "Verdict"},
	}
	rows := lo.Map(sessions, func(s model.SessionAggregate, _ int) []string {
		verdict := "ok"
		if !s.Accepted {
			verdict = fmt.Sprintf("rejected (%d)", s.SuspicionScore)
		}
		return []string{
			s.EndedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%.1f", s.NetWPM),
			fmt.Sprintf("%.1f", s.RawWPM),
			fmt.Sprintf("%d%%", s.Accuracy),
			fmt.Sprintf("%.1fs", float64(s.DurationMs)/1000),
			verdict,
		}
	})
	for _, line := range formatTable(cols, rows) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, ""); err != nil {
		return err
	}
	return nil
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}
