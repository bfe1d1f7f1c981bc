package session

import (
	"math"
	"time"

	"github.com/verte-zerg/typerace/internal/model"
)

// charsPerWord is the conventional word length used by every WPM figure.
const charsPerWord = 5.0

// ComputeMetrics derives metrics from typed and target text. It holds no state,
// so calling it twice with the same arguments yields the same result.
func ComputeMetrics(typed, target []rune, elapsed time.Duration) model.Metrics {
	m := model.Metrics{Accuracy: 100, Elapsed: elapsed}
	for i, r := range typed {
		if i < len(target) && r == target[i] {
			m.CorrectChars++
		} else {
			m.IncorrectChars++
		}
	}
	if len(typed) > 0 {
		m.Accuracy = int(math.Round(float64(m.CorrectChars) / float64(len(typed)) * 100))
	}
	minutes := elapsed.Minutes()
	if minutes <= 0 {
		return m
	}
	m.RawWPM = (float64(len(typed)) / charsPerWord) / minutes
	m.NetWPM = math.Max(0, (float64(m.CorrectChars)/charsPerWord-float64(m.IncorrectChars))/minutes)
	return m
}
