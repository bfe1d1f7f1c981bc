package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/typerace/internal/session"
)

func TestRenderFooterFormats(t *testing.T) {
	m, err := NewModel(Options{Words: 1, Duration: 30 * time.Second}, session.FixedText("abcd"), nil, nil)
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	m.input = []rune("ab")
	m.sess.AcceptInput("ab")
	m.hasLast = true
	m.lastWPM = 72.4
	m.lastAcc = 98
	m.allWPM = 68.1
	m.allAcc = 96.9

	out := m.renderFooter()
	if out == "" {
		t.Fatalf("expected footer output")
	}
	if !containsAll(out, []string{"Time 30s", "Progress 50%", "Last 72.4 WPM", "98%", "All-time 68.1 WPM", "96.9%"}) {
		t.Fatalf("footer missing expected segments: %s", out)
	}
}

func containsAll(haystack string, needles []string) bool {
	for _, needle := range needles {
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}
