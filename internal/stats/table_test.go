package stats

import "testing"

func TestFormatTableAlignsColumns(t *testing.T) {
	cols := []column{{header: "Ended"}, {header: "Net WPM", right: true}, {header: "Verdict"}}
	rows := [][]string{
		{"02-01", "48.5", "ok"},
		{"02-02", "312.0", "rejected (140)"},
	}

	lines := formatTable(cols, rows)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "Ended Net WPM Verdict       " {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if lines[1] != "02-01    48.5 ok            " {
		t.Fatalf("unexpected row line: %q", lines[1])
	}
	if lines[2] != "02-02   312.0 rejected (140)" {
		t.Fatalf("unexpected row line: %q", lines[2])
	}
}

func TestFormatTableShortRowsAndWideRunes(t *testing.T) {
	cols := []column{{header: "Name"}, {header: "WPM", right: true}}
	lines := formatTable(cols, [][]string{{"日本", "80"}, {"ab"}})
	if lines[1] != "日本  80" {
		t.Fatalf("unexpected row line: %q", lines[1])
	}
	if lines[2] != "ab      " {
		t.Fatalf("unexpected short row: %q", lines[2])
	}
	if formatTable(nil, nil) != nil {
		t.Fatalf("expected no lines without columns")
	}
}
