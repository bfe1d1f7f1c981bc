package stats

import (
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/samber/lo"
)

// column is one table column; right columns are right-aligned.
type column struct {
	header string
	right  bool
}

// formatTable pads every cell to its column's widest display width. Cells
// past the last column are dropped.
func formatTable(cols []column, rows [][]string) []string {
	if len(cols) == 0 {
		return nil
	}
	widths := lo.Map(cols, func(c column, _ int) int {
		return runewidth.StringWidth(c.header)
	})
	for _, row := range rows {
		for i := range cols {
			widths[i] = max(widths[i], runewidth.StringWidth(cellAt(row, i)))
		}
	}

	headers := lo.Map(cols, func(c column, _ int) string { return c.header })
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, formatRow(headers, cols, widths))
	for _, row := range rows {
		lines = append(lines, formatRow(row, cols, widths))
	}
	return lines
}

func formatRow(row []string, cols []column, widths []int) string {
	cells := make([]string, len(cols))
	for i, c := range cols {
		if c.right {
			cells[i] = runewidth.FillLeft(cellAt(row, i), widths[i])
		} else {
			cells[i] = runewidth.FillRight(cellAt(row, i), widths[i])
		}
	}
	return strings.Join(cells, " ")
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
