package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/samber/lo"
)

const wrongSpaceRune = '•'

type styledRune struct {
	s       string
	width   int
	isSpace bool
}

// buildStyledRunes styles every target rune against what has been typed so
// far. The cursor sits on the first untyped rune; it is hidden once the whole
// target is typed.
func buildStyledRunes(targetRunes, inputRunes []rune) []styledRune {
	cursorIndex := -1
	if len(inputRunes) < len(targetRunes) {
		cursorIndex = len(inputRunes)
	}
	currentWord := wordAt(findWords(targetRunes), cursorIndex)

	out := make([]styledRune, 0, len(targetRunes))
	for i, target := range targetRunes {
		displayed := target
		style := pendingStyle
		switch {
		case i < len(inputRunes):
			switch {
			case target == ' ' && inputRunes[i] != ' ':
				displayed = wrongSpaceRune
				style = incorrectStyle
			case inputRunes[i] == target:
				style = correctStyle
			default:
				style = incorrectStyle
			}
		case target != ' ' && currentWord != nil && i >= currentWord.start && i < currentWord.end:
			style = currentWordStyle
		}
		if i == cursorIndex {
			style = style.Underline(true)
		}
		out = append(out, newStyledRune(displayed, style, target == ' '))
	}
	return out
}

func newStyledRune(r rune, style lipgloss.Style, isSpace bool) styledRune {
	return styledRune{
		s:       style.Render(string(r)),
		width:   runewidth.RuneWidth(r),
		isSpace: isSpace,
	}
}

type wordRange struct {
	start int
	end   int
}

func findWords(target []rune) []wordRange {
	var words []wordRange
	for i := 0; i < len(target); {
		if target[i] == ' ' {
			i++
			continue
		}
		j := i
		for j < len(target) && target[j] != ' ' {
			j++
		}
		words = append(words, wordRange{start: i, end: j})
		i = j
	}
	return words
}

// wordAt returns the word the cursor is in or about to enter. A hidden
// cursor maps to the first word, a cursor past the end to the last.
func wordAt(words []wordRange, cursor int) *wordRange {
	if len(words) == 0 {
		return nil
	}
	if cursor < 0 {
		return &words[0]
	}
	_, idx, ok := lo.FindIndexOf(words, func(w wordRange) bool { return cursor < w.end })
	if !ok {
		idx = len(words) - 1
	}
	return &words[idx]
}

func renderStyledRunes(runes []styledRune) string {
	var b strings.Builder
	for _, item := range runes {
		b.WriteString(item.s)
	}
	return b.String()
}

// wrapStyledRunes breaks runes into lines no wider than width, cutting at the
// last space on the line when there is one. The space at a cut is dropped.
func wrapStyledRunes(runes []styledRune, width int) string {
	if width <= 0 {
		return renderStyledRunes(runes)
	}
	var lines []string
	var line []styledRune
	for _, item := range runes {
		for len(line) > 0 && lineWidth(line)+item.width > width {
			_, cut, ok := lo.FindLastIndexOf(line, func(r styledRune) bool { return r.isSpace })
			if !ok {
				lines = append(lines, renderStyledRunes(line))
				line = nil
				break
			}
			lines = append(lines, renderStyledRunes(line[:cut]))
			line = append([]styledRune(nil), line[cut+1:]...)
		}
		line = append(line, item)
	}
	return strings.Join(append(lines, renderStyledRunes(line)), "\n")
}

func lineWidth(line []styledRune) int {
	return lo.SumBy(line, func(r styledRune) int { return r.width })
}
