// Package generator builds typing text sequences.
package generator

import (
	"errors"
	"math/rand"
	"strings"
	"time"
	"unicode"
)

// ErrEmptyCorpus is returned when a Generator is built without words.
var ErrEmptyCorpus = errors.New("generator: empty word list")

// Options tune how sampled words are decorated.
type Options struct {
	CapsPct  float64
	PunctPct float64
	PunctSet []rune
}

// Generator produces randomized typing text from a fixed corpus.
type Generator struct {
	rnd   *rand.Rand
	words []string
	opts  Options
}

// New returns a Generator over words seeded with the current time.
func New(words []string, opts Options) (*Generator, error) {
	return NewWithSeed(words, opts, time.Now().UnixNano())
}

// NewWithSeed returns a Generator with a deterministic seed. Blank entries
// do not count as words.
func NewWithSeed(words []string, opts Options, seed int64) (*Generator, error) {
	if !hasWord(words) {
		return nil, ErrEmptyCorpus
	}
	return &Generator{
		rnd:   rand.New(rand.NewSource(seed)),
		words: words,
		opts:  opts,
	}, nil
}

func hasWord(words []string) bool {
	for _, w := range words {
		if strings.TrimSpace(w) != "" {
			return true
		}
	}
	return false
}

// Target samples count words uniformly with replacement and joins them
// with single spaces. It returns "" when count <= 0.
func (g *Generator) Target(count int) string {
	if count <= 0 {
		return ""
	}
	result := make([]string, 0, count)
	for i := 0; i < count; i++ {
		word := g.words[g.rnd.Intn(len(g.words))]
		word = applyCaps(g.rnd, word, g.opts.CapsPct)
		word = applyPunct(g.rnd, word, g.opts.PunctPct, g.opts.PunctSet)
		result = append(result, word)
	}
	return strings.Join(result, " ")
}

func applyCaps(rnd *rand.Rand, word string, capsPct float64) string {
	if capsPct <= 0 || rnd.Float64() > capsPct {
		return word
	}
	runes := []rune(word)
	if len(runes) == 0 {
		return word
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func applyPunct(rnd *rand.Rand, word string, punctPct float64, punctSet []rune) string {
	if punctPct <= 0 || len(punctSet) == 0 || rnd.Float64() > punctPct {
		return word
	}
	return word + string(punctSet[rnd.Intn(len(punctSet))])
}
