package wordlist

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCorpusIsLowercase(t *testing.T) {
	words := Default()
	if len(words) < 100 {
		t.Fatalf("expected a non-trivial corpus, got %d words", len(words))
	}
	filter := FilterForLang("en")
	for _, w := range words {
		if !filter(w) {
			t.Fatalf("default corpus contains %q", w)
		}
	}
}

func TestLoadWordsAppliesFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "en.txt")
	if err := os.WriteFile(path, []byte("hello\n\nCo-op\nworld\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	words, err := LoadWords(path, FilterForLang("en"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(words) != 2 || words[0] != "hello" || words[1] != "world" {
		t.Fatalf("unexpected words: %v", words)
	}
}

func TestLoadOrDefaultFallsBackForEnglish(t *testing.T) {
	words, fallback, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.txt"), "en")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !fallback || len(words) == 0 {
		t.Fatalf("expected built-in corpus")
	}
	if _, _, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.txt"), "de"); err == nil {
		t.Fatalf("expected error for missing non-english list")
	}
}
