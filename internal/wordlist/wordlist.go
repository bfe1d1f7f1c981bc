// Package wordlist loads word lists from files.
package wordlist

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
)

//go:embed default_en.txt
var defaultEnglish string

// Default returns the built-in English corpus.
func Default() []string {
	return parseWords(strings.NewReader(defaultEnglish), FilterForLang("en"))
}

// LoadWords reads one word per line from path, keeping words accepted by keep.
func LoadWords(path string, keep FilterFunc) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only word list.
			_ = cerr
		}
	}()

	scanner := bufio.NewScanner(file)
	var words []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || (keep != nil && !keep(line)) {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("word list is empty")
	}
	return words, nil
}

// LoadOrDefault loads the word list at path, falling back to the built-in
// corpus for English when the file does not exist.
func LoadOrDefault(path, lang string) ([]string, bool, error) {
	words, err := LoadWords(path, FilterForLang(lang))
	if err == nil {
		return words, false, nil
	}
	if errors.Is(err, os.ErrNotExist) && strings.EqualFold(lang, "en") {
		return Default(), true, nil
	}
	return nil, false, err
}

func parseWords(r *strings.Reader, keep FilterFunc) []string {
	scanner := bufio.NewScanner(r)
	var words []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !keep(line) {
			continue
		}
		words = append(words, line)
	}
	return words
}
