package wordlist

import (
	"strings"
	"unicode"
)

// FilterFunc returns true when a word should be kept.
type FilterFunc func(string) bool

// FilterForLang returns the word filter for lang. English lists keep plain
// a-z words; other lists keep tokens made only of lowercase or uncased letters.
func FilterForLang(lang string) FilterFunc {
	if strings.EqualFold(lang, "en") {
		return isASCIIWord
	}
	return isLowerToken
}

func isASCIIWord(word string) bool {
	return word != "" && strings.IndexFunc(word, func(r rune) bool {
		return r < 'a' || r > 'z'
	}) < 0
}

func isLowerToken(word string) bool {
	return word != "" && strings.IndexFunc(word, func(r rune) bool {
		return !unicode.IsLetter(r) || unicode.IsUpper(r)
	}) < 0
}
