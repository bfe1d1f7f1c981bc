package wordlist

import "testing"

func TestFilterEnglishASCII(t *testing.T) {
	filter := FilterForLang("EN")
	if !filter("hello") {
		t.Fatalf("expected hello to pass english filter")
	}
	for _, word := range []string{"", "résumé", "naïve", "don’t", "co-op", "Hello"} {
		if filter(word) {
			t.Fatalf("expected %q to be rejected", word)
		}
	}
}

func TestFilterOtherLanguagesKeepsLowercaseTokens(t *testing.T) {
	filter := FilterForLang("de")
	for _, word := range []string{"straße", "über", "日本"} {
		if !filter(word) {
			t.Fatalf("expected %q to pass", word)
		}
	}
	for _, word := range []string{"", "Haus", "zwei drei", "x1"} {
		if filter(word) {
			t.Fatalf("expected %q to be rejected", word)
		}
	}
}
