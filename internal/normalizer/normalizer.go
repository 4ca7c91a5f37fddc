// Package normalizer turns raw article text into word counts. It folds
// accents, lower-cases input, keeps only ASCII letters, removes English
// stop-words, and reduces plural nouns to their singular lemma.
package normalizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/frequency"
)

// Normalize returns the word counts of text.
func Normalize(text string) frequency.Counts {
	counts := make(frequency.Counts)
	for _, word := range Tokenize(text) {
		counts[word]++
	}
	return counts
}

// Tokenize breaks text into lemmatised, lower-cased words with stop-words
// removed, in order of appearance.
func Tokenize(text string) []string {
	words := strings.Fields(clean(text))
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if IsStopWord(word) {
			continue
		}
		tokens = append(tokens, Lemmatize(word))
	}
	return tokens
}

// clean folds accents, lower-cases text and drops every rune that is neither
// an ASCII letter nor whitespace. Dropped runes are removed, not replaced,
// so "don't" becomes "dont".
func clean(text string) string {
	// Chained transformers are stateful; build one per call.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, text)
	if err != nil {
		folded = text
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return b.String()
}
