package transcript

import (
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "did": true, "do": true, "does": true, "for": true, "from": true,
	"he": true, "her": true, "his": true, "how": true, "i": true, "in": true, "is": true,
	"it": true, "its": true, "me": true, "of": true, "on": true, "or": true, "say": true,
	"said": true, "she": true, "that": true, "the": true, "their": true, "them": true,
	"they": true, "this": true, "to": true, "video": true, "was": true, "we": true,
	"what": true, "when": true, "where": true, "which": true, "who": true, "why": true,
	"with": true, "you": true, "about": true, "tell": true, "part": true, "clip": true,
}

// Terms splits text into lower-cased content words, dropping stopwords,
// single letters and duplicates.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

// MatchCount returns how many of terms occur as words in text.
func MatchCount(text string, terms []string) int {
	if len(terms) == 0 {
		return 0
	}
	words := make(map[string]bool)
	for _, w := range Terms(text) {
		words[w] = true
	}
	n := 0
	for _, t := range terms {
		if words[t] {
			n++
		}
	}
	return n
}
