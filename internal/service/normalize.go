package service

import (
	"strings"
	"unicode"
)

// stopWords are dropped from normalized keys so trivial phrasing differences
// collapse onto the same key.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "by": {},
}

// NormalizeQuestion canonicalizes free-text questions into the form used as
// the knowledge uniqueness and matching key: lower-cased, punctuation
// replaced with spaces, whitespace collapsed, stop words removed.
func NormalizeQuestion(question string) string {
	var b strings.Builder
	b.Grow(len(question))
	for _, r := range strings.ToLower(question) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	words := strings.Fields(b.String())
	kept := words[:0]
	for _, w := range words {
		if _, skip := stopWords[w]; !skip {
			kept = append(kept, w)
		}
	}

	return strings.Join(kept, " ")
}

// stem strips the most common English suffixes so that "accepted" and
// "accept" or "bookings" and "booking" count as shared terms. It is
// deliberately crude; the match threshold absorbs the noise.
func stem(word string) string {
	switch {
	case len(word) > 5 && strings.HasSuffix(word, "ing"):
		return word[:len(word)-3]
	case len(word) > 4 && strings.HasSuffix(word, "ed"):
		return word[:len(word)-2]
	case len(word) > 4 && strings.HasSuffix(word, "es"):
		return word[:len(word)-2]
	case len(word) > 3 && strings.HasSuffix(word, "s"):
		return word[:len(word)-1]
	default:
		return word
	}
}

// termSet tokenizes an already-normalized string into a stemmed term set.
func termSet(normalized string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(normalized) {
		set[stem(w)] = struct{}{}
	}
	return set
}

// overlapScore ranks two normalized strings by shared-term weight using the
// Dice coefficient over their stemmed term sets: 1.0 for identical sets,
// 0.0 for disjoint ones.
func overlapScore(a, b string) float64 {
	setA := termSet(a)
	setB := termSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	shared := 0
	for term := range setA {
		if _, ok := setB[term]; ok {
			shared++
		}
	}

	return 2 * float64(shared) / float64(len(setA)+len(setB))
}
