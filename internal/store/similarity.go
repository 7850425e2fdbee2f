package store

import (
	"strings"
	"unicode"

	"github.com/casedesk/casedesk/internal/casetext"
)

// wordSet returns the lower-cased words of the decoded theme and question.
func wordSet(content *string) map[string]struct{} {
	rec := casetext.DecodeNullable(content)
	text := rec.Question
	if rec.HasTheme() {
		text = rec.Theme + " " + rec.Question
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// jaccard is |a∩b| / |a∪b|; two empty sets are not similar.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
