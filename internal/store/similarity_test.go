package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestWordSet(t *testing.T) {
	set := wordSet(strPtr("Тема: Касса, ЧЕК; Вопрос: не печатает чек; Ответ: игнорируется;"))
	assert.Len(t, set, 4)
	assert.Contains(t, set, "касса")
	assert.Contains(t, set, "чек")
	assert.NotContains(t, set, "игнорируется")

	// Sentinel themes are not words.
	assert.Empty(t, wordSet(nil))
	assert.Empty(t, wordSet(strPtr("Ответ: только ответ;")))
}

func TestJaccard(t *testing.T) {
	a := wordSet(strPtr("Тема: a b c;"))
	b := wordSet(strPtr("Тема: b c d;"))
	assert.InDelta(t, 0.5, jaccard(a, b), 1e-9)
	assert.InDelta(t, 0.5, jaccard(b, a), 1e-9)
	assert.InDelta(t, 1.0, jaccard(a, a), 1e-9)
	assert.Zero(t, jaccard(a, map[string]struct{}{}))
	assert.Zero(t, jaccard(nil, nil))
}
