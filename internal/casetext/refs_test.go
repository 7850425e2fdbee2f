package casetext

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractReferencesSingleWithSource(t *testing.T) {
	got := ExtractReferences("Отзыв: кейс 12345 из telegram был решён", nil)
	assert.Equal(t, []Reference{{ID: "12345", Source: "telegram"}}, got)
}

func TestExtractReferencesOrderedDistinct(t *testing.T) {
	got := ExtractReferences("кейс 1, а также case 2", nil)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].ID)
}

func TestExtractReferencesDedup(t *testing.T) {
	got := ExtractReferences("кейс 5 ... кейс 5", nil)
	assert.Equal(t, []Reference{{ID: "5"}}, got)
}

func TestExtractReferencesEmpty(t *testing.T) {
	got := ExtractReferences("", nil)
	require.NotNil(t, got)
	assert.Empty(t, got)

	got = ExtractReferences("нет ссылок на обращения", nil)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestExtractReferencesInitialCase(t *testing.T) {
	initial := &Reference{ID: "7", Source: "manual"}

	assert.Equal(t, []Reference{*initial}, ExtractReferences("", initial))

	got := ExtractReferences("повтор кейс 7 и новый кейс 8 из slack", initial)
	assert.Equal(t, []Reference{
		{ID: "7", Source: "manual"},
		{ID: "8", Source: "slack"},
	}, got)
}

func TestExtractReferencesCases(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    []Reference
	}{
		{
			name:    "case insensitive keywords",
			message: "КЕЙС 10 и Case 11",
			want:    []Reference{{ID: "10"}, {ID: "11"}},
		},
		{
			name:    "no space between keyword and digits",
			message: "кейс42",
			want:    []Reference{{ID: "42"}},
		},
		{
			name:    "keyword glued to a word is ignored",
			message: "showcase 7 и прецедент",
			want:    []Reference{},
		},
		{
			name:    "source alias is normalized",
			message: "кейс 3 из телеграма",
			want:    []Reference{{ID: "3", Source: "telegram"}},
		},
		{
			name:    "english source keyword",
			message: "case 9 from Slack",
			want:    []Reference{{ID: "9", Source: "slack"}},
		},
		{
			name:    "preceding source within window",
			message: "из jira: кейс 4",
			want:    []Reference{{ID: "4", Source: "jira"}},
		},
		{
			name:    "each case takes the nearest source",
			message: "кейс 1 из telegram. Отдельно кейс 2 из slack",
			want:    []Reference{{ID: "1", Source: "telegram"}, {ID: "2", Source: "slack"}},
		},
		{
			name:    "following source wins a tie",
			message: "из a кейс 6 из b",
			want:    []Reference{{ID: "6", Source: "b"}},
		},
		{
			name: "source too far away is not attached",
			message: "кейс 1 обсуждали очень долго на планёрке в понедельник и во вторник " +
				"и ещё раз в среду, а потом пришло письмо из почты",
			want: []Reference{{ID: "1"}},
		},
		{
			name:    "из-за is not a source",
			message: "кейс 12 упал из-за ошибки",
			want:    []Reference{{ID: "12"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractReferences(tt.message, nil))
		})
	}
}

func TestExtractorGlobalSourceMode(t *testing.T) {
	e := NewExtractor(ExtractorOptions{SourceWindow: -1})
	got := e.Extract("кейс 1 из telegram. Отдельно кейс 2 из slack", nil)
	assert.Equal(t, []Reference{
		{ID: "1", Source: "telegram"},
		{ID: "2", Source: "telegram"},
	}, got)
}

func TestExtractorCustomAliases(t *testing.T) {
	e := NewExtractor(ExtractorOptions{SourceAliases: map[string]string{"  Базы ": "kb"}})
	got := e.Extract("кейс 77 из базы", nil)
	assert.Equal(t, []Reference{{ID: "77", Source: "kb"}}, got)

	// Custom aliases replace the defaults.
	got = e.Extract("кейс 78 из тг", nil)
	assert.Equal(t, []Reference{{ID: "78", Source: "тг"}}, got)
}

func TestExtractReferencesLongMessage(t *testing.T) {
	const n = 20000
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "кейс %d из tg, ", i)
	}
	msg := b.String()

	start := time.Now()
	got := ExtractReferences(msg, nil)
	elapsed := time.Since(start)

	require.Len(t, got, n)
	assert.Equal(t, Reference{ID: "0", Source: "telegram"}, got[0])
	assert.Equal(t, Reference{ID: fmt.Sprint(n - 1), Source: "telegram"}, got[n-1])
	assert.Less(t, elapsed, 2*time.Second, "extraction of %d bytes took %s", len(msg), elapsed)
}

func TestExtractReferencesRuneGaps(t *testing.T) {
	// 40 Cyrillic letters are 80 bytes but only 40 runes, inside the window.
	msg := "кейс 5 " + strings.Repeat("ж", 40) + " из slack"
	assert.Equal(t, []Reference{{ID: "5", Source: "slack"}}, ExtractReferences(msg, nil))

	msg = "кейс 5 " + strings.Repeat("ж", 60) + " из slack"
	assert.Equal(t, []Reference{{ID: "5"}}, ExtractReferences(msg, nil))
}

func TestIDs(t *testing.T) {
	refs := []Reference{{ID: "1"}, {ID: ""}, {ID: "3", Source: "x"}}
	assert.Equal(t, []string{"1", "3"}, IDs(refs))
	assert.Empty(t, IDs(nil))
}
