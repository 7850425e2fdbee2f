package casetext

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
)

func TestDecodeEmptyContent(t *testing.T) {
	want := Record{Theme: NoData}
	assert.Equal(t, want, Decode(""))
	assert.Equal(t, want, Decode("  \n\t "))
	assert.Equal(t, want, DecodeNullable(nil))

	empty := ""
	assert.Equal(t, want, DecodeNullable(&empty))
}

func TestDecodeAllLabels(t *testing.T) {
	got := Decode("Тема: Вход; Вопрос: Как войти?; Ответ: Нажмите кнопку входа.")
	assert.Equal(t, Record{
		Theme:    "Вход",
		Question: "Как войти?",
		Answer:   "Нажмите кнопку входа.",
	}, got)
}

func TestDecodeUnlabelledFallsBackToTheme(t *testing.T) {
	got := Decode("просто текст без меток")
	assert.Equal(t, Record{Theme: "просто текст без меток"}, got)

	got = Decode("  обрезка пробелов \n")
	assert.Equal(t, "обрезка пробелов", got.Theme)
}

func TestDecodeCases(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Record
	}{
		{
			name:    "multiline answer",
			content: "Тема: Касса; Вопрос: Не печатает чек; Ответ: Шаг 1.\nШаг 2;",
			want:    Record{Theme: "Касса", Question: "Не печатает чек", Answer: "Шаг 1.\nШаг 2"},
		},
		{
			name:    "empty value is not a sentinel",
			content: "Тема: ; Вопрос: q; Ответ: a;",
			want:    Record{Theme: "", Question: "q", Answer: "a"},
		},
		{
			name:    "missing theme label",
			content: "Вопрос: q; Ответ: a;",
			want:    Record{Theme: ThemeNotFound, Question: "q", Answer: "a"},
		},
		{
			name:    "missing question",
			content: "Тема: t; Ответ: a;",
			want:    Record{Theme: "t", Answer: "a"},
		},
		{
			name:    "out of order labels",
			content: "Ответ: a; Тема: t; Вопрос: q",
			want:    Record{Theme: "t", Question: "q", Answer: "a"},
		},
		{
			name:    "repeated label uses first occurrence",
			content: "Тема: t1; Вопрос: q; Тема: t2",
			want:    Record{Theme: "t1", Question: "q; Тема: t2"},
		},
		{
			name:    "semicolons inside answer survive",
			content: "Тема: t; Ответ: раз; два; три;",
			want:    Record{Theme: "t", Answer: "раз; два; три"},
		},
		{
			name:    "no space after labels",
			content: "Тема:t;Вопрос:q;Ответ:a",
			want:    Record{Theme: "t", Question: "q", Answer: "a"},
		},
		{
			name:    "text before first label is dropped",
			content: "preamble Тема: t;",
			want:    Record{Theme: "t"},
		},
		{
			name:    "only one trailing semicolon is stripped",
			content: "Тема: t;;",
			want:    Record{Theme: "t;"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(tt.content))
		})
	}
}

func TestEncode(t *testing.T) {
	assert.Equal(t, "", Encode("", "", ""))
	assert.Equal(t, "Тема: X;", Encode("X", "", ""))
	assert.Equal(t, "Вопрос: q;", Encode("", "q", ""))
	assert.Equal(t, "Тема: X; Ответ: a;", Encode("X", "", "a"))
	assert.Equal(t, "Тема: X; Вопрос: q; Ответ: a;", Record{Theme: "X", Question: "q", Answer: "a"}.Encode())
}

func TestHasTheme(t *testing.T) {
	assert.True(t, Record{Theme: "x"}.HasTheme())
	assert.False(t, Record{Theme: NoData}.HasTheme())
	assert.False(t, Record{Theme: ThemeNotFound}.HasTheme())
	assert.False(t, Record{}.HasTheme())
}

func TestRoundTripWithoutTheme(t *testing.T) {
	tests := []struct {
		name string
		in   Record
		want Record
	}{
		{"question only", Record{Question: "q"}, Record{Theme: ThemeNotFound, Question: "q"}},
		{"empty record", Record{}, Record{Theme: NoData}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded := Decode(Encode(tt.in.Theme, tt.in.Question, tt.in.Answer))
			assert.Equal(t, tt.want, decoded)
			assert.Equal(t, tt.in, decoded.Editable())
		})
	}
}

func TestEditableClearsPlaceholders(t *testing.T) {
	assert.Equal(t, "Вопрос: как войти?; Ответ: кнопкой;",
		Decode("Вопрос: как войти?; Ответ: кнопкой;").Editable().Encode())
	assert.Equal(t, "", Decode("").Editable().Encode())
	assert.Equal(t, Record{Theme: "Вход"}, Record{Theme: "Вход"}.Editable())
}

func TestSnippet(t *testing.T) {
	r := Record{Theme: "Касса", Question: "не\nпечатает   чек"}
	assert.Equal(t, "Касса | не печатает чек", r.Snippet(0))
	assert.Equal(t, "Касса…", r.Snippet(6))
}

// roundTripRecord generates records the format can represent losslessly:
// non-empty trimmed theme, no semicolons, no colons (so no label tokens).
type roundTripRecord Record

var roundTripAlphabet = []rune("абвгдеёжзийклмнопрстуфхцчшщъыьэюяABCxyz0123456789 .,!?-\n")

func randomValue(r *rand.Rand, allowEmpty bool) string {
	n := r.Intn(24)
	if !allowEmpty && n == 0 {
		n = 1
	}
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteRune(roundTripAlphabet[r.Intn(len(roundTripAlphabet))])
	}
	v := strings.TrimSpace(sb.String())
	if v == "" && !allowEmpty {
		v = "т"
	}
	return v
}

func (roundTripRecord) Generate(r *rand.Rand, _ int) reflect.Value {
	return reflect.ValueOf(roundTripRecord{
		Theme:    randomValue(r, false),
		Question: randomValue(r, true),
		Answer:   randomValue(r, true),
	})
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	prop := func(in roundTripRecord) bool {
		rec := Record(in)
		return Decode(rec.Encode()) == rec
	}
	if err := quick.Check(prop, &quick.Config{MaxCount: 500}); err != nil {
		t.Fatal(err)
	}
}

func TestDecodeNeverPanics(t *testing.T) {
	inputs := []string{
		"Тема:", "Вопрос:", "Ответ:", ";", ";;;", "Ответ:Тема:Вопрос:",
		"Тема: Тема: Тема:", strings.Repeat("Вопрос: x; ", 1000), "\x00\xff",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { _ = Decode(in) }, "input %q", in)
	}
	assert.Equal(t, Record{Theme: "", Question: "", Answer: ""}, Decode("Ответ:Тема:Вопрос:"))
}
