// Package casetext decodes and encodes the "Тема:...; Вопрос:...; Ответ:..."
// micro-format stored in a single content column of case records, and pulls
// case references out of free-form feedback text.
//
// Both halves are pure string functions. They never panic and never return
// errors: malformed input is reported through sentinel values.
package casetext

import (
	"sort"
	"strings"
)

// Field labels of the content micro-format.
const (
	LabelTheme    = "Тема:"
	LabelQuestion = "Вопрос:"
	LabelAnswer   = "Ответ:"
)

// Sentinels used in place of a theme.
const (
	// NoData is the theme of a record decoded from nil or blank content.
	NoData = "Нет данных"
	// ThemeNotFound is the theme of content that carries other labels but no theme label.
	ThemeNotFound = "Тема не найдена"
)

// Record is the structured form of a case content field.
type Record struct {
	Theme    string `json:"theme" yaml:"theme"`
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
}

const (
	fieldTheme = iota
	fieldQuestion
	fieldAnswer
)

var labels = [...]string{
	fieldTheme:    LabelTheme,
	fieldQuestion: LabelQuestion,
	fieldAnswer:   LabelAnswer,
}

type labelHit struct {
	field int
	start int // index of the label itself
	value int // index right after the label
}

// Decode parses content into a Record.
//
// The first occurrence of each label is located and the hits are ordered by
// position; a value runs from the end of its label to the start of the next
// label found (or the end of content). Values are trimmed and lose a single
// trailing semicolon. Content without any label becomes the theme as a whole.
//
// Blank content decodes to NoData and labelled content without a theme label
// to ThemeNotFound, so Decode(Encode(r)) == r only holds for records with a
// non-empty theme. Use Record.Editable before encoding a decoded record.
func Decode(content string) Record {
	if strings.TrimSpace(content) == "" {
		return Record{Theme: NoData}
	}

	hits := make([]labelHit, 0, len(labels))
	for f, l := range labels {
		if i := strings.Index(content, l); i >= 0 {
			hits = append(hits, labelHit{field: f, start: i, value: i + len(l)})
		}
	}
	if len(hits) == 0 {
		return Record{Theme: strings.TrimSpace(content)}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].start < hits[j].start })

	var values [len(labels)]string
	var present [len(labels)]bool
	for i, h := range hits {
		end := len(content)
		if i+1 < len(hits) {
			end = hits[i+1].start
		}
		if end < h.value {
			end = h.value
		}
		values[h.field] = cleanValue(content[h.value:end])
		present[h.field] = true
	}

	rec := Record{
		Theme:    values[fieldTheme],
		Question: values[fieldQuestion],
		Answer:   values[fieldAnswer],
	}
	if !present[fieldTheme] {
		rec.Theme = ThemeNotFound
	}
	return rec
}

// DecodeNullable is Decode for a nullable content column.
func DecodeNullable(content *string) Record {
	if content == nil {
		return Record{Theme: NoData}
	}
	return Decode(*content)
}

func cleanValue(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimSuffix(v, ";")
	return strings.TrimSpace(v)
}

// Encode serializes the three fields. Empty fields are omitted entirely and a
// single trailing semicolon is appended when at least one segment is written.
// Values are written as given: a sentinel theme is encoded like any other.
func Encode(theme, question, answer string) string {
	parts := make([]string, 0, len(labels))
	for f, v := range [...]string{theme, question, answer} {
		if v == "" {
			continue
		}
		parts = append(parts, labels[f]+" "+v)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "; ") + ";"
}

// Encode serializes r, see Encode.
func (r Record) Encode() string {
	return Encode(r.Theme, r.Question, r.Answer)
}

// Editable returns r with a sentinel theme cleared, ready to be shown in an
// edit form or re-encoded. Saving a decoded record without this would write
// the sentinel back as a real theme.
func (r Record) Editable() Record {
	if !r.HasTheme() {
		r.Theme = ""
	}
	return r
}

// HasTheme reports whether the theme is a real value rather than a sentinel.
func (r Record) HasTheme() bool {
	return r.Theme != "" && r.Theme != NoData && r.Theme != ThemeNotFound
}

// Snippet returns a one-line preview of the record limited to max runes.
func (r Record) Snippet(max int) string {
	s := r.Theme
	if r.Question != "" {
		s += " | " + r.Question
	}
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}
