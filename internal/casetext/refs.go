package casetext

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Reference points at a case mentioned in feedback text.
type Reference struct {
	ID     string `json:"id" yaml:"id"`
	Source string `json:"source" yaml:"source"`
}

// DefaultSourceWindow is the maximum distance, in runes, between a case
// mention and a source keyword for the source to be attached to the case.
const DefaultSourceWindow = 48

// DefaultSourceAliases maps spellings seen in operator feedback to a canonical source.
var DefaultSourceAliases = map[string]string{
	"телеграм":  "telegram",
	"телеграма": "telegram",
	"телеграме": "telegram",
	"телеграмм": "telegram",
	"тг":        "telegram",
	"tg":        "telegram",
}

// Keywords must not be glued to a preceding letter or digit, so "showcase 7"
// is not a case reference.
var (
	caseMentionRe   = regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])((?:кейс|case)\s*(\d+))`)
	sourceMentionRe = regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])((?:из|from)\s+([\p{L}\p{N}_-]+))`)
)

// ExtractorOptions configures an Extractor.
type ExtractorOptions struct {
	// SourceWindow limits how far a source keyword may be from a case mention.
	// Zero selects DefaultSourceWindow. A negative value attaches the first
	// source keyword found anywhere in the message to every new case.
	SourceWindow int
	// SourceAliases normalizes source words (keys are matched lower-cased).
	// Nil selects DefaultSourceAliases.
	SourceAliases map[string]string
}

// Extractor finds case references in free text. It is immutable and safe for
// concurrent use.
type Extractor struct {
	window  int
	aliases map[string]string
}

// NewExtractor builds an Extractor from opts.
func NewExtractor(opts ExtractorOptions) *Extractor {
	window := opts.SourceWindow
	if window == 0 {
		window = DefaultSourceWindow
	}
	src := opts.SourceAliases
	if src == nil {
		src = DefaultSourceAliases
	}
	aliases := make(map[string]string, len(src))
	for k, v := range src {
		aliases[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return &Extractor{window: window, aliases: aliases}
}

var defaultExtractor = NewExtractor(ExtractorOptions{})

// ExtractReferences runs the default extractor over message.
func ExtractReferences(message string, initial *Reference) []Reference {
	return defaultExtractor.Extract(message, initial)
}

// span is a regexp match. Offsets are in runes so gaps are plain subtractions.
type span struct {
	start, end int
	value      string
}

// Extract returns initial (when non-nil) followed by every case mentioned in
// message, in first-seen order and unique by ID. The work is linear in the
// length of message plus a log factor per case mention.
func (e *Extractor) Extract(message string, initial *Reference) []Reference {
	refs := make([]Reference, 0, 4)
	seen := make(map[string]bool)
	if initial != nil {
		refs = append(refs, *initial)
		seen[initial.ID] = true
	}
	if message == "" {
		return refs
	}

	cases := findSpans(caseMentionRe, message)
	if len(cases) == 0 {
		return refs
	}
	sources := findSpans(sourceMentionRe, message)

	for _, c := range cases {
		if seen[c.value] {
			continue
		}
		seen[c.value] = true
		refs = append(refs, Reference{ID: c.value, Source: e.sourceFor(c, sources)})
	}
	return refs
}

// findSpans returns the non-overlapping matches of re in order, converting
// byte offsets to rune offsets in a single pass over s.
func findSpans(re *regexp.Regexp, s string) []span {
	idx := re.FindAllStringSubmatchIndex(s, -1)
	out := make([]span, 0, len(idx))
	pos, runes := 0, 0
	advance := func(to int) int {
		runes += utf8.RuneCountInString(s[pos:to])
		pos = to
		return runes
	}
	for _, m := range idx {
		// m[2:4] is the mention, m[4:6] the captured value.
		sp := span{value: s[m[4]:m[5]]}
		sp.start = advance(m[2])
		sp.end = advance(m[3])
		out = append(out, sp)
	}
	return out
}

// sourceFor picks the source nearest to c within the window. sources is
// ordered and non-overlapping, so only the closest mention on each side can win.
func (e *Extractor) sourceFor(c span, sources []span) string {
	if len(sources) == 0 {
		return ""
	}
	if e.window < 0 {
		return e.normalize(sources[0].value)
	}

	best, bestGap := -1, 0
	// following mention: first source starting at or after the case ends
	if i := sort.Search(len(sources), func(i int) bool { return sources[i].start >= c.end }); i < len(sources) {
		if gap := sources[i].start - c.end; gap <= e.window {
			best, bestGap = i, gap
		}
	}
	// preceding mention: last source ending at or before the case starts
	if j := sort.Search(len(sources), func(i int) bool { return sources[i].end > c.start }) - 1; j >= 0 {
		if gap := c.start - sources[j].end; gap <= e.window && (best < 0 || gap < bestGap) {
			best = j
		}
	}
	if best < 0 {
		return ""
	}
	return e.normalize(sources[best].value)
}

func (e *Extractor) normalize(word string) string {
	w := strings.ToLower(strings.Trim(word, "-_"))
	if alias, ok := e.aliases[w]; ok {
		return alias
	}
	return w
}

// IDs returns the case ids of refs in order.
func IDs(refs []Reference) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if r.ID != "" {
			out = append(out, r.ID)
		}
	}
	return out
}
