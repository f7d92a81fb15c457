package diff

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// WordKind is the outcome of the word-level comparison of one token.
type WordKind int

const (
	WordUnchanged WordKind = iota
	WordAdded
	WordRemoved
)

func (k WordKind) String() string {
	switch k {
	case WordUnchanged:
		return "unchanged"
	case WordAdded:
		return "added"
	case WordRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// WordChange is a run of tokens sharing one outcome.
type WordChange struct {
	Kind WordKind
	Text string
}

// Span is a half-open range of rune columns within a line.
type Span struct {
	Start int
	End   int
}

// Highlight locates the word changes of a modified line: Removed spans are
// columns of the old line, Added spans columns of the new line.
type Highlight struct {
	Tokens  []WordChange
	Removed []Span
	Added   []Span
}

// Words compares two versions of a line token by token. Tokens are words,
// whitespace runs, single brackets or quotes, and runs of other punctuation.
// Removed tokens come before the added tokens that replace them.
func Words(oldText, newText string) []WordChange {
	var tt tokenTable
	a := tt.encode(tokenize(oldText))
	b := tt.encode(tokenize(newText))
	var changes []WordChange
	for _, d := range diffmatchpatch.New().DiffMainRunes(a, b, false) {
		kind := WordUnchanged
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			kind = WordAdded
		case diffmatchpatch.DiffDelete:
			kind = WordRemoved
		}
		text := tt.decode(d.Text)
		if text == "" {
			continue
		}
		if n := len(changes); n > 0 && changes[n-1].Kind == kind {
			changes[n-1].Text += text
			continue
		}
		changes = append(changes, WordChange{Kind: kind, Text: text})
	}
	return changes
}

// HighlightWords compares two versions of a line and computes the columns to
// highlight in each.
func HighlightWords(oldText, newText string) Highlight {
	h := Highlight{Tokens: Words(oldText, newText)}
	var oldCol, newCol int
	for _, w := range h.Tokens {
		n := utf8.RuneCountInString(w.Text)
		switch w.Kind {
		case WordUnchanged:
			oldCol += n
			newCol += n
		case WordRemoved:
			h.Removed = appendSpan(h.Removed, Span{Start: oldCol, End: oldCol + n})
			oldCol += n
		case WordAdded:
			h.Added = appendSpan(h.Added, Span{Start: newCol, End: newCol + n})
			newCol += n
		}
	}
	return h
}

func appendSpan(spans []Span, s Span) []Span {
	if n := len(spans); n > 0 && spans[n-1].End == s.Start {
		spans[n-1].End = s.End
		return spans
	}
	return append(spans, s)
}

const singleTokens = "()[]{}'\"`"

type tokenClass int

const (
	classWord tokenClass = iota
	classSpace
	classSingle
	classPunct
)

func classOf(r rune) tokenClass {
	switch {
	case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
		return classWord
	case unicode.IsSpace(r):
		return classSpace
	case strings.ContainsRune(singleTokens, r):
		return classSingle
	default:
		return classPunct
	}
}

func tokenize(s string) []string {
	var tokens []string
	start := 0
	prev := tokenClass(-1)
	for i, r := range s {
		c := classOf(r)
		if i > 0 && (c != prev || c == classSingle) {
			tokens = append(tokens, s[start:i])
			start = i
		}
		prev = c
	}
	if start < len(s) {
		tokens = append(tokens, s[start:])
	}
	return tokens
}

// tokenTable maps each distinct token to a rune, so that diffmatchpatch can
// diff token sequences as if they were characters.
type tokenTable struct {
	tokens []string
	index  map[string]rune
}

func (tt *tokenTable) encode(tokens []string) []rune {
	if tt.index == nil {
		tt.index = make(map[string]rune)
	}
	runes := make([]rune, len(tokens))
	for i, tok := range tokens {
		r, ok := tt.index[tok]
		if !ok {
			r = indexRune(len(tt.tokens))
			tt.tokens = append(tt.tokens, tok)
			tt.index[tok] = r
		}
		runes[i] = r
	}
	return runes
}

func (tt *tokenTable) decode(text string) string {
	var b strings.Builder
	for _, r := range text {
		b.WriteString(tt.tokens[runeIndex(r)])
	}
	return b.String()
}

// Runes in the surrogate range are not valid in strings and would not
// survive the round trip through diffmatchpatch.
const (
	surrogateMin = 0xD800
	surrogateLen = 0x800
)

func indexRune(i int) rune {
	if i < surrogateMin {
		return rune(i)
	}
	return rune(i + surrogateLen)
}

func runeIndex(r rune) int {
	if r < surrogateMin {
		return int(r)
	}
	return int(r) - surrogateLen
}
