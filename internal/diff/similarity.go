package diff

import "strings"

var commentMarkers = []string{"//", "#", "--", "/*"}

// Normalize strips one leading comment marker and one trailing block comment
// terminator from line and collapses whitespace, so that lines differing only
// in comment style or spacing compare equal.
func Normalize(line string) string {
	s := strings.TrimSpace(line)
	for _, marker := range commentMarkers {
		if strings.HasPrefix(s, marker) {
			s = s[len(marker):]
			break
		}
	}
	s = strings.TrimSuffix(s, "*/")
	return collapse(s)
}

// collapse trims s and replaces every whitespace run with a single space.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Similarity scores how alike a removed and an inserted line are, between 0
// and 1. Lines whose normalized forms are equal and not empty score 1.
// Otherwise the score is the better of the character-set Jaccard similarity
// of the whitespace-collapsed lines and that of their normalized forms.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na != "" && na == nb {
		return 1
	}
	raw := jaccard(collapse(a), collapse(b))
	if norm := jaccard(na, nb); norm > raw {
		return norm
	}
	return raw
}

// jaccard is |A ∩ B| / |A ∪ B| over the sets of runes of a and b. Two empty
// strings are identical.
func jaccard(a, b string) float64 {
	set := make(map[rune]uint8)
	for _, r := range a {
		set[r] |= 1
	}
	for _, r := range b {
		set[r] |= 2
	}
	if len(set) == 0 {
		return 1
	}
	both := 0
	for _, v := range set {
		if v == 3 {
			both++
		}
	}
	return float64(both) / float64(len(set))
}

// isBlank reports whether line has only whitespace.
func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
