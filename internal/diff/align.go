package diff

import "sort"

// Kind is the outcome of aligning a span of lines.
type Kind int

const (
	// Equal lines are present verbatim in both sequences.
	Equal Kind = iota
	// Insert lines are only present in the new sequence.
	Insert
	// Delete lines are only present in the old sequence.
	Delete
)

func (k Kind) String() string {
	switch k {
	case Equal:
		return "equal"
	case Insert:
		return "inserted"
	case Delete:
		return "deleted"
	default:
		return "unknown"
	}
}

// Run is a maximal span of lines sharing one alignment outcome.
type Run struct {
	Kind  Kind
	Lines []string
}

// Align aligns the old and new line sequences and returns the runs that
// transform one into the other. Consecutive runs never have the same kind.
// Concatenating the lines of the runs that are not Insert yields old, and
// concatenating the lines of the runs that are not Delete yields new.
func Align(old, new []string) []Run {
	return merge(align(old, new))
}

// align works on sub-slices of the caller's sequences and returns runs that
// may share their backing arrays; merge copies them out.
func align(old, new []string) []Run {
	switch {
	case len(old) == 0 && len(new) == 0:
		return nil
	case len(new) == 0:
		return []Run{{Kind: Delete, Lines: old}}
	case len(old) == 0:
		return []Run{{Kind: Insert, Lines: new}}
	}
	anchors := uniqueAnchors(old, new)
	if len(anchors) == 0 {
		return positional(old, new)
	}
	var runs []Run
	o, n := 0, 0
	for _, a := range anchors {
		runs = append(runs, align(old[o:a.old], new[n:a.new])...)
		runs = append(runs, Run{Kind: Equal, Lines: old[a.old : a.old+1]})
		o, n = a.old+1, a.new+1
	}
	return append(runs, align(old[o:], new[n:])...)
}

// anchor is a pair of positions of a line that is unique in both ranges.
type anchor struct {
	old, new int
}

type occurrence struct {
	count int
	index int
}

func occurrences(lines []string) map[string]occurrence {
	m := make(map[string]occurrence, len(lines))
	for i, line := range lines {
		o := m[line]
		if o.count == 0 {
			o.index = i
		}
		o.count++
		m[line] = o
	}
	return m
}

// uniqueAnchors returns the longest order-preserving sequence of lines that
// occur exactly once in old and exactly once in new.
func uniqueAnchors(old, new []string) []anchor {
	inOld := occurrences(old)
	inNew := occurrences(new)
	var candidates []anchor
	for i, line := range old {
		if inOld[line].count != 1 {
			continue
		}
		if o, ok := inNew[line]; ok && o.count == 1 {
			candidates = append(candidates, anchor{old: i, new: o.index})
		}
	}
	return longestIncreasing(candidates)
}

// longestIncreasing returns a longest subsequence of candidates (sorted by
// old position) whose new positions are increasing, by patience sorting.
func longestIncreasing(candidates []anchor) []anchor {
	if len(candidates) == 0 {
		return nil
	}
	var tails []int
	prev := make([]int, len(candidates))
	for i, c := range candidates {
		k := sort.Search(len(tails), func(j int) bool {
			return candidates[tails[j]].new >= c.new
		})
		if k > 0 {
			prev[i] = tails[k-1]
		} else {
			prev[i] = -1
		}
		if k == len(tails) {
			tails = append(tails, i)
		} else {
			tails[k] = i
		}
	}
	seq := make([]anchor, len(tails))
	for i, k := tails[len(tails)-1], len(tails)-1; k >= 0; i, k = prev[i], k-1 {
		seq[k] = candidates[i]
	}
	return seq
}

// positional aligns two ranges that have no common unique line. It only
// recognizes common leading and trailing lines and never matches lines in
// the middle, which would interleave unrelated blocks of similar lines.
func positional(old, new []string) []Run {
	switch {
	case len(old) == 0 && len(new) == 0:
		return nil
	case len(new) == 0:
		return []Run{{Kind: Delete, Lines: old}}
	case len(old) == 0:
		return []Run{{Kind: Insert, Lines: new}}
	}
	if d := len(old) - len(new); d > 0 {
		if equalLines(old[d:], new) {
			return []Run{{Kind: Delete, Lines: old[:d]}, {Kind: Equal, Lines: old[d:]}}
		}
		if equalLines(old[:len(new)], new) {
			return []Run{{Kind: Equal, Lines: old[:len(new)]}, {Kind: Delete, Lines: old[len(new):]}}
		}
	} else if d < 0 {
		d = -d
		if equalLines(new[d:], old) {
			return []Run{{Kind: Insert, Lines: new[:d]}, {Kind: Equal, Lines: old}}
		}
		if equalLines(new[:len(old)], old) {
			return []Run{{Kind: Equal, Lines: old}, {Kind: Insert, Lines: new[len(old):]}}
		}
	}
	lead := commonPrefix(old, new)
	trail := commonSuffix(old[lead:], new[lead:])
	var runs []Run
	if lead > 0 {
		runs = append(runs, Run{Kind: Equal, Lines: old[:lead]})
	}
	if mid := old[lead : len(old)-trail]; len(mid) > 0 {
		runs = append(runs, Run{Kind: Delete, Lines: mid})
	}
	if mid := new[lead : len(new)-trail]; len(mid) > 0 {
		runs = append(runs, Run{Kind: Insert, Lines: mid})
	}
	if trail > 0 {
		runs = append(runs, Run{Kind: Equal, Lines: old[len(old)-trail:]})
	}
	return runs
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func commonPrefix(a, b []string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func commonSuffix(a, b []string) int {
	n := 0
	for n < len(a) && n < len(b) && a[len(a)-1-n] == b[len(b)-1-n] {
		n++
	}
	return n
}

// merge drops empty runs, joins adjacent runs of the same kind and copies
// all lines so that the result does not alias the aligned sequences.
func merge(runs []Run) []Run {
	var merged []Run
	for _, r := range runs {
		if len(r.Lines) == 0 {
			continue
		}
		if n := len(merged); n > 0 && merged[n-1].Kind == r.Kind {
			merged[n-1].Lines = append(merged[n-1].Lines, r.Lines...)
			continue
		}
		merged = append(merged, Run{Kind: r.Kind, Lines: append([]string(nil), r.Lines...)})
	}
	return merged
}
