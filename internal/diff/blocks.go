package diff

import "sort"

// Block is a maximal run of changes of one kind on consecutive current lines
// (at most one line apart). Blocks are the unit of revert and keep.
//
// The lines of a block of deletions are the anchor lines of the deletions.
type Block struct {
	Kind      ChangeKind
	StartLine int
	EndLine   int
	Changes   []Change
}

// Blocks groups changes into blocks sorted by line. Unchanged records are
// ignored.
func Blocks(changes []Change) []Block {
	var sorted []Change
	for _, c := range changes {
		if c.Kind != Unchanged {
			sorted = append(sorted, c)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CurrentLine < sorted[j].CurrentLine
	})
	var blocks []Block
	for _, c := range sorted {
		if n := len(blocks); n > 0 {
			b := &blocks[n-1]
			if b.Kind == c.Kind && c.CurrentLine-b.EndLine <= 1 {
				b.EndLine = c.CurrentLine
				b.Changes = append(b.Changes, c)
				continue
			}
		}
		blocks = append(blocks, Block{
			Kind:      c.Kind,
			StartLine: c.CurrentLine,
			EndLine:   c.CurrentLine,
			Changes:   []Change{c},
		})
	}
	return blocks
}

// changeKey identifies a change within the classification of one pair of
// versions. Added and modified changes have distinct current lines, deleted
// changes distinct baseline lines.
type changeKey struct {
	kind     ChangeKind
	current  int
	baseline int
}

func keyOf(c Change) changeKey {
	return changeKey{kind: c.Kind, current: c.CurrentLine, baseline: c.BaselineLine}
}

// selection is the set of edits of the script of old and new that belong to
// a block, and the replacement regions they touch.
type selection struct {
	edits   []edit
	in      []bool
	touched map[int]bool
}

func selectBlock(old, new []string, b Block) selection {
	keys := make(map[changeKey]bool, len(b.Changes))
	for _, c := range b.Changes {
		keys[keyOf(c)] = true
	}
	s := selection{edits: script(old, new), touched: make(map[int]bool)}
	s.in = make([]bool, len(s.edits))
	for i, e := range s.edits {
		if e.op == opEqual || e.op == opSuppressed {
			continue
		}
		if keys[keyOf(e.change())] {
			s.in[i] = true
			s.touched[e.group] = true
		}
	}
	return s
}

// walk calls equal for each unchanged line and region for each replacement
// region, in order.
func (s selection) walk(equal func(e edit), region func(edits []edit, in []bool, touched bool)) {
	for i := 0; i < len(s.edits); {
		e := s.edits[i]
		if e.op == opEqual {
			equal(e)
			i++
			continue
		}
		j := i
		for j < len(s.edits) && s.edits[j].group == e.group {
			j++
		}
		region(s.edits[i:j], s.in[i:j], s.touched[e.group])
		i = j
	}
}

// regionOrder returns the indices of the edits of one replacement region in
// line order. Removed lines follow the baseline, inserted lines follow the
// current version, and each modification sits where both sides meet. At the
// same position removed lines come first. Modifications whose pairs cross
// follow the baseline if byBaseline is set, the current version otherwise.
func regionOrder(edits []edit, byBaseline bool) []int {
	var removed, inserted []int
	for i, e := range edits {
		if e.op == opDelete || e.op == opSuppressed || e.op == opModify {
			removed = append(removed, i)
		}
		if e.op == opAdd || e.op == opModify {
			inserted = append(inserted, i)
		}
	}
	sort.SliceStable(removed, func(a, b int) bool {
		return edits[removed[a]].oldLine < edits[removed[b]].oldLine
	})
	order := make([]int, 0, len(edits))
	done := make([]bool, len(edits))
	ri, ii := 0, 0
	for {
		for ri < len(removed) && done[removed[ri]] {
			ri++
		}
		for ii < len(inserted) && done[inserted[ii]] {
			ii++
		}
		var k int
		switch {
		case ri < len(removed) && edits[removed[ri]].op != opModify:
			k = removed[ri]
		case ii < len(inserted) && edits[inserted[ii]].op == opAdd:
			k = inserted[ii]
		case byBaseline && ri < len(removed):
			k = removed[ri]
		case ii < len(inserted):
			k = inserted[ii]
		case ri < len(removed):
			k = removed[ri]
		default:
			return order
		}
		done[k] = true
		order = append(order, k)
	}
}

// RevertBlock returns the current lines with the effect of block b undone and
// every other change left in place. The block must come from the changes of
// old and new. Suppressed blank deletions of the replacement regions the
// block touches are restored too.
func RevertBlock(old, new []string, b Block) []string {
	var lines []string
	selectBlock(old, new, b).walk(func(e edit) {
		lines = append(lines, e.newText)
	}, func(edits []edit, in []bool, touched bool) {
		for _, k := range regionOrder(edits, false) {
			e := edits[k]
			switch e.op {
			case opAdd:
				if !in[k] {
					lines = append(lines, e.newText)
				}
			case opModify:
				if in[k] {
					lines = append(lines, e.oldText)
				} else {
					lines = append(lines, e.newText)
				}
			case opDelete:
				if in[k] {
					lines = append(lines, e.oldText)
				}
			case opSuppressed:
				if touched {
					lines = append(lines, e.oldText)
				}
			}
		}
	})
	return lines
}

// KeepBlock returns the baseline lines updated so that block b is no longer a
// change, leaving every other change in place. The block must come from the
// changes of old and new. Suppressed blank deletions of the replacement
// regions the block touches are accepted too.
func KeepBlock(old, new []string, b Block) []string {
	var lines []string
	selectBlock(old, new, b).walk(func(e edit) {
		lines = append(lines, e.oldText)
	}, func(edits []edit, in []bool, touched bool) {
		if touched {
			lines = keepRegion(lines, edits, in)
		} else {
			lines = append(lines, baselineOf(edits)...)
		}
	})
	return lines
}

func keepRegion(lines []string, edits []edit, in []bool) []string {
	for _, k := range regionOrder(edits, true) {
		e := edits[k]
		switch e.op {
		case opDelete:
			if !in[k] {
				lines = append(lines, e.oldText)
			}
		case opModify:
			if in[k] {
				lines = append(lines, e.newText)
			} else {
				lines = append(lines, e.oldText)
			}
		case opAdd:
			if in[k] {
				lines = append(lines, e.newText)
			}
		}
	}
	return lines
}

// baselineOf returns the removed lines of a replacement region in their
// original order.
func baselineOf(edits []edit) []string {
	var removed []edit
	for _, e := range edits {
		if e.op != opAdd {
			removed = append(removed, e)
		}
	}
	sort.Slice(removed, func(i, j int) bool {
		return removed[i].oldLine < removed[j].oldLine
	})
	lines := make([]string, len(removed))
	for i, e := range removed {
		lines[i] = e.oldText
	}
	return lines
}
