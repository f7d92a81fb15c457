package diff

// ChangeKind classifies one line of a document against its baseline.
type ChangeKind int

const (
	Unchanged ChangeKind = iota
	Added
	Deleted
	Modified
)

func (k ChangeKind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Deleted:
		return "deleted"
	case Modified:
		return "modified"
	default:
		return "unknown"
	}
}

// Change is the classification of one line. Line numbers are 1-based and
// zero when absent.
//
// Deleted lines have no position in the current document: their CurrentLine
// and AnchorLine are the current line they follow, zero when they precede the
// first line. Deleted and Modified changes carry OldText and BaselineLine;
// Added and Modified changes carry NewText.
type Change struct {
	CurrentLine  int
	Kind         ChangeKind
	BaselineLine int
	OldText      string
	NewText      string
	AnchorLine   int
}

const (
	// Replacement blocks of different sizes pair a removed and an inserted
	// line only if they are at most this far apart within the block...
	pairingWindow = 5
	// ...and at least this similar.
	pairingThreshold = 0.6
)

type op int

const (
	opEqual op = iota
	opAdd
	opDelete
	opModify
	// opSuppressed is a blank deletion hidden from the change list.
	opSuppressed
)

// edit is one line of the classified alignment. Edits of one replacement
// region (a deleted run and the inserted run following it) share a group.
type edit struct {
	op      op
	oldText string
	newText string
	oldLine int
	newLine int
	anchor  int
	group   int
}

func (e edit) change() Change {
	switch e.op {
	case opAdd:
		return Change{CurrentLine: e.newLine, Kind: Added, NewText: e.newText}
	case opDelete:
		return Change{CurrentLine: e.anchor, Kind: Deleted, BaselineLine: e.oldLine, OldText: e.oldText, AnchorLine: e.anchor}
	case opModify:
		return Change{CurrentLine: e.newLine, Kind: Modified, BaselineLine: e.oldLine, OldText: e.oldText, NewText: e.newText}
	default:
		return Change{CurrentLine: e.newLine, Kind: Unchanged, BaselineLine: e.oldLine}
	}
}

// Classify aligns old and new and returns one change per line, in order.
// Unchanged lines are included.
func Classify(old, new []string) []Change {
	var changes []Change
	for _, e := range script(old, new) {
		if e.op != opSuppressed {
			changes = append(changes, e.change())
		}
	}
	return changes
}

// script walks the runs of the alignment of old and new, keeping running
// line numbers, and pairs removed lines with the lines inserted in their
// place.
func script(old, new []string) []edit {
	c := classifier{oldLine: 1, newLine: 1}
	for _, r := range Align(old, new) {
		switch r.Kind {
		case Equal:
			c.flush()
			for _, line := range r.Lines {
				c.edits = append(c.edits, edit{op: opEqual, oldText: line, newText: line, oldLine: c.oldLine, newLine: c.newLine, group: -1})
				c.oldLine++
				c.newLine++
			}
			c.lastMatched = c.newLine - 1
		case Delete:
			if len(c.pending) == 0 {
				c.pendingStart = c.oldLine
			}
			c.pending = append(c.pending, r.Lines...)
			c.oldLine += len(r.Lines)
		case Insert:
			c.replace(r.Lines)
		}
	}
	c.flush()
	return c.edits
}

type classifier struct {
	edits       []edit
	oldLine     int
	newLine     int
	lastMatched int
	group       int

	// Removed lines waiting for a following insertion.
	pending      []string
	pendingStart int
}

// flush emits pending removed lines as pure deletions.
func (c *classifier) flush() {
	if len(c.pending) == 0 {
		return
	}
	for i, line := range c.pending {
		c.edits = append(c.edits, edit{op: opDelete, oldText: line, oldLine: c.pendingStart + i, anchor: c.lastMatched, group: c.group})
	}
	c.pending = nil
	c.group++
}

// replace emits the inserted lines, pairing them with pending removed lines.
func (c *classifier) replace(inserted []string) {
	removed := c.pending
	suppress := len(removed) == len(inserted) && allBlank(removed)
	var match []int
	if len(removed) == len(inserted) && !suppress {
		match = make([]int, len(inserted))
		for i := range match {
			match[i] = i
		}
	} else {
		match = pairBySimilarity(removed, inserted)
	}
	paired := make([]bool, len(removed))
	for _, j := range match {
		if j >= 0 {
			paired[j] = true
		}
	}
	for j, line := range removed {
		if paired[j] {
			continue
		}
		e := edit{op: opDelete, oldText: line, oldLine: c.pendingStart + j, anchor: c.lastMatched, group: c.group}
		if suppress {
			e.op = opSuppressed
		}
		c.edits = append(c.edits, e)
	}
	for i, line := range inserted {
		e := edit{op: opAdd, newText: line, newLine: c.newLine + i, group: c.group}
		if j := match[i]; j >= 0 {
			e.op = opModify
			e.oldText = removed[j]
			e.oldLine = c.pendingStart + j
		}
		c.edits = append(c.edits, e)
	}
	c.newLine += len(inserted)
	c.lastMatched = c.newLine - 1
	c.pending = nil
	c.group++
}

// pairBySimilarity returns, for each inserted line, the index of the removed
// line it pairs with, or -1.
func pairBySimilarity(removed, inserted []string) []int {
	match := make([]int, len(inserted))
	used := make([]bool, len(removed))
	for i, line := range inserted {
		match[i] = -1
		best, bestScore := -1, -1.0
		for j := max(0, i-pairingWindow); j <= i+pairingWindow && j < len(removed); j++ {
			if used[j] {
				continue
			}
			if s := Similarity(removed[j], line); s > bestScore {
				best, bestScore = j, s
			}
		}
		if best >= 0 && bestScore >= pairingThreshold {
			match[i] = best
			used[best] = true
		}
	}
	return match
}

func allBlank(lines []string) bool {
	for _, line := range lines {
		if !isBlank(line) {
			return false
		}
	}
	return true
}
