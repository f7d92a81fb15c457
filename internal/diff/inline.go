package diff

// LineType labels one line of an inline view.
type LineType int

const (
	LineUnchanged LineType = iota
	LineAdded
	LineDeleted
)

func (t LineType) String() string {
	switch t {
	case LineUnchanged:
		return "unchanged"
	case LineAdded:
		return "added"
	case LineDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// InlineView is a single text interleaving the lines of the baseline and of
// the current version: deleted lines appear where they used to be, followed
// by the lines added in their place.
type InlineView struct {
	Content   string
	LineTypes []LineType
	Lines     []string
}

// Inline builds the inline view of the change from old to new.
func Inline(old, new string) InlineView {
	var v InlineView
	for _, r := range Align(SplitLines(old), SplitLines(new)) {
		t := LineUnchanged
		switch r.Kind {
		case Insert:
			t = LineAdded
		case Delete:
			t = LineDeleted
		}
		for _, line := range r.Lines {
			v.Lines = append(v.Lines, line)
			v.LineTypes = append(v.LineTypes, t)
		}
	}
	v.Content = JoinLines(v.Lines)
	return v
}

// OldLines returns the lines of the view that are not added, which are the
// lines of the baseline.
func (v InlineView) OldLines() []string {
	return v.filter(LineAdded)
}

// NewLines returns the lines of the view that are not deleted, which are the
// lines of the current version.
func (v InlineView) NewLines() []string {
	return v.filter(LineDeleted)
}

func (v InlineView) filter(skip LineType) []string {
	var lines []string
	for i, line := range v.Lines {
		if v.LineTypes[i] != skip {
			lines = append(lines, line)
		}
	}
	return lines
}
