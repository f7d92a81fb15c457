// Package render presents changes of tracked documents on a terminal.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
	"github.com/nicolagi/difftrack/internal/config"
	"github.com/nicolagi/difftrack/internal/diff"
)

const (
	colorAdded    = "2"
	colorDeleted  = "1"
	colorModified = "3"
)

type Renderer struct {
	w        io.Writer
	out      *termenv.Output
	settings config.Settings
}

// New returns a renderer writing to w with the given colour profile. Use
// termenv.Ascii for plain text.
func New(w io.Writer, profile termenv.Profile, settings config.Settings) *Renderer {
	return &Renderer{
		w:        w,
		out:      termenv.NewOutput(w, termenv.WithProfile(profile)),
		settings: settings,
	}
}

// printer remembers the first write error so that callers check only once.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (r *Renderer) style(color string) termenv.Style {
	s := r.out.String()
	if color != "" {
		s = s.Foreground(r.out.Color(color))
	}
	return s
}

func (r *Renderer) paint(color, text string) string {
	if color == "" {
		return text
	}
	return r.style(color).Styled(text)
}

// Status lists the change blocks of a document, numbered as the revert and
// keep operations expect.
func (r *Renderer) Status(path string, blocks []diff.Block) error {
	p := &printer{w: r.w}
	switch len(blocks) {
	case 0:
		p.printf("%s: no changes\n", path)
		return p.err
	case 1:
		p.printf("%s: 1 block\n", path)
	default:
		p.printf("%s: %d blocks\n", path, len(blocks))
	}
	for i, b := range blocks {
		p.printf("  %3d  %s  %s", i, r.paint(kindColor(b.Kind), fmt.Sprintf("%-8s", b.Kind)), describe(b, r.settings.ShowDeletedBadge))
		if r.settings.ShowBlockActions {
			p.printf("  [revert|keep]")
		}
		p.printf("\n")
	}
	return p.err
}

func kindColor(k diff.ChangeKind) string {
	switch k {
	case diff.Added:
		return colorAdded
	case diff.Deleted:
		return colorDeleted
	case diff.Modified:
		return colorModified
	default:
		return ""
	}
}

func describe(b diff.Block, badge bool) string {
	if b.Kind == diff.Deleted {
		at := badgeLine(b.StartLine)
		if badge {
			return fmt.Sprintf("%s at line %d", deletedBadge(len(b.Changes)), at)
		}
		return fmt.Sprintf("at line %d", at)
	}
	if b.StartLine == b.EndLine {
		return fmt.Sprintf("line %d", b.StartLine)
	}
	return fmt.Sprintf("lines %d-%d", b.StartLine, b.EndLine)
}

// badgeLine is the line a deletion badge is shown on. Deletions before the
// first line are shown on the first line.
func badgeLine(anchor int) int {
	if anchor < 1 {
		return 1
	}
	return anchor
}

func deletedBadge(n int) string {
	if n == 1 {
		return "1 line deleted"
	}
	return fmt.Sprintf("%d lines deleted", n)
}

// Annotated prints the current content of a document with a marker per
// line: + for added, ~ for modified. Deleted lines are summarized by a badge
// on the line they were deleted after.
func (r *Renderer) Annotated(current string, changes []diff.Change) error {
	lines := diff.SplitLines(current)
	kinds := make(map[int]diff.ChangeKind)
	deleted := make(map[int]int)
	for _, c := range changes {
		if c.Kind == diff.Deleted {
			deleted[badgeLine(c.CurrentLine)]++
			continue
		}
		kinds[c.CurrentLine] = c.Kind
	}
	p := &printer{w: r.w}
	if len(lines) == 0 && deleted[1] > 0 && r.settings.ShowDeletedBadge {
		p.printf("%s\n", r.paint(colorDeleted, "      "+deletedBadge(deleted[1])))
		return p.err
	}
	for i, line := range lines {
		n := i + 1
		marker, color := " ", ""
		switch kinds[n] {
		case diff.Added:
			marker = "+"
			if r.settings.HighlightAdded {
				color = colorAdded
			}
		case diff.Modified:
			marker = "~"
			if r.settings.HighlightModified {
				color = colorModified
			}
		}
		p.printf("%4d %s %s", n, marker, r.paint(color, line))
		if d := deleted[n]; d > 0 && r.settings.ShowDeletedBadge {
			p.printf("  %s", r.paint(colorDeleted, "("+deletedBadge(d)+")"))
		}
		p.printf("\n")
	}
	return p.err
}

// Inline prints an inline view, old lines immediately followed by their
// replacements. The changes are those of the same baseline and current
// content; they tell modified pairs apart from plain additions and
// deletions.
func (r *Renderer) Inline(v diff.InlineView, changes []diff.Change) error {
	byNew := make(map[int]string)
	byOld := make(map[int]string)
	for _, c := range changes {
		if c.Kind == diff.Modified {
			byNew[c.CurrentLine] = c.OldText
			byOld[c.BaselineLine] = c.NewText
		}
	}
	p := &printer{w: r.w}
	oldLine, newLine := 0, 0
	for i, line := range v.Lines {
		switch v.LineTypes[i] {
		case diff.LineUnchanged:
			oldLine++
			newLine++
			p.printf("  %s\n", line)
		case diff.LineDeleted:
			oldLine++
			var spans []diff.Span
			if newText, ok := byOld[oldLine]; ok && r.settings.HighlightWordChanges {
				spans = diff.HighlightWords(line, newText).Removed
			}
			p.printf("%s\n", r.highlight(colorDeleted, "- ", line, spans))
		case diff.LineAdded:
			newLine++
			oldText, modified := byNew[newLine]
			color := ""
			switch {
			case modified && r.settings.HighlightModified:
				color = colorModified
			case !modified && r.settings.HighlightAdded:
				color = colorAdded
			}
			var spans []diff.Span
			if modified && r.settings.HighlightWordChanges {
				spans = diff.HighlightWords(oldText, line).Added
			}
			p.printf("%s\n", r.highlight(color, "+ ", line, spans))
		}
	}
	return p.err
}

// highlight paints a line with the given colour, reversing the spans, which
// are rune columns of text.
func (r *Renderer) highlight(color, prefix, text string, spans []diff.Span) string {
	base := r.style(color)
	if len(spans) == 0 {
		if color == "" {
			return prefix + text
		}
		return base.Styled(prefix + text)
	}
	var b strings.Builder
	b.WriteString(base.Styled(prefix))
	runes := []rune(text)
	col := 0
	for _, s := range spans {
		if s.Start > col {
			b.WriteString(base.Styled(string(runes[col:s.Start])))
		}
		b.WriteString(base.Reverse().Styled(string(runes[s.Start:s.End])))
		col = s.End
	}
	if col < len(runes) {
		b.WriteString(base.Styled(string(runes[col:])))
	}
	return b.String()
}
