package diff

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

const (
	bytesForBinaryFileCheck = 1 << 16

	noNewlineMarker = "\n\\ No newline at end of file"
)

// Unified wraps UnifiedTo to return a string instead of writing it to a writer.
func Unified(old, new string, contextLines int) (string, error) {
	var buf bytes.Buffer
	err := UnifiedTo(&buf, old, new, contextLines)
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// UnifiedTo writes a unified diff (hunks only, without file headers) of old
// and new to the passed writer, with the given number of context lines. Its
// output should be the same as that of GNU diff, except that the hunks may
// differ where several alignments are equally short. Identical texts produce
// no output.
func UnifiedTo(w io.Writer, old, new string, contextLines int) error {
	if old == new {
		return nil
	}
	if contextLines < 0 {
		contextLines = 0
	}
	if isLikelyBinary(old) || isLikelyBinary(new) {
		_, err := fmt.Fprintln(w, "Binary files differ")
		return err
	}
	var lines []string
	for _, r := range Align(unifiedLines(old), unifiedLines(new)) {
		prefix := " "
		switch r.Kind {
		case Delete:
			prefix = "-"
		case Insert:
			prefix = "+"
		}
		for _, line := range r.Lines {
			lines = append(lines, prefix+line)
		}
	}
	return unified(w, lines, contextLines)
}

// unifiedLines splits text into lines without terminators. A last line that
// lacks its newline carries the marker GNU diff prints after it, so that it
// never matches the same line with a newline.
func unifiedLines(text string) []string {
	lines := SplitLines(text)
	if n := len(lines); n > 0 {
		if lines[n-1] == "" {
			lines = lines[:n-1]
		} else {
			lines[n-1] += noNewlineMarker
		}
	}
	return lines
}

func unified(w io.Writer, lines []string, contextLines int) error {
	// While processing lines, we're either in a hunk or in common segment. The
	// hunk is nil if we are in a common segment.
	var hunk *hunk

	// When we're not in the middle of a hunk, we keep the most recent common
	// lines in a ring buffer. When starting a new hunk, the common lines will
	// be backfilled into the hunk and the ring buffer will be emptied out.
	common := newRingBuffer(contextLines)

	var leftOffset, rightOffset int
	for _, line := range lines {
		if line[0] == ' ' {
			// A common line. If in the middle of a hunk, we might get to the
			// point where a hunk cannot be extended so we can print it and add
			// the following common lines to the ring buffer rather than the
			// hunk.
			if hunk != nil {
				hunk.appendCommon(line)
				if hunk.isComplete() {
					for _, line := range hunk.trim() {
						common.enqueue(line)
					}
					if err := hunk.printTo(w); err != nil {
						return err
					}
					hunk = nil
				}
			} else {
				common.enqueue(line)
			}
		} else {
			// A diff line. Add to the current hunk, starting a new one first if
			// necessary.
			if hunk == nil {
				hunk = newHunk(leftOffset, rightOffset, common.dequeueAll(), contextLines)
			}
			if line[0] == '-' {
				hunk.appendLeft(line)
			} else {
				hunk.appendRight(line)
			}
		}
		switch line[0] {
		case '-':
			leftOffset++
		case ' ':
			leftOffset++
			rightOffset++
		case '+':
			rightOffset++
		}
	}
	if hunk != nil {
		hunk.trim()
		return hunk.printTo(w)
	}
	return nil
}

// Look at a few thousand bytes and see if any of them is null.
func isLikelyBinary(text string) bool {
	if len(text) > bytesForBinaryFileCheck {
		text = text[:bytesForBinaryFileCheck]
	}
	return strings.IndexByte(text, 0) >= 0
}
