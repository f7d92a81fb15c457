package diff

import "strings"

// SplitLines splits text on newline boundaries. The empty text has no lines,
// and a trailing newline yields a trailing empty line, so that JoinLines
// restores text exactly. Carriage returns are kept as part of the line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// JoinLines is the inverse of SplitLines.
func JoinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
