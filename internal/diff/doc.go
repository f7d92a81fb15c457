// Package diff aligns a baseline and a current version of a text document
// and derives the views difftrack presents: a classified list of per-line
// changes, a merged inline view interleaving old and new lines, word-level
// highlights within modified lines, and GNU-style unified diffs.
//
// Line alignment is a patience diff: lines that occur exactly once on each
// side anchor the alignment, and the regions between anchors are aligned
// recursively. Regions without any common unique line fall back to a
// positional comparison that only looks at common prefixes and suffixes,
// so that similar lines from unrelated blocks are never cross-matched.
//
// Word-level highlights are computed by the diffmatchpatch package
// (https://github.com/sergi/go-diff) over word, whitespace and punctuation
// tokens rather than characters.
//
// All functions in this package are pure: they never retain or mutate the
// slices they are given.
package diff
