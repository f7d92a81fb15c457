// Package track keeps, for every tracked document, its baseline and current
// content together with the changes between them, and lets callers revert or
// keep changes one block at a time.
//
// A Tracker is safe for concurrent use. Each document has its own lock, so
// updates to different documents do not serialize against each other.
// Observers registered with Subscribe are called synchronously, in
// registration order, after the tracker has released its locks.
//
// Queries about documents that are not tracked report absence with a false
// boolean result rather than an error.
package track
