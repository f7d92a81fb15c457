package track

import (
	"github.com/nicolagi/difftrack/internal/diff"
	"github.com/nicolagi/difftrack/internal/storage"
	log "github.com/sirupsen/logrus"
)

// RevertBlock undoes the changes of one block, leaving the other blocks
// applied, and returns the new current content. It reports false if the
// document is not tracked or the index is out of range.
func (t *Tracker) RevertBlock(path string, index int) (string, bool) {
	d := t.lookup(path)
	if d == nil {
		return "", false
	}
	d.mu.Lock()
	blocks := d.blocks()
	if index < 0 || index >= len(blocks) {
		d.mu.Unlock()
		t.staleBlock(path, index, len(blocks))
		return "", false
	}
	lines := diff.RevertBlock(diff.SplitLines(d.baseline), diff.SplitLines(d.current), blocks[index])
	d.current = diff.JoinLines(lines)
	d.updated = t.now()
	d.recompute()
	content := d.current
	d.mu.Unlock()
	t.fire(Event{Kind: EventReverted, Path: path, Block: index, Session: t.sessionID()})
	return content, true
}

// KeepBlock accepts the changes of one block by updating the baseline of
// that region only. It reports false if the document is not tracked or the
// index is out of range.
func (t *Tracker) KeepBlock(path string, index int) bool {
	d := t.lookup(path)
	if d == nil {
		return false
	}
	d.mu.Lock()
	blocks := d.blocks()
	if index < 0 || index >= len(blocks) {
		d.mu.Unlock()
		t.staleBlock(path, index, len(blocks))
		return false
	}
	lines := diff.KeepBlock(diff.SplitLines(d.baseline), diff.SplitLines(d.current), blocks[index])
	d.baseline = diff.JoinLines(lines)
	d.updated = t.now()
	d.recompute()
	t.persist(path, d.baseline)
	d.mu.Unlock()
	t.fire(Event{Kind: EventKept, Path: path, Block: index, Session: t.sessionID()})
	return true
}

// RevertAll resets the current content of a document to its baseline and
// returns it. The document stays tracked.
func (t *Tracker) RevertAll(path string) (string, bool) {
	d := t.lookup(path)
	if d == nil {
		return "", false
	}
	d.mu.Lock()
	d.current = d.baseline
	d.updated = t.now()
	d.recompute()
	content := d.current
	d.mu.Unlock()
	t.fire(Event{Kind: EventReverted, Path: path, Block: -1, Session: t.sessionID()})
	return content, true
}

// KeepAll accepts all changes of a document, making its current content
// the baseline.
func (t *Tracker) KeepAll(path string) bool {
	d := t.lookup(path)
	if d == nil {
		return false
	}
	d.mu.Lock()
	d.baseline = d.current
	d.updated = t.now()
	d.recompute()
	t.persist(path, d.baseline)
	d.mu.Unlock()
	t.fire(Event{Kind: EventKept, Path: path, Block: -1, Session: t.sessionID()})
	return true
}

// Forget stops tracking a document.
func (t *Tracker) Forget(path string) bool {
	t.mu.Lock()
	_, ok := t.docs[path]
	delete(t.docs, path)
	t.mu.Unlock()
	if !ok {
		return false
	}
	t.unpersist(path)
	t.persistManifest()
	t.fire(Event{Kind: EventForgotten, Path: path, Block: -1, Session: t.sessionID()})
	return true
}

// ClearAll stops tracking all documents.
func (t *Tracker) ClearAll() {
	t.mu.Lock()
	paths := t.pathsLocked()
	t.docs = make(map[string]*document)
	t.mu.Unlock()
	for _, path := range paths {
		t.unpersist(path)
	}
	if err := t.store.Delete(manifestKey); err != nil {
		t.log.WithField("cause", err.Error()).Warning("Could not delete manifest")
	}
	t.fire(Event{Kind: EventCleared, Block: -1, Session: t.sessionID()})
}

func (t *Tracker) sessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session
}

func (t *Tracker) staleBlock(path string, index, count int) {
	t.log.WithFields(log.Fields{
		"path":   path,
		"block":  index,
		"blocks": count,
	}).Debug("Block index out of range")
}

func (t *Tracker) unpersist(path string) {
	if err := t.store.Delete(storage.KeyFor(path)); err != nil {
		t.log.WithFields(log.Fields{
			"path":  path,
			"cause": err.Error(),
		}).Warning("Could not delete baseline")
	}
}
