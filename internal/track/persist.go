package track

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/nicolagi/difftrack/internal/storage"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// The manifest lists the paths of the tracked documents, one per line. No
// document has an empty path, so its key never collides with a baseline's.
var manifestKey = storage.KeyFor("")

// persist writes the baseline of a document to the store. Failures are
// logged, the in-memory state being authoritative.
func (t *Tracker) persist(path, content string) {
	if err := t.store.Put(storage.KeyFor(path), storage.Value(content)); err != nil {
		t.log.WithFields(log.Fields{
			"path":  path,
			"cause": err.Error(),
		}).Warning("Could not persist baseline")
	}
}

func (t *Tracker) persistManifest() {
	if err := t.saveManifest(); err != nil {
		t.log.WithField("cause", err.Error()).Warning("Could not persist manifest")
	}
}

func (t *Tracker) saveManifest() error {
	t.persistMu.Lock()
	defer t.persistMu.Unlock()
	paths := t.Paths()
	var b strings.Builder
	for _, path := range paths {
		b.WriteString(path)
		b.WriteByte('\n')
	}
	return t.store.Put(manifestKey, storage.Value(b.String()))
}

// Restore loads the documents listed in the store's manifest, with the
// content of their files on disk as current content. Documents already
// tracked are left alone. A file that no longer exists has empty content.
func (t *Tracker) Restore(ctx context.Context) error {
	v, err := t.store.Get(manifestKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "load manifest")
	}
	var mu sync.Mutex
	restored := make(map[string]*document)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, path := range strings.Split(string(v), "\n") {
		if path == "" {
			continue
		}
		path := path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			d, err := t.load(path)
			if err != nil || d == nil {
				return err
			}
			mu.Lock()
			restored[path] = d
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	t.mu.Lock()
	for path, d := range restored {
		if _, ok := t.docs[path]; !ok {
			t.docs[path] = d
		}
	}
	t.mu.Unlock()
	t.log.WithField("documents", len(restored)).Debug("Restored documents")
	return nil
}

func (t *Tracker) load(path string) (*document, error) {
	b, err := t.store.Get(storage.KeyFor(path))
	if errors.Is(err, storage.ErrNotFound) {
		t.log.WithField("path", path).Warning("Baseline missing from store, not restoring")
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "%s: load baseline", path)
	}
	d := &document{path: path, baseline: string(b), source: Cached, updated: t.now()}
	current, err := os.ReadFile(path)
	switch {
	case err == nil:
		d.current = string(current)
	case os.IsNotExist(err):
	default:
		t.log.WithFields(log.Fields{
			"path":  path,
			"cause": err.Error(),
		}).Warning("Could not read current content, assuming no changes")
		d.current = d.baseline
	}
	d.recompute()
	return d, nil
}
