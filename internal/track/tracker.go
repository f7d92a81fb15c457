package track

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nicolagi/difftrack/internal/baseline"
	"github.com/nicolagi/difftrack/internal/diff"
	"github.com/nicolagi/difftrack/internal/storage"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ContentSource tells where the current content of a document came from.
type ContentSource int

const (
	// Live content was fed by a content change notification.
	Live ContentSource = iota
	// Cached content was read back from disk when restoring the tracker.
	Cached
)

func (s ContentSource) String() string {
	if s == Cached {
		return "cached"
	}
	return "live"
}

// Document is a snapshot of the state of one tracked document.
type Document struct {
	Path     string
	Baseline string
	Current  string
	Source   ContentSource
	Changes  []diff.Change
	Updated  time.Time
}

type document struct {
	mu sync.Mutex

	path     string
	baseline string
	current  string
	source   ContentSource
	changes  []diff.Change
	inline   *diff.InlineView
	updated  time.Time
}

func (d *document) recompute() {
	d.changes = diff.Classify(diff.SplitLines(d.baseline), diff.SplitLines(d.current))
	d.inline = nil
}

func (d *document) blocks() []diff.Block {
	return diff.Blocks(d.changes)
}

type Options struct {
	// Where baselines of documents first seen outside a session start come
	// from. Defaults to baseline.Disk.
	Source baseline.Source

	// Where baselines are persisted. Defaults to an in-memory store.
	Store storage.Store

	Logger *log.Entry

	// Defaults to time.Now.
	Now func() time.Time
}

// Tracker tracks changes of documents against their baselines.
type Tracker struct {
	source baseline.Source
	store  storage.Store
	log    *log.Entry
	now    func() time.Time

	mu        sync.Mutex
	recording bool
	session   string
	docs      map[string]*document

	// Serializes writes of the manifest.
	persistMu sync.Mutex

	obsMu        sync.Mutex
	observers    []observer
	nextObserver int
}

func New(opts Options) *Tracker {
	t := &Tracker{
		source: opts.Source,
		store:  opts.Store,
		log:    opts.Logger,
		now:    opts.Now,
		docs:   make(map[string]*document),
	}
	if t.source == nil {
		t.source = baseline.Disk{}
	}
	if t.store == nil {
		t.store = &storage.InMemory{}
	}
	if t.log == nil {
		t.log = log.WithField("pkg", "track")
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// StartSession starts recording. The given documents, mapping paths to
// contents, are tracked from their current content, which becomes their
// baseline. Other documents are tracked from the baseline their source
// provides when their content first changes. The returned error reports
// failures to persist baselines; the session is started regardless.
func (t *Tracker) StartSession(ctx context.Context, docs map[string]string) (string, error) {
	id := uuid.New().String()
	now := t.now()
	t.mu.Lock()
	t.recording = true
	t.session = id
	for path, content := range docs {
		d :=&document{path: path, baseline: content, current: content, source: Live, updated: now}
		d.recompute()
		t.docs[path] = d
	}
	t.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for path, content := range docs {
		path, content := path, content
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return t.store.Put(storage.KeyFor(path), storage.Value(content))
		})
	}
	err := g.Wait()
	if err == nil {
		err = t.saveManifest()
	}
	t.log.WithFields(log.Fields{
		"session":   id,
		"documents": len(docs),
	}).Info("Session started")
	t.fire(Event{Kind: EventSessionStarted, Block: -1, Session: id})
	return id, err
}

// EndSession stops recording. Tracked documents are kept until cleared.
func (t *Tracker) EndSession() {
	t.mu.Lock()
	id := t.session
	t.recording = false
	t.session = ""
	t.mu.Unlock()
	if id == "" {
		return
	}
	t.fire(Event{Kind: EventSessionEnded, Block: -1, Session: id})
}

func (t *Tracker) Recording() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recording
}

// Session returns the identifier of the current session, if recording.
func (t *Tracker) Session() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session, t.recording
}

// ContentChanged feeds the new content of a document and recomputes its
// changes. It reports false, doing nothing, when not recording.
func (t *Tracker) ContentChanged(path, content string) bool {
	t.mu.Lock()
	recording, session := t.recording, t.session
	d := t.docs[path]
	t.mu.Unlock()
	if !recording {
		return false
	}
	if d == nil {
		d = t.create(path)
	}
	d.mu.Lock()
	d.current = content
	d.source = Live
	d.updated = t.now()
	d.recompute()
	d.mu.Unlock()
	t.fire(Event{Kind: EventChanged, Path: path, Block: -1, Session: session})
	return true
}

// create starts tracking a document from the baseline provided by the
// source. A source that fails yields an empty baseline.
func (t *Tracker) create(path string) *document {
	content, err := t.source.Baseline(path)
	if err != nil {
		entry := t.log.WithFields(log.Fields{
			"path":  path,
			"cause": err.Error(),
		})
		if errors.Is(err, baseline.ErrNoBaseline) {
			entry.Debug("No baseline, tracking as a new document")
		} else {
			entry.Warning("Could not read baseline, tracking as a new document")
		}
		content = ""
	}
	t.mu.Lock()
	d, ok := t.docs[path]
	if !ok {
		d = &document{path: path, baseline: content, current: content, updated: t.now()}
		d.recompute()
		d.mu.Lock()
		t.docs[path] = d
	}
	t.mu.Unlock()
	if !ok {
		t.persist(path, content)
		d.mu.Unlock()
		t.persistManifest()
	}
	return d
}

func (t *Tracker) lookup(path string) *document {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.docs[path]
}

// Document returns a snapshot of a tracked document.
func (t *Tracker) Document(path string) (Document, bool) {
	d := t.lookup(path)
	if d == nil {
		return Document{}, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return Document{
		Path:     d.path,
		Baseline: d.baseline,
		Current:  d.current,
		Source:   d.source,
		Changes:  append([]diff.Change(nil), d.changes...),
		Updated:  d.updated,
	}, true
}

// Changes returns one change per line, unchanged lines included.
func (t *Tracker) Changes(path string) ([]diff.Change, bool) {
	d := t.lookup(path)
	if d == nil {
		return nil, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]diff.Change(nil), d.changes...), true
}

func (t *Tracker) Baseline(path string) (string, bool) {
	d := t.lookup(path)
	if d == nil {
		return "", false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.baseline, true
}

// InlineView returns the inline view of a document, computing it on first
// use after each change.
func (t *Tracker) InlineView(path string) (diff.InlineView, bool) {
	d := t.lookup(path)
	if d == nil {
		return diff.InlineView{}, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inline == nil {
		v := diff.Inline(d.baseline, d.current)
		d.inline = &v
	}
	v := *d.inline
	v.LineTypes = append([]diff.LineType(nil), v.LineTypes...)
	v.Lines = append([]string(nil), v.Lines...)
	return v, true
}

// Blocks returns the change blocks of a document. Block indices are valid
// until the next change of the document.
func (t *Tracker) Blocks(path string) ([]diff.Block, bool) {
	d := t.lookup(path)
	if d == nil {
		return nil, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blocks(), true
}

// Paths returns the paths of the tracked documents, sorted.
func (t *Tracker) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pathsLocked()
}

func (t *Tracker) pathsLocked() []string {
	paths := make([]string, 0, len(t.docs))
	for path := range t.docs {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Close ends the session and unregisters all observers.
func (t *Tracker) Close() {
	t.EndSession()
	t.obsMu.Lock()
	t.observers = nil
	t.obsMu.Unlock()
}
