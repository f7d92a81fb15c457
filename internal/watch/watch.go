// Package watch feeds changes of files on disk into a tracker.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/nicolagi/difftrack/internal/track"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Watcher watches the parent directories of tracked files, as editors
// often save by writing a new file and renaming it over the old one.
type Watcher struct {
	tracker *track.Tracker
	fsw     *fsnotify.Watcher
	log     *log.Entry
	cancel  func()

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]int
}

func New(tracker *track.Tracker, logger *log.Entry) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "watch")
	}
	if logger == nil {
		logger = log.WithField("pkg", "watch")
	}
	w := &Watcher{
		tracker: tracker,
		fsw:     fsw,
		log:     logger,
		files:   make(map[string]bool),
		dirs:    make(map[string]int),
	}
	w.cancel = tracker.Subscribe(w.untrack)
	return w, nil
}

// Add starts watching the given file.
func (w *Watcher) Add(path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, "%s: watch", path)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.files[path] {
		return nil
	}
	dir := filepath.Dir(path)
	if w.dirs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			return errors.Wrapf(err, "%s: watch", dir)
		}
	}
	w.dirs[dir]++
	w.files[path] = true
	return nil
}

// Remove stops watching the given file.
func (w *Watcher) Remove(path string) {
	path, err := filepath.Abs(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removeLocked(path)
}

func (w *Watcher) removeLocked(path string) {
	if !w.files[path] {
		return
	}
	delete(w.files, path)
	dir := filepath.Dir(path)
	w.dirs[dir]--
	if w.dirs[dir] > 0 {
		return
	}
	delete(w.dirs, dir)
	if err := w.fsw.Remove(dir); err != nil {
		w.log.WithFields(log.Fields{
			"dir":   dir,
			"cause": err.Error(),
		}).Debug("Could not stop watching directory")
	}
}

// Watching returns whether the given file is watched.
func (w *Watcher) Watching(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[path]
}

// untrack stops watching files the tracker no longer tracks.
func (w *Watcher) untrack(e track.Event) {
	switch e.Kind {
	case track.EventForgotten:
		w.Remove(e.Path)
	case track.EventCleared:
		w.mu.Lock()
		for path := range w.files {
			w.removeLocked(path)
		}
		w.mu.Unlock()
	}
}

// Run processes file system events until the context is done.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.changed(event.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.WithField("cause", err.Error()).Warning("Watch error")
		}
	}
}

func (w *Watcher) changed(path string) {
	if !w.Watching(path) {
		return
	}
	b, err := os.ReadFile(path)
	if err != nil {
		// Renamed away, likely to be replaced shortly.
		w.log.WithFields(log.Fields{
			"path":  path,
			"cause": err.Error(),
		}).Debug("Could not read changed file")
		return
	}
	if !w.tracker.ContentChanged(path, string(b)) {
		w.log.WithField("path", path).Debug("Not recording, change ignored")
	}
}

func (w *Watcher) Close() error {
	w.cancel()
	return w.fsw.Close()
}
