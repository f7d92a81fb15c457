package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/muesli/termenv"
	"github.com/nicolagi/difftrack/internal/baseline"
	"github.com/nicolagi/difftrack/internal/config"
	"github.com/nicolagi/difftrack/internal/diff"
	"github.com/nicolagi/difftrack/internal/render"
	"github.com/nicolagi/difftrack/internal/storage"
	"github.com/nicolagi/difftrack/internal/track"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// app holds what all sub-commands need: a tracker restored from the
// persisted baselines, and a renderer for its output.
type app struct {
	cfg      *config.C
	store    storage.Store
	tracker  *track.Tracker
	renderer *render.Renderer
	out      io.Writer
}

func newApp(ctx context.Context, cfg *config.C, out io.Writer, profile termenv.Profile) (*app, error) {
	store, err := storage.NewStore(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "could not create store")
	}
	var source baseline.Source = baseline.Disk{}
	if cfg.Baseline == "git" {
		source = baseline.Git{}
	}
	tracker := track.New(track.Options{
		Source: source,
		Store:  store,
		Logger: log.WithField("pkg", "track"),
	})
	if err := tracker.Restore(ctx); err != nil {
		tracker.Close()
		return nil, errors.Wrap(err, "could not restore tracked files")
	}
	return &app{
		cfg:      cfg,
		store:    store,
		tracker:  tracker,
		renderer: render.New(out, profile, cfg.Settings),
		out:      out,
	}, nil
}

func (a *app) close() error {
	a.tracker.Close()
	if c, ok := a.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// absolute returns the absolute forms of the given paths, so that a file
// is tracked once whatever the working directory.
func absolute(paths []string) ([]string, error) {
	abs := make([]string, len(paths))
	for i, p := range paths {
		var err error
		if abs[i], err = filepath.Abs(p); err != nil {
			return nil, errors.Wrapf(err, "%s", p)
		}
	}
	return abs, nil
}

// start tracks the given files from their content on disk. Missing files
// are tracked as empty.
func (a *app) start(ctx context.Context, paths []string) error {
	docs := make(map[string]string)
	for _, path := range paths {
		b, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "%s: could not read", path)
		}
		docs[path] = string(b)
	}
	id, err := a.tracker.StartSession(ctx, docs)
	if err != nil {
		return errors.Wrap(err, "could not persist baselines")
	}
	log.WithFields(log.Fields{
		"session": id,
		"files":   len(docs),
	}).Info("Tracking")
	return nil
}

func (a *app) status(paths []string) error {
	if len(paths) == 0 {
		paths = a.tracker.Paths()
	}
	for _, path := range paths {
		blocks, ok := a.tracker.Blocks(path)
		if !ok {
			if _, err := fmt.Fprintf(a.out, "%s: not tracked\n", path); err != nil {
				return err
			}
			continue
		}
		if err := a.renderer.Status(path, blocks); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) show(path string, annotated bool) error {
	doc, ok := a.tracker.Document(path)
	if !ok {
		return notTracked(path)
	}
	if annotated {
		return a.renderer.Annotated(doc.Current, doc.Changes)
	}
	v, _ := a.tracker.InlineView(path)
	return a.renderer.Inline(v, doc.Changes)
}

func (a *app) diff(path string, contextLines int) error {
	doc, ok := a.tracker.Document(path)
	if !ok {
		return notTracked(path)
	}
	if doc.Baseline == doc.Current {
		return nil
	}
	if _, err := fmt.Fprintf(a.out, "--- a%s\n+++ b%s\n", path, path); err != nil {
		return err
	}
	return diff.UnifiedTo(a.out, doc.Baseline, doc.Current, contextLines)
}

// revert reverts one block, or all changes if block is negative, and
// writes the result back to the file.
func (a *app) revert(path string, block int) error {
	var content string
	var ok bool
	if block < 0 {
		content, ok = a.tracker.RevertAll(path)
	} else {
		content, ok = a.tracker.RevertBlock(path, block)
	}
	if !ok {
		return noSuchBlock(a.tracker, path, block)
	}
	return writeFile(path, content)
}

func (a *app) keep(path string, block int) error {
	var ok bool
	if block < 0 {
		ok = a.tracker.KeepAll(path)
	} else {
		ok = a.tracker.KeepBlock(path, block)
	}
	if !ok {
		return noSuchBlock(a.tracker, path, block)
	}
	return nil
}

func (a *app) forget(path string) error {
	if !a.tracker.Forget(path) {
		return notTracked(path)
	}
	return nil
}

func (a *app) clear() {
	a.tracker.ClearAll()
}

func notTracked(path string) error {
	return fmt.Errorf("%s: not tracked", path)
}

func noSuchBlock(tracker *track.Tracker, path string, block int) error {
	blocks, ok := tracker.Blocks(path)
	if !ok {
		return notTracked(path)
	}
	return fmt.Errorf("%s: no block %d, there are %d", path, block, len(blocks))
}

// writeFile replaces the content of a file, keeping its permissions.
func writeFile(path, content string) error {
	mode := os.FileMode(0644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	return errors.WithStack(os.WriteFile(path, []byte(content), mode))
}
