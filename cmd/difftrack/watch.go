package main

import (
	"context"

	"github.com/google/gops/agent"
	"github.com/nicolagi/difftrack/internal/storage"
	"github.com/nicolagi/difftrack/internal/track"
	"github.com/nicolagi/difftrack/internal/watch"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

func gopsListen() {
	if err := agent.Listen(agent.Options{
		ShutdownCleanup: true,
	}); err != nil {
		log.Warningf("Could not start gops agent: %v", err)
	}
}

// logToFile sends the log to a rotated file.
func logToFile(path string) *lumberjack.Logger {
	l := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 3,
		LocalTime:  true,
	}
	log.SetOutput(l)
	return l
}

// watch records changes of the tracked files until the context is done.
// With a paired store, it also copies baselines to the remote store.
func (a *app) watch(ctx context.Context) error {
	w, err := watch.New(a.tracker, log.WithField("pkg", "watch"))
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			log.WithField("cause", err.Error()).Warning("Could not close watcher")
		}
	}()
	for _, path := range a.tracker.Paths() {
		if err := w.Add(path); err != nil {
			return err
		}
	}
	if _, err := a.tracker.StartSession(ctx, nil); err != nil {
		return errors.Wrap(err, "could not start session")
	}
	defer a.tracker.EndSession()

	events, cancel := a.tracker.Events(64)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(ctx)
	})
	if p, ok := a.store.(*storage.Paired); ok {
		g.Go(func() error {
			return p.Propagate(ctx)
		})
	}
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case e := <-events:
				a.logEvent(e)
			}
		}
	})
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *app) logEvent(e track.Event) {
	entry := log.WithFields(log.Fields{
		"event":   e.Kind.String(),
		"session": e.Session,
	})
	if e.Path != "" {
		blocks, _ := a.tracker.Blocks(e.Path)
		entry = entry.WithFields(log.Fields{
			"path":   e.Path,
			"blocks": len(blocks),
		})
	}
	entry.Info("Tracker event")
}
