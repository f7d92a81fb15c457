package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	linediff "github.com/andreyvit/diff"
	"github.com/google/go-cmp/cmp"
	"github.com/muesli/termenv"
	"github.com/nicolagi/difftrack/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run runs one command as a separate invocation would, with a fresh
// tracker restored from the baselines persisted by earlier invocations.
func run(t *testing.T, cfg *config.C, f func(a *app) error) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	a, err := newApp(context.Background(), cfg, &buf, termenv.Ascii)
	require.Nil(t, err)
	err = f(a)
	require.Nil(t, a.close())
	return buf.String(), err
}

func mustRun(t *testing.T, cfg *config.C, f func(a *app) error) string {
	t.Helper()
	out, err := run(t, cfg, f)
	require.Nil(t, err)
	return out
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.Nil(t, err)
	return string(b)
}

func assertOutput(t *testing.T, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("unexpected output:\n%v", linediff.LineDiff(want, got))
	}
}

func TestInit(t *testing.T) {
	t.Run("if config already exists, its contents untouched and error returned", func(t *testing.T) {
		base := t.TempDir()
		path := filepath.Join(base, "config")
		contents := []byte("storage null\n")
		require.Nil(t, os.WriteFile(path, contents, 0600))
		assert.NotNil(t, config.Initialize(base))
		got, err := os.ReadFile(path)
		require.Nil(t, err)
		if diff := cmp.Diff(contents, got); diff != "" {
			t.Errorf("config file has changed (-want +got):\n%s", diff)
		}
	})
	t.Run("creates working configuration", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "difftrack")
		require.Nil(t, config.Initialize(base))
		cfg, err := config.Load(base)
		require.Nil(t, err)
		out := mustRun(t, cfg, func(a *app) error { return a.status(nil) })
		assert.Equal(t, "", out)
	})
}

func TestWorkflow(t *testing.T) {
	cfg := config.Default(t.TempDir())
	cfg.Settings.ShowBlockActions = false
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.Nil(t, os.WriteFile(path, []byte("a\nb\nc\nd\ne\n"), 0600))

	mustRun(t, cfg, func(a *app) error {
		return a.start(context.Background(), []string{path})
	})
	out := mustRun(t, cfg, func(a *app) error { return a.status(nil) })
	assertOutput(t, path+": no changes\n", out)

	require.Nil(t, os.WriteFile(path, []byte("a\nB\nc\ne\nf\n"), 0600))
	out = mustRun(t, cfg, func(a *app) error { return a.status([]string{path}) })
	assertOutput(t, path+": 3 blocks\n"+
		"    0  modified  line 2\n"+
		"    1  deleted   1 line deleted at line 3\n"+
		"    2  added     line 5\n", out)

	out = mustRun(t, cfg, func(a *app) error { return a.show(path, false) })
	assertOutput(t, "  a\n- b\n+ B\n  c\n- d\n  e\n+ f\n  \n", out)

	out = mustRun(t, cfg, func(a *app) error { return a.diff(path, 0) })
	assertOutput(t, "--- a"+path+"\n+++ b"+path+"\n"+
		"@@ -2 +2 @@\n-b\n+B\n"+
		"@@ -4 +3,0 @@\n-d\n"+
		"@@ -5,0 +5 @@\n+f\n", out)

	// Revert the deletion, the file is rewritten.
	mustRun(t, cfg, func(a *app) error { return a.revert(path, 1) })
	assert.Equal(t, "a\nB\nc\nd\ne\nf\n", readFile(t, path))
	fi, err := os.Stat(path)
	require.Nil(t, err)
	assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())

	// Keep the modification, it survives in later invocations.
	mustRun(t, cfg, func(a *app) error { return a.keep(path, 0) })
	out = mustRun(t, cfg, func(a *app) error { return a.status(nil) })
	assertOutput(t, path+": 1 block\n    0  added     line 6\n", out)

	_, err = run(t, cfg, func(a *app) error { return a.keep(path, 5) })
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "no block 5, there are 1")

	mustRun(t, cfg, func(a *app) error { return a.revert(path, -1) })
	assert.Equal(t, "a\nB\nc\nd\ne\n", readFile(t, path))

	mustRun(t, cfg, func(a *app) error { return a.forget(path) })
	out = mustRun(t, cfg, func(a *app) error { return a.status([]string{path}) })
	assertOutput(t, path+": not tracked\n", out)
	_, err = run(t, cfg, func(a *app) error { return a.forget(path) })
	assert.NotNil(t, err)
	_, err = run(t, cfg, func(a *app) error { return a.show(path, true) })
	assert.NotNil(t, err)
}

func TestStartMissingFileAndClear(t *testing.T) {
	cfg := config.Default(t.TempDir())
	dir := t.TempDir()
	paths, err := absolute([]string{filepath.Join(dir, "new.txt"), filepath.Join(dir, "old.txt")})
	require.Nil(t, err)
	require.Nil(t, os.WriteFile(paths[1], []byte("x\n"), 0644))
	mustRun(t, cfg, func(a *app) error {
		return a.start(context.Background(), paths)
	})
	require.Nil(t, os.WriteFile(paths[0], []byte("hello"), 0644))

	out := mustRun(t, cfg, func(a *app) error { return a.show(paths[0], true) })
	assertOutput(t, "   1 + hello\n", out)

	out = mustRun(t, cfg, func(a *app) error { return a.status(nil) })
	assert.Equal(t, 3, strings.Count(out, "\n"), out)

	mustRun(t, cfg, func(a *app) error {
		a.clear()
		return nil
	})
	out = mustRun(t, cfg, func(a *app) error { return a.status(nil) })
	assert.Equal(t, "", out)
	assert.Equal(t, "hello", readFile(t, paths[0]), "clearing leaves files alone")
}

func TestNullStorageForgetsBetweenInvocations(t *testing.T) {
	cfg := config.Default(t.TempDir())
	cfg.Storage = "null"
	path := filepath.Join(t.TempDir(), "a")
	require.Nil(t, os.WriteFile(path, []byte("a"), 0644))
	mustRun(t, cfg, func(a *app) error {
		return a.start(context.Background(), []string{path})
	})
	out := mustRun(t, cfg, func(a *app) error { return a.status(nil) })
	assert.Equal(t, "", out)
}

func TestUnknownStorage(t *testing.T) {
	cfg := config.Default(t.TempDir())
	cfg.Storage = "tape"
	_, err := newApp(context.Background(), cfg, &bytes.Buffer{}, termenv.Ascii)
	assert.NotNil(t, err)
}
