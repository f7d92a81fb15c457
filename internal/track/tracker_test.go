package track

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nicolagi/difftrack/internal/baseline"
	"github.com/nicolagi/difftrack/internal/diff"
	"github.com/nicolagi/difftrack/internal/storage"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestTracker(t *testing.T, source baseline.Source, store storage.Store) (*Tracker, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	tr := New(Options{
		Source: source,
		Store:  store,
		Logger: log.NewEntry(logger),
		Now:    func() time.Time { return epoch },
	})
	t.Cleanup(tr.Close)
	return tr, hook
}

func noBaseline(string) (string, error) {
	return "", baseline.ErrNoBaseline
}

func start(t *testing.T, tr *Tracker, docs map[string]string) string {
	t.Helper()
	id, err := tr.StartSession(context.Background(), docs)
	require.Nil(t, err)
	return id
}

func TestQueriesOnUntrackedDocuments(t *testing.T) {
	tr, _ := newTestTracker(t, nil, nil)
	_, ok := tr.Changes("a")
	assert.False(t, ok)
	_, ok = tr.Baseline("a")
	assert.False(t, ok)
	_, ok = tr.InlineView("a")
	assert.False(t, ok)
	_, ok = tr.Blocks("a")
	assert.False(t, ok)
	_, ok = tr.Document("a")
	assert.False(t, ok)
	_, ok = tr.RevertBlock("a", 0)
	assert.False(t, ok)
	assert.False(t, tr.KeepBlock("a", 0))
	_, ok = tr.RevertAll("a")
	assert.False(t, ok)
	assert.False(t, tr.KeepAll("a"))
	assert.False(t, tr.Forget("a"))
	assert.Empty(t, tr.Paths())
}

func TestContentChangesAreIgnoredWhenNotRecording(t *testing.T) {
	tr, _ := newTestTracker(t, baseline.SourceFunc(noBaseline), nil)
	assert.False(t, tr.Recording())
	assert.False(t, tr.ContentChanged("a", "x"))
	_, ok := tr.Changes("a")
	assert.False(t, ok)

	id := start(t, tr, nil)
	got, ok := tr.Session()
	assert.True(t, ok)
	assert.Equal(t, id, got)
	assert.True(t, tr.ContentChanged("a", "x"))

	tr.EndSession()
	assert.False(t, tr.Recording())
	assert.False(t, tr.ContentChanged("a", "y"))
	doc, ok := tr.Document("a")
	require.True(t, ok, "documents survive the end of the session")
	assert.Equal(t, "x", doc.Current)
}

func TestSessionTracksStartingContent(t *testing.T) {
	tr, _ := newTestTracker(t, nil, nil)
	start(t, tr, map[string]string{"f": "a\nb\nc"})

	changes, ok := tr.Changes("f")
	require.True(t, ok)
	for _, c := range changes {
		assert.Equal(t, diff.Unchanged, c.Kind)
	}
	blocks, ok := tr.Blocks("f")
	require.True(t, ok)
	assert.Empty(t, blocks)

	require.True(t, tr.ContentChanged("f", "a\nx\nc"))
	blocks, _ = tr.Blocks("f")
	require.Len(t, blocks, 1)
	assert.Equal(t, diff.Modified, blocks[0].Kind)
	base, _ := tr.Baseline("f")
	assert.Equal(t, "a\nb\nc", base)

	doc, _ := tr.Document("f")
	assert.Equal(t, Live, doc.Source)
	assert.Equal(t, epoch, doc.Updated)
}

func TestLazyCreation(t *testing.T) {
	t.Run("baseline from source", func(t *testing.T) {
		source := baseline.SourceFunc(func(path string) (string, error) {
			return "one\ntwo\n", nil
		})
		tr, hook := newTestTracker(t, source, nil)
		start(t, tr, nil)
		require.True(t, tr.ContentChanged("f", "one\n2\n"))
		base, ok := tr.Baseline("f")
		require.True(t, ok)
		assert.Equal(t, "one\ntwo\n", base)
		for _, e := range hook.AllEntries() {
			assert.NotEqual(t, log.WarnLevel, e.Level)
		}
	})
	t.Run("failing source yields empty baseline", func(t *testing.T) {
		source := baseline.SourceFunc(func(path string) (string, error) {
			return "", errors.New("permission denied")
		})
		tr, hook := newTestTracker(t, source, nil)
		start(t, tr, nil)
		require.True(t, tr.ContentChanged("f", "x\ny"))
		base, ok := tr.Baseline("f")
		require.True(t, ok)
		assert.Equal(t, "", base)
		changes, _ := tr.Changes("f")
		require.Len(t, changes, 2)
		assert.Equal(t, diff.Added, changes[0].Kind)
		assert.Equal(t, diff.Added, changes[1].Kind)
		require.NotNil(t, hook.LastEntry())
		assert.Equal(t, log.WarnLevel, hook.LastEntry().Level)
		assert.Equal(t, "f", hook.LastEntry().Data["path"])
	})
	t.Run("new document is all additions", func(t *testing.T) {
		tr, hook := newTestTracker(t, baseline.SourceFunc(noBaseline), nil)
		start(t, tr, nil)
		require.True(t, tr.ContentChanged("f", "x"))
		changes, _ := tr.Changes("f")
		assert.Equal(t, []diff.Change{{CurrentLine: 1, Kind: diff.Added, NewText: "x"}}, changes)
		for _, e := range hook.AllEntries() {
			assert.NotEqual(t, log.WarnLevel, e.Level)
		}
	})
}

func TestBlockOperations(t *testing.T) {
	const (
		old     = "a\nb\nc\nd\ne"
		current = "a\nB\nc\ne\nf"
	)
	setup := func(t *testing.T) *Tracker {
		tr, _ := newTestTracker(t, nil, nil)
		start(t, tr, map[string]string{"f": old})
		require.True(t, tr.ContentChanged("f", current))
		blocks, _ := tr.Blocks("f")
		require.Len(t, blocks, 3)
		return tr
	}
	t.Run("revert one block", func(t *testing.T) {
		tr := setup(t)
		content, ok := tr.RevertBlock("f", 1)
		require.True(t, ok)
		assert.Equal(t, "a\nB\nc\nd\ne\nf", content)
		blocks, _ := tr.Blocks("f")
		require.Len(t, blocks, 2)
		assert.Equal(t, diff.Modified, blocks[0].Kind)
		assert.Equal(t, diff.Added, blocks[1].Kind)
		base, _ := tr.Baseline("f")
		assert.Equal(t, old, base)
	})
	t.Run("keep one block", func(t *testing.T) {
		tr := setup(t)
		require.True(t, tr.KeepBlock("f", 0))
		base, _ := tr.Baseline("f")
		assert.Equal(t, "a\nB\nc\nd\ne", base)
		doc, _ := tr.Document("f")
		assert.Equal(t, current, doc.Current)
		blocks, _ := tr.Blocks("f")
		require.Len(t, blocks, 2)
		assert.Equal(t, diff.Deleted, blocks[0].Kind)
	})
	t.Run("stale indices fail gracefully", func(t *testing.T) {
		tr := setup(t)
		for _, i := range []int{-1, 3, 100} {
			_, ok := tr.RevertBlock("f", i)
			assert.False(t, ok)
			assert.False(t, tr.KeepBlock("f", i))
		}
		doc, _ := tr.Document("f")
		assert.Equal(t, current, doc.Current)
		assert.Equal(t, old, doc.Baseline)
	})
	t.Run("reverting every block restores the baseline", func(t *testing.T) {
		tr := setup(t)
		for {
			blocks, _ := tr.Blocks("f")
			if len(blocks) == 0 {
				break
			}
			_, ok := tr.RevertBlock("f", len(blocks)-1)
			require.True(t, ok)
		}
		doc, _ := tr.Document("f")
		assert.Equal(t, old, doc.Current)
	})
	t.Run("revert all", func(t *testing.T) {
		tr := setup(t)
		content, ok := tr.RevertAll("f")
		require.True(t, ok)
		assert.Equal(t, old, content)
		blocks, _ := tr.Blocks("f")
		assert.Empty(t, blocks)
		assert.Equal(t, []string{"f"}, tr.Paths())
	})
	t.Run("keep all", func(t *testing.T) {
		tr := setup(t)
		require.True(t, tr.KeepAll("f"))
		base, _ := tr.Baseline("f")
		assert.Equal(t, current, base)
		blocks, _ := tr.Blocks("f")
		assert.Empty(t, blocks)
	})
	t.Run("forget and clear", func(t *testing.T) {
		tr := setup(t)
		require.True(t, tr.ContentChanged("g", "new"))
		assert.Equal(t, []string{"f", "g"}, tr.Paths())
		assert.True(t, tr.Forget("f"))
		assert.False(t, tr.Forget("f"))
		assert.Equal(t, []string{"g"}, tr.Paths())
		tr.ClearAll()
		assert.Empty(t, tr.Paths())
	})
}

func TestInlineView(t *testing.T) {
	tr, _ := newTestTracker(t, nil, nil)
	start(t, tr, map[string]string{"f": "a\nb"})
	require.True(t, tr.ContentChanged("f", "a\nc"))
	v, ok := tr.InlineView("f")
	require.True(t, ok)
	assert.Equal(t, "a\nb\nc", v.Content)
	assert.Equal(t, []diff.LineType{diff.LineUnchanged, diff.LineDeleted, diff.LineAdded}, v.LineTypes)

	// Callers cannot corrupt the cached view.
	v.LineTypes[0] = diff.LineAdded
	again, _ := tr.InlineView("f")
	assert.Equal(t, diff.LineUnchanged, again.LineTypes[0])

	require.True(t, tr.ContentChanged("f", "a\nb"))
	v, _ = tr.InlineView("f")
	assert.Equal(t, "a\nb", v.Content)
}

func TestObservers(t *testing.T) {
	tr, hook := newTestTracker(t, baseline.SourceFunc(noBaseline), nil)
	var calls []string
	tr.Subscribe(func(e Event) {
		calls = append(calls, "first:"+e.Kind.String())
	})
	tr.Subscribe(func(Event) {
		panic("misbehaving observer")
	})
	cancel := tr.Subscribe(func(e Event) {
		calls = append(calls, "third:"+e.Kind.String())
	})

	id := start(t, tr, nil)
	tr.ContentChanged("f", "x")
	cancel()
	tr.Forget("f")

	assert.Equal(t, []string{
		"first:session-started",
		"third:session-started",
		"first:changed",
		"third:changed",
		"first:forgotten",
	}, calls)
	panics := 0
	for _, e := range hook.AllEntries() {
		if e.Message == "Observer failed" {
			panics++
		}
	}
	assert.Equal(t, 3, panics)
	assert.NotEmpty(t, id)
}

func TestEvents(t *testing.T) {
	tr, hook := newTestTracker(t, baseline.SourceFunc(noBaseline), nil)
	events, cancel := tr.Events(2)
	id := start(t, tr, nil)
	tr.ContentChanged("f", "x")
	tr.ContentChanged("f", "y") // Dropped.
	want := []Event{
		{Kind: EventSessionStarted, Block: -1, Session: id},
		{Kind: EventChanged, Path: "f", Block: -1, Session: id},
	}
	got := []Event{<-events, <-events}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("events mismatch (-want +got):\n%s", d)
	}
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Dropping event, channel is full", hook.LastEntry().Message)

	cancel()
	cancel()
	_, open := <-events
	assert.False(t, open)
	tr.ContentChanged("f", "z")
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	gone := filepath.Join(dir, "gone.txt")
	require.Nil(t, os.WriteFile(path, []byte("a\nb\n"), 0644))
	require.Nil(t, os.WriteFile(gone, []byte("x\n"), 0644))
	store := &storage.InMemory{}

	tr, _ := newTestTracker(t, nil, store)
	start(t, tr, map[string]string{path: "a\nb\n", gone: "x\n"})
	assert.Equal(t, 3, store.Len(), "two baselines and the manifest")

	require.Nil(t, os.WriteFile(path, []byte("a\nB\n"), 0644))
	require.Nil(t, os.Remove(gone))
	tr.ContentChanged(path, "a\nB\n")
	require.True(t, tr.KeepBlock(path, 0))

	restored, _ := newTestTracker(t, nil, store)
	require.Nil(t, restored.Restore(context.Background()))
	assert.Equal(t, []string{path, gone}, restored.Paths())
	doc, ok := restored.Document(path)
	require.True(t, ok)
	assert.Equal(t, "a\nB\n", doc.Baseline)
	assert.Equal(t, "a\nB\n", doc.Current)
	assert.Equal(t, Cached, doc.Source)
	doc, ok = restored.Document(gone)
	require.True(t, ok)
	assert.Equal(t, "", doc.Current)
	blocks, _ := restored.Blocks(gone)
	require.Len(t, blocks, 1)
	assert.Equal(t, diff.Deleted, blocks[0].Kind)

	restored.Forget(gone)
	_, err := store.Get(storage.KeyFor(gone))
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	restored.ClearAll()
	assert.Equal(t, 0, store.Len())

	empty, _ := newTestTracker(t, nil, store)
	require.Nil(t, empty.Restore(context.Background()))
	assert.Empty(t, empty.Paths())
}

type failingStore struct {
	storage.InMemory
}

func (*failingStore) Put(storage.Key, storage.Value) error {
	return errors.New("read-only file system")
}

func TestStoreFailures(t *testing.T) {
	tr, hook := newTestTracker(t, baseline.SourceFunc(noBaseline), &failingStore{})
	_, err := tr.StartSession(context.Background(), map[string]string{"f": "x"})
	assert.NotNil(t, err)
	assert.True(t, tr.Recording(), "the session starts anyway")

	require.True(t, tr.ContentChanged("f", "y"))
	require.True(t, tr.KeepAll("f"))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, log.WarnLevel, hook.LastEntry().Level)
	base, _ := tr.Baseline("f")
	assert.Equal(t, "y", base)
}

func TestConcurrentDocuments(t *testing.T) {
	tr, _ := newTestTracker(t, baseline.SourceFunc(noBaseline), nil)
	start(t, tr, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			path := fmt.Sprintf("doc%d", i)
			for j := 0; j < 20; j++ {
				tr.ContentChanged(path, fmt.Sprintf("line %d\n", j))
				tr.Blocks(path)
				tr.InlineView(path)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, tr.Paths(), 8)
	for _, path := range tr.Paths() {
		doc, _ := tr.Document(path)
		assert.Equal(t, "line 19\n", doc.Current)
	}
}

// slowStore gives other goroutines a chance to run in the middle of a put.
type slowStore struct {
	storage.InMemory
}

func (s *slowStore) Put(k storage.Key, v storage.Value) error {
	time.Sleep(time.Millisecond)
	return s.InMemory.Put(k, v)
}

func TestStoredBaselineFollowsConcurrentKeeps(t *testing.T) {
	store := &slowStore{}
	tr, _ := newTestTracker(t, baseline.SourceFunc(noBaseline), store)
	start(t, tr, map[string]string{"f": "a\n"})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				tr.ContentChanged("f", fmt.Sprintf("a\nline %d %d\n", i, j))
				if j%2 == 0 {
					tr.KeepAll("f")
				} else {
					tr.KeepBlock("f", 0)
				}
			}
		}()
	}
	wg.Wait()
	base, ok := tr.Baseline("f")
	require.True(t, ok)
	stored, err := store.Get(storage.KeyFor("f"))
	require.Nil(t, err)
	assert.Equal(t, base, string(stored))
}
