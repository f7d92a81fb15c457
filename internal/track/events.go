package track

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

type EventKind int

const (
	// EventChanged is fired when the content of a document changes.
	EventChanged EventKind = iota
	EventReverted
	EventKept
	EventForgotten
	EventCleared
	EventSessionStarted
	EventSessionEnded
)

func (k EventKind) String() string {
	switch k {
	case EventChanged:
		return "changed"
	case EventReverted:
		return "reverted"
	case EventKept:
		return "kept"
	case EventForgotten:
		return "forgotten"
	case EventCleared:
		return "cleared"
	case EventSessionStarted:
		return "session-started"
	case EventSessionEnded:
		return "session-ended"
	default:
		return "unknown"
	}
}

// Event describes a change of the tracker's state. Path is empty for events
// about all documents. Block is the index of the reverted or kept block, or
// -1.
type Event struct {
	Kind    EventKind
	Path    string
	Block   int
	Session string
}

type observer struct {
	id int
	fn func(Event)
}

// Subscribe registers fn to be called on every event. The returned function
// unregisters it.
func (t *Tracker) Subscribe(fn func(Event)) (cancel func()) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.nextObserver++
	id := t.nextObserver
	t.observers = append(t.observers, observer{id: id, fn: fn})
	return func() {
		t.obsMu.Lock()
		defer t.obsMu.Unlock()
		for i, o := range t.observers {
			if o.id == id {
				t.observers = append(t.observers[:i:i], t.observers[i+1:]...)
				return
			}
		}
	}
}

// Events delivers events on a channel with the given buffer. Events that do
// not fit in the buffer are dropped. The returned function unregisters the
// channel and closes it.
func (t *Tracker) Events(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	var mu sync.Mutex
	closed := false
	unsubscribe := t.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
			t.log.WithFields(log.Fields{
				"event": e.Kind.String(),
				"path":  e.Path,
			}).Warning("Dropping event, channel is full")
		}
	})
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
}

// fire calls every observer in turn. A panicking observer is logged and
// does not prevent the others from being called.
func (t *Tracker) fire(e Event) {
	t.obsMu.Lock()
	observers := make([]observer, len(t.observers))
	copy(observers, t.observers)
	t.obsMu.Unlock()
	for _, o := range observers {
		t.notify(o, e)
	}
}

func (t *Tracker) notify(o observer, e Event) {
	defer func() {
		if r := recover(); r != nil {
			t.log.WithFields(log.Fields{
				"event": e.Kind.String(),
				"path":  e.Path,
				"cause": r,
			}).Warning("Observer failed")
		}
	}()
	o.fn(e)
}
