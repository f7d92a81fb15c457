package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Valid prefix byte in the propagation log lines. A pending item is only in the
// fast store, that needs to copied to the slow store. A done item is in the slow
// store and may or may not be in the fast store. A missing item is one that was
// to be propagated from fast to slow store, but was not found in the fast store.
const (
	itemPending = 'p'
	itemMissing = 'm'
	itemDone    = 'd'
)

// The log consists of lines of known length (a byte, a key, a newline).
const (
	keyLength     = 64
	logLineLength = keyLength + 2
)

type propagationLog struct {
	readOffset int64

	// Signalled when an item is added.
	notify chan struct{}

	mu   sync.Mutex
	file *os.File
}

// newLog reads the log at pathname (creating it if necessary) and compacts it,
// dropping the items that are done.
func newLog(pathname string) (*propagationLog, error) {
	const method = "newLog"
	curr, err := os.OpenFile(pathname, os.O_RDONLY|os.O_CREATE, 0666)
	if err != nil {
		return nil, errorf(method, "open %q read-only: %v", pathname, err)
	}
	next, err := os.OpenFile(pathname+".new", os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		_ = curr.Close()
		return nil, errorf(method, "open %q write-only: %v", pathname+".new", err)
	}
	// Closes both files after a failure while compacting.
	abort := func(err error) (*propagationLog, error) {
		_ = curr.Close()
		_ = next.Close()
		return nil, err
	}
	s := bufio.NewScanner(curr)
	for s.Scan() {
		line := s.Text()
		if len(line) != logLineLength-1 {
			return abort(errorf(method, "malformed line %q", line))
		}
		switch state := line[0]; state {
		case itemPending, itemMissing:
			if _, err := fmt.Fprintln(next, line); err != nil {
				return abort(errorf(method, "copying line from %q to %q: %v", curr.Name(), next.Name(), err))
			}
		case itemDone:
		default:
			return abort(errorf(method, "unrecognized item state: %d", state))
		}
	}
	if err := s.Err(); err != nil {
		return abort(errorf(method, "scan %q: %v", curr.Name(), err))
	}
	if err := curr.Close(); err != nil {
		_ = next.Close()
		return nil, errorf(method, "close %q: %v", curr.Name(), err)
	}
	if err := next.Close(); err != nil {
		return nil, errorf(method, "close %q: %v", next.Name(), err)
	}
	if err := os.Rename(next.Name(), curr.Name()); err != nil && !os.IsNotExist(err) {
		return nil, errorf(method, "rename %q to %q: %v", next.Name(), curr.Name(), err)
	}
	curr, err = os.OpenFile(pathname, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errorf(method, "open %q read-write: %v", pathname, err)
	}
	// Seek to end for writes. (Reads will use ReadAt instead.)
	if _, err := curr.Seek(0, io.SeekEnd); err != nil {
		_ = curr.Close()
		return nil, errorf(method, "seek %q to EOF: %v", curr.Name(), err)
	}
	return &propagationLog{
		file:   curr,
		notify: make(chan struct{}, 1),
	}, nil
}

func (pl *propagationLog) add(key Key) error {
	const method = "propagationLog.add"
	if len(key) != keyLength {
		return errorf(method, "key %q: want %d characters", key, keyLength)
	}
	pl.mu.Lock()
	n, err := fmt.Fprintf(pl.file, "%c%s\n", itemPending, key)
	pl.mu.Unlock()
	if err != nil {
		return errorf(method, "%w", err)
	}
	if n != logLineLength {
		return errorf(method, "written only %d of %d bytes", n, logLineLength)
	}
	select {
	case pl.notify <- struct{}{}:
	default:
	}
	return nil
}

// next reads the line at the read offset into p, waiting for one to be added
// if necessary. It returns false if the context is done first.
func (pl *propagationLog) next(ctx context.Context, p []byte) bool {
	for {
		pl.mu.Lock()
		n, err := pl.file.ReadAt(p, pl.readOffset)
		pl.mu.Unlock()
		if n == logLineLength && err == nil {
			return true
		}
		select {
		case <-pl.notify:
		case <-ctx.Done():
			return false
		}
	}
}

func (pl *propagationLog) mark(state byte, off int64) error {
	pl.mu.Lock()
	n, err := pl.file.WriteAt([]byte{state}, off)
	pl.mu.Unlock()
	if n != 1 {
		return fmt.Errorf("wrote %d bytes instead of 1", n)
	}
	return err
}

func (pl *propagationLog) close() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	err := pl.file.Close()
	pl.file = nil // panic if somebody tries to use the log after this.
	return err
}

// Paired is a store implementation that is meant to provide the benefits of a
// fast local store and long term persistence and accessibility of cloud
// storage. Paired writes to the fast store and logs the key, and Propagate
// copies logged items to the slow store in the background. It reads from the
// fast store if possible. If not, reads from the slow store and copies content
// to the fast store for next time. It deletes from the slow store first and
// then from the fast store.
//
// The propagation log must not be shared by concurrent processes.
type Paired struct {
	retryInterval time.Duration

	fast Store
	slow Store

	log *propagationLog
}

// NewPaired creates a write-back cache from fast to slow.
// If the log path is empty, the cache is read-only and puts will fail.
func NewPaired(fast, slow Store, logPath string) (p *Paired, err error) {
	p = new(Paired)
	p.retryInterval = 5 * time.Second
	p.fast = fast
	p.slow = slow
	if logPath != "" {
		p.log, err = newLog(logPath)
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Paired) Get(k Key) (v Value, err error) {
	v, err = p.fast.Get(k)
	if errors.Is(err, ErrNotFound) {
		v, err = p.slow.Get(k)
		if err == nil {
			if e := p.fast.Put(k, v); e != nil {
				log.WithFields(log.Fields{
					"key":   k,
					"cause": e.Error(),
				}).Warning("Could not write item to the fast store")
			}
		}
	}
	return
}

// Put writes an item to the fast store and logs it to be written to the slow
// store by Propagate.
func (p *Paired) Put(k Key, v Value) error {
	if p.log == nil {
		return ErrReadOnly
	}
	if err := p.fast.Put(k, v); err != nil {
		return err
	}
	return p.log.add(k)
}

// Propagate copies logged items to the slow store, including the ones logged
// by previous instances that were not copied yet, until the context is done.
// Failed copies are retried.
func (p *Paired) Propagate(ctx context.Context) error {
	if p.log == nil {
		return ErrReadOnly
	}
	var wg sync.WaitGroup
	defer wg.Wait()
	sem := make(chan struct{}, 16)
	line := make([]byte, logLineLength)
	for p.log.next(ctx, line) {
		k := Key(line[1 : keyLength+1])
		off := p.log.readOffset
		p.log.readOffset += logLineLength // Advance to next line.
		if state := line[0]; state != itemPending && state != itemMissing {
			continue
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			p.propagateOne(ctx, k, off)
		}()
	}
	return ctx.Err()
}

func (p *Paired) propagateOne(ctx context.Context, key Key, off int64) {
	value, err := p.fast.Get(key)
	if err != nil {
		// If we can't update it in the log, it will be re-processed (needless but idempotent).
		_ = p.log.mark(itemMissing, off)
		return
	}
	for {
		if err = p.slow.Put(key, value); err == nil {
			break
		}
		log.WithFields(log.Fields{
			"key":   key,
			"cause": err.Error(),
		}).Warning("Could not put item to the slow store, will retry")
		select {
		case <-time.After(p.retryInterval):
		case <-ctx.Done():
			return
		}
	}
	// If we can't update it in the log, it will be re-processed (needless but idempotent).
	_ = p.log.mark(itemDone, off)
}

// Delete deletes an item from the slow store first, then from the fast store second. Note that if done in the other
// order, a concurrent Get could replenish the fast store from the slow store after the deletion, e.g., (1) delete from
// fast, (2) get from slow, (3) replenish fast, (4) delete from slow. Steps (1) and (4) belong to this method while (2)
// and (3) belong to Get.
func (p *Paired) Delete(k Key) error {
	if err := p.slow.Delete(k); err != nil {
		return err
	}
	return p.fast.Delete(k)
}

// Close closes the propagation log. Propagate must have returned.
func (p *Paired) Close() error {
	if p.log == nil {
		return nil
	}
	return p.log.close()
}
