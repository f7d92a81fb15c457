package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// DiskStore keeps each value in a file named after its key, in a
// subdirectory named after the first two characters of the key.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

func (s *DiskStore) Get(k Key) (Value, error) {
	b, err := os.ReadFile(s.pathFor(k))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%q: %w", k, ErrNotFound)
	}
	return b, errors.WithStack(err)
}

func (s *DiskStore) Put(k Key, v Value) error {
	p := s.pathFor(k)
	pnew := p + ".new"
	err := os.WriteFile(pnew, v, 0666)
	if err != nil {
		if !os.IsNotExist(err) {
			return errors.WithStack(err)
		}
		if err = os.MkdirAll(filepath.Dir(pnew), 0777); err != nil {
			return errors.WithStack(err)
		}
		err = os.WriteFile(pnew, v, 0666)
	}
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(pnew, p))
}

func (s *DiskStore) Delete(k Key) error {
	err := os.Remove(s.pathFor(k))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "could not delete %v", k)
	}
	return nil
}

func (s *DiskStore) pathFor(key Key) string {
	k := string(key)
	if len(k) < 2 {
		return filepath.Join(s.dir, k)
	}
	return filepath.Join(s.dir, k[:2], k)
}
