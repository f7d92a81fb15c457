package storage

import (
	"fmt"
	"sync"
)

// InMemory implements Store. It is the default store of a tracker that
// does not persist baselines, and it is handy in unit tests.
type InMemory struct {
	sync.Mutex
	m map[Key]Value
}

func (s *InMemory) Get(k Key) (Value, error) {
	s.Lock()
	defer s.Unlock()
	v, ok := s.m[k]
	if !ok {
		return nil, fmt.Errorf("%q: %w", k, ErrNotFound)
	}
	return append(Value(nil), v...), nil
}

func (s *InMemory) Put(k Key, v Value) error {
	s.Lock()
	defer s.Unlock()
	if s.m == nil {
		s.m = make(map[Key]Value)
	}
	s.m[k] = append(Value(nil), v...)
	return nil
}

func (s *InMemory) Delete(k Key) error {
	s.Lock()
	defer s.Unlock()
	delete(s.m, k)
	return nil
}

// Len returns the number of stored values.
func (s *InMemory) Len() int {
	s.Lock()
	defer s.Unlock()
	return len(s.m)
}
