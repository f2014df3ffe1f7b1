// Package registry tracks live instances of a subsystem so status queries can
// aggregate over them without package-level globals.
package registry

import "sync"

// Set is a concurrency-safe, insertion-ordered collection of instances.
// The zero value is ready to use.
type Set[T comparable] struct {
	mu    sync.RWMutex
	items []T
}

// Add registers v. Adding an instance that is already present is a no-op.
func (s *Set[T]) Add(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item == v {
			return
		}
	}
	s.items = append(s.items, v)
}

// Remove unregisters v and reports whether it was present.
func (s *Set[T]) Remove(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range s.items {
		if item == v {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

// Instances returns a snapshot of the registered instances. A nil *Set has
// none.
func (s *Set[T]) Instances() []T {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.items) == 0 {
		return nil
	}
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of registered instances.
func (s *Set[T]) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
