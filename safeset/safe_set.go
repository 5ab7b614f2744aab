package safeset

import "sync"

// SafeSet is a set of comparable values that is safe for concurrent use.
type SafeSet[T comparable] struct {
	m map[T]struct{}
	sync.Mutex
}

// NewSafeSet creates and returns a new empty SafeSet.
func NewSafeSet[T comparable]() *SafeSet[T] {
	return &SafeSet[T]{m: make(map[T]struct{})}
}

// Add adds value to the set.
func (s *SafeSet[T]) Add(value T) {
	s.Lock()
	defer s.Unlock()
	s.m[value] = struct{}{}
}

// Remove removes value from the set.
func (s *SafeSet[T]) Remove(value T) {
	s.Lock()
	defer s.Unlock()
	delete(s.m, value)
}

// Take removes value and reports whether it was present. Two concurrent
// Takes of the same value never both return true.
//
// Parameters:
//   - value: The element to remove
//
// Returns:
//   - true if value was in the set
func (s *SafeSet[T]) Take(value T) bool {
	s.Lock()
	defer s.Unlock()
	_, ok := s.m[value]
	delete(s.m, value)
	return ok
}
