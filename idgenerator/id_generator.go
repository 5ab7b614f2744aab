package idgenerator

import "sync/atomic"

// IdGenerator generates monotonically increasing uint64 IDs in a
// concurrency-safe manner. The first Id() returns startValue+1.
type IdGenerator struct {
	id atomic.Uint64
}

// NewIdGenerator creates an IdGenerator whose first ID is startValue+1.
//
// Parameters:
//   - startValue: The value to initialize the counter to
//
// Returns:
//   - A new IdGenerator instance
func NewIdGenerator(startValue uint64) *IdGenerator {
	gen := &IdGenerator{}
	gen.id.Store(startValue)
	return gen
}

// Id returns the next ID. It is safe for concurrent use.
func (l *IdGenerator) Id() uint64 {
	return l.id.Add(1)
}

// Last returns the most recently issued ID, or the start value if none has
// been issued.
func (l *IdGenerator) Last() uint64 {
	return l.id.Load()
}
