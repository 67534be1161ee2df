// Package generic holds small type-safe wrappers over the standard library.
package generic

import "sync"

// Pool is a typed sync.Pool. Values handed to Put are passed through reset
// first; reset may reject a value by returning false, and it is then dropped.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T) bool
}

// NewPool creates a pool allocating with generate. reset prepares a
// returned value for reuse and reports whether it may be kept.
func NewPool[T any](generate func() T, reset func(T) bool) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				return generate()
			},
		},
		reset: reset,
	}
}

// NewHotPool creates a pool pre-filled with hotSize values.
func NewHotPool[T any](generate func() T, reset func(T) bool, hotSize int) *Pool[T] {
	p := NewPool[T](generate, reset)
	for i := 0; i < hotSize; i++ {
		p.pool.Put(generate())
	}
	return p
}

// Get returns a pooled or freshly generated value.
func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put returns value to the pool unless reset rejects it.
func (p *Pool[T]) Put(value T) {
	if p.reset != nil && !p.reset(value) {
		return
	}
	p.pool.Put(value)
}
