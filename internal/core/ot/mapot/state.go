package mapot

import (
	"fmt"
	"maps"

	"github.com/zeusync/otsync/internal/core/ot"
)

// State is the folded map.
type State[V comparable] struct {
	values map[string]V
}

// NewState returns an empty map state.
func NewState[V comparable]() *State[V] {
	return &State[V]{values: make(map[string]V)}
}

func (s *State[V]) Init() { s.values = make(map[string]V) }

// Apply checks every edit's Prev against the current value before writing.
func (s *State[V]) Apply(op Operation[V]) error {
	for key, e := range op {
		cur, ok := s.values[key]
		var curPtr *V
		if ok {
			curPtr = &cur
		}
		if !equal(curPtr, e.Prev) {
			return fmt.Errorf("%w: key %q does not hold the edited value", ot.ErrApply, key)
		}
	}
	for key, e := range op {
		if e.Next == nil {
			delete(s.values, key)
		} else {
			s.values[key] = *e.Next
		}
	}
	return nil
}

// Get returns the value under key.
func (s *State[V]) Get(key string) (V, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Values returns a copy of the map.
func (s *State[V]) Values() map[string]V { return maps.Clone(s.values) }

func (s *State[V]) Len() int { return len(s.values) }

func (s *State[V]) Clone() *State[V] {
	return &State[V]{values: maps.Clone(s.values)}
}

func (s *State[V]) Equal(other *State[V]) bool {
	return maps.Equal(s.values, other.values)
}

// SetOp builds the edit moving key from its current value to next.
func (s *State[V]) SetOp(key string, next *V) Operation[V] {
	var prev *V
	if cur, ok := s.values[key]; ok {
		prev = &cur
	}
	return Set(key, prev, next)
}
