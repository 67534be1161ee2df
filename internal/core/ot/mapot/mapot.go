// Package mapot implements field-level last-writer-wins OT over string keyed
// maps. It backs the contacts and profile domains.
package mapot

import (
	"cmp"
	"fmt"
	"maps"

	"golang.org/x/exp/constraints"

	"github.com/zeusync/otsync/internal/core/ot"
)

// Edit changes one key from Prev to Next. A nil pointer means the key is absent.
type Edit[V comparable] struct {
	Prev *V `json:"prev"`
	Next *V `json:"next"`
}

func (e Edit[V]) IsEmpty() bool { return equal(e.Prev, e.Next) }

func (e Edit[V]) Invert() Edit[V] { return Edit[V]{Prev: e.Next, Next: e.Prev} }

// Operation is a multi-key edit. Keys are independent of each other.
type Operation[V comparable] map[string]Edit[V]

// Set builds a single-key operation.
func Set[V comparable](key string, prev, next *V) Operation[V] {
	return Operation[V]{key: {Prev: prev, Next: next}}
}

// Compare orders two proposed values; nil sorts first. It must be a total
// order consistent with ==.
type Compare[V comparable] func(a, b *V) int

// OrderedCompare is the lexicographic comparison for ordered value types.
func OrderedCompare[V constraints.Ordered](a, b *V) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return cmp.Compare(*a, *b)
	}
}

// Rules is the ot.Rules implementation for map operations.
type Rules[V comparable] struct {
	compare Compare[V]
}

// NewRules returns map rules resolving same-key conflicts with compare.
func NewRules[V comparable](compare Compare[V]) Rules[V] {
	return Rules[V]{compare: compare}
}

var _ ot.Rules[Operation[string]] = Rules[string]{}

func (r Rules[V]) Transform(left, right Operation[V]) (ot.TransformResult[Operation[V]], error) {
	leftOut := Operation[V]{}
	rightOut := Operation[V]{}

	for key, l := range left {
		rt, ok := right[key]
		if !ok {
			leftOut[key] = l
			continue
		}
		if !equal(l.Prev, rt.Prev) {
			return ot.TransformResult[Operation[V]]{}, ot.Conflict(left, right, fmt.Sprintf("key %q edited from different values", key))
		}
		if equal(l.Next, rt.Next) {
			continue
		}
		if r.compare(l.Next, rt.Next) > 0 {
			leftOut[key] = Edit[V]{Prev: rt.Next, Next: l.Next}
		} else {
			rightOut[key] = Edit[V]{Prev: l.Next, Next: rt.Next}
		}
	}
	for key, rt := range right {
		if _, ok := left[key]; !ok {
			rightOut[key] = rt
		}
	}

	return ot.Of(single(leftOut), single(rightOut)), nil
}

func (r Rules[V]) Squash(first, second Operation[V]) (Operation[V], bool) {
	out := maps.Clone(first)
	if out == nil {
		out = Operation[V]{}
	}
	for key, e := range second {
		prev, ok := out[key]
		if !ok {
			out[key] = e
			continue
		}
		if !equal(prev.Next, e.Prev) {
			return nil, false
		}
		out[key] = Edit[V]{Prev: prev.Prev, Next: e.Next}
	}
	for key, e := range out {
		if e.IsEmpty() {
			delete(out, key)
		}
	}
	return out, true
}

func (r Rules[V]) Invert(op Operation[V]) Operation[V] {
	out := make(Operation[V], len(op))
	for key, e := range op {
		out[key] = e.Invert()
	}
	return out
}

func (r Rules[V]) IsEmpty(op Operation[V]) bool {
	for _, e := range op {
		if !e.IsEmpty() {
			return false
		}
	}
	return true
}

func single[V comparable](op Operation[V]) []Operation[V] {
	if len(op) == 0 {
		return nil
	}
	return []Operation[V]{op}
}

func equal[V comparable](a, b *V) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Ptr is a convenience for building edits from literals.
func Ptr[V any](v V) *V { return &v }
