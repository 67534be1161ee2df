// Package ot is the generic operational transformation engine. Domains
// provide a Rules implementation over a closed set of operation types and
// get list transform, squash and invert from System.
package ot

// Rules is the per-domain rule set. Transform must handle every pair of
// operation kinds the domain declares; empty operations are filtered by
// System before Transform or Squash see them.
type Rules[O any] interface {
	// Transform reconciles two concurrent single operations.
	Transform(left, right O) (TransformResult[O], error)
	// Squash merges first followed by second into one operation. The second
	// return is false when the pair does not combine.
	Squash(first, second O) (O, bool)
	// Invert returns the operation undoing op.
	Invert(op O) O
	// IsEmpty reports whether applying op is a no-op.
	IsEmpty(op O) bool
}

// State is a mutable accumulator operations are folded into.
type State[O any] interface {
	Init()
	Apply(op O) error
}

// System exposes sequence-level transform, squash and invert for a domain.
type System[O any] struct {
	rules Rules[O]
}

// NewSystem wraps a domain rule set.
func NewSystem[O any](rules Rules[O]) *System[O] {
	return &System[O]{rules: rules}
}

// IsEmpty reports whether op is a no-op.
func (s *System[O]) IsEmpty(op O) bool {
	return s.rules.IsEmpty(op)
}

// Transform reconciles two concurrent sequences.
func (s *System[O]) Transform(left, right []O) (TransformResult[O], error) {
	left, right = s.compact(left), s.compact(right)
	steps := stepsPerPair * (len(left) + 1) * (len(right) + 1)
	res, err := s.transform(left, right, &steps)
	if err != nil {
		return TransformResult[O]{}, err
	}
	return TransformResult[O]{Left: s.compact(res.Left), Right: s.compact(res.Right)}, nil
}

// stepsPerPair bounds how many single-op transforms one pair of input
// operations may expand into before the rule set is declared divergent.
const stepsPerPair = 64

func (s *System[O]) transform(left, right []O, steps *int) (TransformResult[O], error) {
	switch {
	case len(left) == 0 && len(right) == 0:
		return Empty[O](), nil
	case len(left) == 0:
		return RightOnly(right...), nil
	case len(right) == 0:
		return LeftOnly(left...), nil
	}

	if len(left) == 1 {
		*steps--
		if *steps < 0 {
			return TransformResult[O]{}, Diverged(left[0], right[0])
		}
		head, err := s.rules.Transform(left[0], right[0])
		if err != nil {
			return TransformResult[O]{}, err
		}
		tail, err := s.transform(s.compact(head.Left), right[1:], steps)
		if err != nil {
			return TransformResult[O]{}, err
		}
		return TransformResult[O]{
			Left:  tail.Left,
			Right: concat(head.Right, tail.Right),
		}, nil
	}

	head, err := s.transform(left[:1], right, steps)
	if err != nil {
		return TransformResult[O]{}, err
	}
	tail, err := s.transform(left[1:], s.compact(head.Right), steps)
	if err != nil {
		return TransformResult[O]{}, err
	}
	return TransformResult[O]{
		Left:  concat(head.Left, tail.Left),
		Right: tail.Right,
	}, nil
}

// Squash merges adjacent operations where the rule set allows it and drops
// operations that end up empty.
func (s *System[O]) Squash(ops []O) []O {
	result := make([]O, 0, len(ops))
	var (
		cur     O
		haveCur bool
	)
	for _, next := range ops {
		if s.rules.IsEmpty(next) {
			continue
		}
		if !haveCur {
			cur, haveCur = next, true
			continue
		}
		if squashed, ok := s.rules.Squash(cur, next); ok {
			if s.rules.IsEmpty(squashed) {
				haveCur = false
				// an annihilated pair may let the previous op merge with the next one
				if n := len(result); n > 0 {
					cur, haveCur = result[n-1], true
					result = result[:n-1]
				}
				continue
			}
			cur = squashed
			continue
		}
		result = append(result, cur)
		cur = next
	}
	if haveCur {
		result = append(result, cur)
	}
	return result
}

// Invert returns the sequence undoing ops, in reverse order.
func (s *System[O]) Invert(ops []O) []O {
	out := make([]O, 0, len(ops))
	for i := len(ops) - 1; i >= 0; i-- {
		out = append(out, s.rules.Invert(ops[i]))
	}
	return out
}

// Apply folds ops into state in order, stopping at the first error.
func Apply[O any](state State[O], ops ...O) error {
	for _, op := range ops {
		if err := state.Apply(op); err != nil {
			return err
		}
	}
	return nil
}

func (s *System[O]) compact(ops []O) []O {
	out := ops[:0:0]
	for _, op := range ops {
		if !s.rules.IsEmpty(op) {
			out = append(out, op)
		}
	}
	return out
}

func concat[O any](a, b []O) []O {
	out := make([]O, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// Editor is the document handle domain services build operations against.
// The state manager implements it.
type Editor[O any, S any] interface {
	State() S
	Add(ops ...O) error
}
