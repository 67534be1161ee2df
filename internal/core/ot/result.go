package ot

// TransformResult reconciles two concurrent operation sequences L and R
// applied to the same state. Left is L rebased to apply after R, Right is R
// rebased to apply after L, so that
//
//	apply(Right, apply(L, s)) == apply(Left, apply(R, s))
type TransformResult[O any] struct {
	Left  []O
	Right []O
}

// Empty means both sides already converge.
func Empty[O any]() TransformResult[O] { return TransformResult[O]{} }

// Of builds a result from explicit sequences.
func Of[O any](left, right []O) TransformResult[O] {
	return TransformResult[O]{Left: left, Right: right}
}

// Pass keeps both operations unchanged. Used for independent operations.
func Pass[O any](left, right O) TransformResult[O] {
	return TransformResult[O]{Left: []O{left}, Right: []O{right}}
}

// LeftOnly carries ops only in Left, which is applied after R: the branch
// that applied L already holds the merged state and only the branch that
// applied R needs ops to catch up.
func LeftOnly[O any](ops ...O) TransformResult[O] {
	return TransformResult[O]{Left: ops}
}

// RightOnly carries ops only in Right, for the branch that applied L; the
// branch that applied R already holds the merged state.
func RightOnly[O any](ops ...O) TransformResult[O] {
	return TransformResult[O]{Right: ops}
}

// Flip swaps the sides; transform(b, a) == transform(a, b).Flip().
func (r TransformResult[O]) Flip() TransformResult[O] {
	return TransformResult[O]{Left: r.Right, Right: r.Left}
}

// IsEmpty reports whether neither side carries operations.
func (r TransformResult[O]) IsEmpty() bool {
	return len(r.Left) == 0 && len(r.Right) == 0
}
