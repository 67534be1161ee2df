// Package documents is the OT domain for collaborative plain-text documents
// and the roster of documents a user can open. Positions count runes.
package documents

import (
	"cmp"
	"fmt"
	"unicode/utf8"

	"github.com/zeusync/otsync/internal/core/ot"
)

// Operation is the closed set of text operations.
type Operation interface {
	isOperation()
}

// InsertOp inserts Content at Pos. Origin identifies the inserting client and
// orders concurrent inserts at the same position.
type InsertOp struct {
	Pos     int    `json:"pos"`
	Content string `json:"content"`
	Origin  string `json:"origin,omitempty"`
}

// DeleteOp deletes Content, which must be the text found at Pos.
type DeleteOp struct {
	Pos     int    `json:"pos"`
	Content string `json:"content"`
}

func (InsertOp) isOperation() {}
func (DeleteOp) isOperation() {}

// Empty is the text no-op.
var Empty Operation = InsertOp{}

// Insert builds the insertion of content at pos on behalf of origin.
func Insert(pos int, content, origin string) InsertOp {
	return InsertOp{Pos: pos, Content: content, Origin: origin}
}

// Delete builds the deletion of content, which must be the text at pos.
func Delete(pos int, content string) DeleteOp {
	return DeleteOp{Pos: pos, Content: content}
}

func (o InsertOp) size() int { return utf8.RuneCountInString(o.Content) }
func (o DeleteOp) size() int { return utf8.RuneCountInString(o.Content) }
func (o DeleteOp) end() int  { return o.Pos + o.size() }

// TextRules transforms concurrent text edits.
type TextRules struct{}

var _ ot.Rules[Operation] = TextRules{}

// NewSystem returns the text OT system.
func NewSystem() *ot.System[Operation] {
	return ot.NewSystem[Operation](TextRules{})
}

func (r TextRules) Transform(left, right Operation) (ot.TransformResult[Operation], error) {
	switch l := left.(type) {
	case InsertOp:
		switch rt := right.(type) {
		case InsertOp:
			return transformInserts(l, rt), nil
		case DeleteOp:
			return transformInsertDelete(l, rt), nil
		}
	case DeleteOp:
		switch rt := right.(type) {
		case InsertOp:
			return transformInsertDelete(rt, l).Flip(), nil
		case DeleteOp:
			return transformDeletes(l, rt)
		}
	}
	return ot.TransformResult[Operation]{}, ot.Unknown(left, right)
}

// insertsBefore reports whether a ends up before b when both insert at the
// same position.
func insertsBefore(a, b InsertOp) bool {
	if c := cmp.Compare(a.Origin, b.Origin); c != 0 {
		return c < 0
	}
	return a.Content < b.Content
}

func transformInserts(l, r InsertOp) ot.TransformResult[Operation] {
	if l == r {
		return ot.Empty[Operation]()
	}
	if l.Pos < r.Pos || (l.Pos == r.Pos && insertsBefore(l, r)) {
		shifted := r
		shifted.Pos += l.size()
		return ot.Pass[Operation](l, shifted)
	}
	shifted := l
	shifted.Pos += r.size()
	return ot.Pass[Operation](shifted, r)
}

// transformInsertDelete returns the result with the insert on the left.
func transformInsertDelete(ins InsertOp, del DeleteOp) ot.TransformResult[Operation] {
	switch {
	case ins.Pos <= del.Pos:
		shifted := del
		shifted.Pos += ins.size()
		return ot.Pass[Operation](ins, shifted)
	case ins.Pos >= del.end():
		shifted := ins
		shifted.Pos -= del.size()
		return ot.Pass[Operation](shifted, del)
	}

	// the insert lands inside the deleted range: keep it and delete around it
	split := ins.Pos - del.Pos
	runes := []rune(del.Content)
	moved := ins
	moved.Pos = del.Pos
	return ot.Of[Operation](
		[]Operation{moved},
		[]Operation{
			Delete(del.Pos, string(runes[:split])),
			Delete(del.Pos+ins.size(), string(runes[split:])),
		},
	)
}

func transformDeletes(l, r DeleteOp) (ot.TransformResult[Operation], error) {
	switch {
	case l.end() <= r.Pos:
		shifted := r
		shifted.Pos -= l.size()
		return ot.Pass[Operation](l, shifted), nil
	case r.end() <= l.Pos:
		shifted := l
		shifted.Pos -= r.size()
		return ot.Pass[Operation](shifted, r), nil
	}

	from, to := max(l.Pos, r.Pos), min(l.end(), r.end())
	lr, rr := []rune(l.Content), []rune(r.Content)
	if string(lr[from-l.Pos:to-l.Pos]) != string(rr[from-r.Pos:to-r.Pos]) {
		return ot.TransformResult[Operation]{}, ot.Conflict(l, r, "overlapping deletes remove different text")
	}

	pos := min(l.Pos, r.Pos)
	leftRest := string(lr[:from-l.Pos]) + string(lr[to-l.Pos:])
	rightRest := string(rr[:from-r.Pos]) + string(rr[to-r.Pos:])
	return ot.Of[Operation](
		[]Operation{Delete(pos, leftRest)},
		[]Operation{Delete(pos, rightRest)},
	), nil
}

func (TextRules) Squash(first, second Operation) (Operation, bool) {
	switch a := first.(type) {
	case InsertOp:
		switch b := second.(type) {
		case InsertOp:
			if b.Pos >= a.Pos && b.Pos <= a.Pos+a.size() {
				runes := []rune(a.Content)
				at := b.Pos - a.Pos
				return Insert(a.Pos, string(runes[:at])+b.Content+string(runes[at:]), a.Origin), true
			}
		case DeleteOp:
			return squashInsertDelete(a, b)
		}
	case DeleteOp:
		switch b := second.(type) {
		case DeleteOp:
			// the second delete reaches the first one's position
			if b.Pos <= a.Pos && b.end() >= a.Pos {
				runes := []rune(b.Content)
				at := a.Pos - b.Pos
				return Delete(b.Pos, string(runes[:at])+a.Content+string(runes[at:])), true
			}
		case InsertOp:
			if b.Pos == a.Pos {
				return squashDeleteInsert(a, b)
			}
		}
	}
	return nil, false
}

func squashInsertDelete(a InsertOp, b DeleteOp) (Operation, bool) {
	ins, del := []rune(a.Content), []rune(b.Content)
	switch {
	case b.Pos >= a.Pos && b.end() <= a.Pos+a.size():
		from, to := b.Pos-a.Pos, b.end()-a.Pos
		if string(ins[from:to]) != b.Content {
			return nil, false
		}
		rest := string(ins[:from]) + string(ins[to:])
		if rest == "" {
			return Empty, true
		}
		return Insert(a.Pos, rest, a.Origin), true

	case b.Pos <= a.Pos && b.end() >= a.Pos+a.size():
		from, to := a.Pos-b.Pos, a.Pos-b.Pos+a.size()
		if string(del[from:to]) != a.Content {
			return nil, false
		}
		rest := string(del[:from]) + string(del[to:])
		if rest == "" {
			return Empty, true
		}
		return Delete(b.Pos, rest), true
	}
	return nil, false
}

// squashDeleteInsert folds retyping at one position into the net edit when
// one text is the other with a single block added.
func squashDeleteInsert(a DeleteOp, b InsertOp) (Operation, bool) {
	del, ins := []rune(a.Content), []rune(b.Content)
	switch {
	case len(del) == len(ins):
		if a.Content == b.Content {
			return Empty, true
		}
	case len(del) > len(ins):
		if at, ok := carve(del, ins); ok {
			return Delete(a.Pos+at, string(del[at:at+len(del)-len(ins)])), true
		}
	default:
		if at, ok := carve(ins, del); ok {
			return Insert(a.Pos+at, string(ins[at:at+len(ins)-len(del)]), b.Origin), true
		}
	}
	return nil, false
}

// carve finds where a single block can be cut out of long to leave short.
func carve(long, short []rune) (int, bool) {
	n := len(long) - len(short)
	prefix := 0
	for prefix < len(short) && long[prefix] == short[prefix] {
		prefix++
	}
	for at := prefix; at >= 0; at-- {
		if string(long[at+n:]) == string(short[at:]) {
			return at, true
		}
	}
	return 0, false
}

func (TextRules) Invert(op Operation) Operation {
	switch o := op.(type) {
	case InsertOp:
		return Delete(o.Pos, o.Content)
	case DeleteOp:
		return Insert(o.Pos, o.Content, "")
	}
	return op
}

func (TextRules) IsEmpty(op Operation) bool {
	switch o := op.(type) {
	case InsertOp:
		return o.Content == ""
	case DeleteOp:
		return o.Content == ""
	}
	return false
}

// State is a text buffer.
type State struct {
	text []rune
}

var _ ot.State[Operation] = (*State)(nil)

// NewState returns an empty buffer.
func NewState() *State { return &State{} }

// NewStateFrom seeds a buffer, mostly for tests and fixtures.
func NewStateFrom(text string) *State { return &State{text: []rune(text)} }

func (s *State) Init() { s.text = nil }

func (s *State) Apply(op Operation) error {
	switch o := op.(type) {
	case InsertOp:
		if o.Content == "" {
			return nil
		}
		if o.Pos < 0 || o.Pos > len(s.text) {
			return fmt.Errorf("%w: insert at %d outside text of length %d", ot.ErrApply, o.Pos, len(s.text))
		}
		ins := []rune(o.Content)
		out := make([]rune, 0, len(s.text)+len(ins))
		out = append(out, s.text[:o.Pos]...)
		out = append(out, ins...)
		s.text = append(out, s.text[o.Pos:]...)
	case DeleteOp:
		if o.Content == "" {
			return nil
		}
		if o.Pos < 0 || o.end() > len(s.text) {
			return fmt.Errorf("%w: delete [%d,%d) outside text of length %d", ot.ErrApply, o.Pos, o.end(), len(s.text))
		}
		if string(s.text[o.Pos:o.end()]) != o.Content {
			return fmt.Errorf("%w: delete at %d does not match text", ot.ErrApply, o.Pos)
		}
		s.text = append(s.text[:o.Pos:o.Pos], s.text[o.end():]...)
	default:
		return fmt.Errorf("%w: unknown operation %T", ot.ErrApply, op)
	}
	return nil
}

func (s *State) Text() string { return string(s.text) }

// Len is the length in runes.
func (s *State) Len() int { return len(s.text) }

func (s *State) Clone() *State {
	return &State{text: append([]rune(nil), s.text...)}
}

func (s *State) Equal(other *State) bool {
	return string(s.text) == string(other.text)
}
