package chatroom

import (
	"cmp"
	"maps"
	"slices"

	"github.com/zeusync/otsync/internal/core/ot"
)

// Rules resolves concurrent chat room edits. Only one call may be active:
// a live call beats an ended one, the later of two calls wins, and the
// earlier of two drops of the same call wins. A losing side is caught up
// with record and answer edits, never by replaying the call it lost to, so
// its own follow-ups transform without re-entering the race.
type Rules struct{}

var _ ot.Rules[Operation] = Rules{}

// NewSystem returns the chat room OT system.
func NewSystem() *ot.System[Operation] {
	return ot.NewSystem[Operation](Rules{})
}

func rank(op Operation) int {
	switch op.(type) {
	case MessageOp:
		return 0
	case CallOp:
		return 1
	case DropCallOp:
		return 2
	case HandleCallOp:
		return 3
	}
	return -1
}

func (r Rules) Transform(left, right Operation) (ot.TransformResult[Operation], error) {
	if rank(left) < 0 || rank(right) < 0 {
		return ot.TransformResult[Operation]{}, ot.Unknown(left, right)
	}
	if rank(left) > rank(right) {
		res, err := r.Transform(right, left)
		return res.Flip(), err
	}

	switch l := left.(type) {
	case MessageOp:
		switch rt := right.(type) {
		case MessageOp:
			return transformMessages(l, rt)
		case CallOp:
			if ownsRecord(rt, l.Message) {
				return ot.TransformResult[Operation]{}, ot.Conflict(l, rt, "call record edited concurrently")
			}
		case DropCallOp:
			if l.Message == rt.dropMessage() {
				return ot.TransformResult[Operation]{}, ot.Conflict(l, rt, "drop record edited concurrently")
			}
		}
		return ot.Pass(left, right), nil

	case CallOp:
		switch rt := right.(type) {
		case CallOp:
			return transformCalls(l, rt)
		case DropCallOp:
			return transformCallDrop(l, rt)
		case HandleCallOp:
			if l.Next != nil {
				return ot.Pass(left, right), nil
			}
			return ot.LeftOnly[Operation](r.Invert(rt), l), nil
		}

	case DropCallOp:
		switch rt := right.(type) {
		case DropCallOp:
			return transformDrops(l, rt)
		case HandleCallOp:
			if l.Invert {
				return ot.LeftOnly[Operation](r.Invert(rt), l), nil
			}
			// the drop clears every answer, so it only needs a fresh snapshot
			d := l.clone()
			store(d.Handled, rt.PublicKey, rt.Next)
			return ot.LeftOnly[Operation](d), nil
		}

	case HandleCallOp:
		return transformHandles(l, right.(HandleCallOp))
	}

	return ot.TransformResult[Operation]{}, ot.Unknown(left, right)
}

func transformMessages(l, r MessageOp) (ot.TransformResult[Operation], error) {
	if l.Message != r.Message {
		return ot.Pass[Operation](l, r), nil
	}
	if l.Remove == r.Remove {
		return ot.Empty[Operation](), nil
	}
	return ot.TransformResult[Operation]{}, ot.Conflict(l, r, "message added and removed concurrently")
}

// compareCalls orders candidate calls: any call beats no call, then the
// later start wins, then caller key and peer break ties.
func compareCalls(a, b *CallInfo) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
		return c
	}
	if c := cmp.Compare(a.PublicKey, b.PublicKey); c != 0 {
		return c
	}
	return cmp.Compare(a.PeerID, b.PeerID)
}

func transformCalls(l, r CallOp) (ot.TransformResult[Operation], error) {
	if !callEqual(l.Prev, r.Prev) {
		return ot.TransformResult[Operation]{}, ot.Conflict(l, r, "calls replace different calls")
	}
	if callEqual(l.Next, r.Next) {
		return ot.Empty[Operation](), nil
	}
	if compareCalls(l.Next, r.Next) > 0 {
		return ot.LeftOnly[Operation](r.invert(), l), nil
	}
	return ot.RightOnly[Operation](l.invert(), r), nil
}

func transformCallDrop(c CallOp, d DropCallOp) (ot.TransformResult[Operation], error) {
	if d.Invert {
		// the drop is being undone, so the call it restores must not be replaced
		if c.Prev != nil {
			return ot.TransformResult[Operation]{}, ot.Conflict(c, d, "call replaced while its drop is undone")
		}
		// the new call wins; the restored call is switched over and dropped again in place
		ops := []Operation{
			CallOp{Prev: copyCall(&d.Call), Next: copyCall(c.Next)},
			AddMessage(c.Next.startMessage()),
			AddMessage(d.dropMessage()),
		}
		return ot.LeftOnly(append(ops, d.clearAnswers()...)...), nil
	}
	if !callEqual(c.Prev, &d.Call) {
		return ot.TransformResult[Operation]{}, ot.Conflict(c, d, "call and drop refer to different calls")
	}
	if c.Next != nil {
		return ot.LeftOnly[Operation](d.inverted(), c), nil
	}
	// the drop beats a withdrawal and keeps the call's records
	ops := []Operation{AddMessage(d.Call.startMessage()), AddMessage(d.dropMessage())}
	return ot.RightOnly(append(ops, d.clearAnswers()...)...), nil
}

func transformDrops(l, r DropCallOp) (ot.TransformResult[Operation], error) {
	if opsEqual(l, r) {
		return ot.Empty[Operation](), nil
	}
	if l.Invert || r.Invert || l.Call != r.Call {
		return ot.TransformResult[Operation]{}, ot.Conflict(l, r, "incompatible drops")
	}
	// both sides ended the same call; only the drop record differs
	switch {
	case l.DropTimestamp == r.DropTimestamp:
		return ot.Empty[Operation](), nil
	case l.DropTimestamp < r.DropTimestamp:
		return ot.LeftOnly[Operation](RemoveMessage(r.dropMessage()), AddMessage(l.dropMessage())), nil
	default:
		return ot.RightOnly[Operation](RemoveMessage(l.dropMessage()), AddMessage(r.dropMessage())), nil
	}
}

// answerRank orders concurrent answers of one participant: accept beats
// reject, reject beats no answer.
func answerRank(v *bool) int {
	switch {
	case v == nil:
		return 0
	case !*v:
		return 1
	default:
		return 2
	}
}

func transformHandles(l, r HandleCallOp) (ot.TransformResult[Operation], error) {
	if l.PublicKey != r.PublicKey {
		return ot.Pass[Operation](l, r), nil
	}
	if !boolEqual(l.Prev, r.Prev) {
		return ot.TransformResult[Operation]{}, ot.Conflict(l, r, "answers edit different previous answers")
	}
	if boolEqual(l.Next, r.Next) {
		return ot.Empty[Operation](), nil
	}
	if answerRank(l.Next) > answerRank(r.Next) {
		return ot.LeftOnly[Operation](HandleCallOp{PublicKey: l.PublicKey, Prev: r.Next, Next: l.Next}), nil
	}
	return ot.RightOnly[Operation](HandleCallOp{PublicKey: l.PublicKey, Prev: l.Next, Next: r.Next}), nil
}

func (Rules) Squash(first, second Operation) (Operation, bool) {
	if isInverse(first, second) {
		return Empty, true
	}
	switch a := first.(type) {
	case CallOp:
		b, ok := second.(CallOp)
		if ok && a.Prev != nil && a.Next != nil && b.Next != nil && callEqual(a.Next, b.Prev) {
			return CallOp{Prev: a.Prev, Next: b.Next}, true
		}

	case HandleCallOp:
		switch b := second.(type) {
		case HandleCallOp:
			if a.PublicKey == b.PublicKey && boolEqual(a.Next, b.Prev) {
				return HandleCallOp{PublicKey: a.PublicKey, Prev: a.Prev, Next: b.Next}, true
			}
		case DropCallOp:
			if !b.Invert && boolEqual(lookup(b.Handled, a.PublicKey), a.Next) {
				d := b.clone()
				store(d.Handled, a.PublicKey, a.Prev)
				return d, true
			}
		}

	case DropCallOp:
		if b, ok := second.(HandleCallOp); ok && a.Invert && boolEqual(lookup(a.Handled, b.PublicKey), b.Prev) {
			d := a.clone()
			store(d.Handled, b.PublicKey, b.Next)
			return d, true
		}
	}
	return nil, false
}

func isInverse(a, b Operation) bool {
	return opsEqual(Rules{}.Invert(a), b)
}

func (Rules) Invert(op Operation) Operation {
	switch o := op.(type) {
	case MessageOp:
		return MessageOp{Message: o.Message, Remove: !o.Remove}
	case CallOp:
		return o.invert()
	case DropCallOp:
		return o.inverted()
	case HandleCallOp:
		return HandleCallOp{PublicKey: o.PublicKey, Prev: o.Next, Next: o.Prev}
	}
	return op
}

func (Rules) IsEmpty(op Operation) bool {
	switch o := op.(type) {
	case MessageOp:
		return o.Message == Message{}
	case CallOp:
		return callEqual(o.Prev, o.Next)
	case DropCallOp:
		return false
	case HandleCallOp:
		return boolEqual(o.Prev, o.Next)
	}
	return false
}

func (c CallOp) invert() CallOp { return CallOp{Prev: c.Next, Next: c.Prev} }

// ownsRecord reports whether m is the start record of a call c switches
// between.
func ownsRecord(c CallOp, m Message) bool {
	return (c.Prev != nil && m == c.Prev.startMessage()) ||
		(c.Next != nil && m == c.Next.startMessage())
}

// clearAnswers withdraws every answer in the drop's snapshot, in key order.
func (d DropCallOp) clearAnswers() []Operation {
	ops := make([]Operation, 0, len(d.Handled))
	for _, key := range slices.Sorted(maps.Keys(d.Handled)) {
		ops = append(ops, HandleCallOp{PublicKey: key, Prev: lookup(d.Handled, key)})
	}
	return ops
}

func lookup(m map[string]bool, key string) *bool {
	if v, ok := m[key]; ok {
		return &v
	}
	return nil
}

func store(m map[string]bool, key string, v *bool) {
	if v == nil {
		delete(m, key)
		return
	}
	m[key] = *v
}
