package chatroom

import (
	"cmp"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/zeusync/otsync/internal/core/ot"
)

// State is the folded chat room.
type State struct {
	messages mapset.Set[string]
	call     *CallInfo
	handled  map[string]bool
}

var _ ot.State[Operation] = (*State)(nil)

// NewState returns an empty room.
func NewState() *State {
	s := &State{}
	s.Init()
	return s
}

func (s *State) Init() {
	s.messages = mapset.NewSet[string]()
	s.call = nil
	s.handled = map[string]bool{}
}

func (s *State) Apply(op Operation) error {
	switch o := op.(type) {
	case MessageOp:
		if o.Message == (Message{}) {
			return nil
		}
		if o.Remove {
			s.messages.Remove(encodeMessage(o.Message))
		} else {
			s.messages.Add(encodeMessage(o.Message))
		}

	case CallOp:
		if !callEqual(s.call, o.Prev) {
			return fmt.Errorf("%w: call %v is not active", ot.ErrApply, o.Prev)
		}
		switch {
		case o.Prev == nil && o.Next != nil:
			s.messages.Add(encodeMessage(o.Next.startMessage()))
		case o.Prev != nil && o.Next == nil:
			s.messages.Remove(encodeMessage(o.Prev.startMessage()))
		}
		s.call = copyCall(o.Next)

	case DropCallOp:
		if o.Invert {
			if s.call != nil {
				return fmt.Errorf("%w: cannot restore call while another is active", ot.ErrApply)
			}
			s.call = copyCall(&o.Call)
			s.handled = cloneHandled(o.Handled)
			s.messages.Remove(encodeMessage(o.dropMessage()))
			return nil
		}
		if !callEqual(s.call, &o.Call) {
			return fmt.Errorf("%w: dropped call is not active", ot.ErrApply)
		}
		s.call = nil
		s.handled = map[string]bool{}
		s.messages.Add(encodeMessage(o.dropMessage()))

	case HandleCallOp:
		if !boolEqual(lookup(s.handled, o.PublicKey), o.Prev) {
			return fmt.Errorf("%w: answer of %s changed", ot.ErrApply, o.PublicKey)
		}
		store(s.handled, o.PublicKey, o.Next)

	default:
		return fmt.Errorf("%w: unknown operation %T", ot.ErrApply, op)
	}
	return nil
}

// Call returns the active call, if any.
func (s *State) Call() (CallInfo, bool) {
	if s.call == nil {
		return CallInfo{}, false
	}
	return *s.call, true
}

// Answer returns a participant's answer to the active call.
func (s *State) Answer(publicKey string) *bool {
	return lookup(s.handled, publicKey)
}

// Handled returns a copy of the answers to the active call.
func (s *State) Handled() map[string]bool { return maps.Clone(s.handled) }

// HasMessage reports whether the exact record is present.
func (s *State) HasMessage(m Message) bool {
	return s.messages.Contains(encodeMessage(m))
}

// Messages returns the decoded records ordered by timestamp.
func (s *State) Messages() []Message {
	out := make([]Message, 0, s.messages.Cardinality())
	for _, raw := range s.messages.ToSlice() {
		var m Message
		if err := json.Unmarshal([]byte(raw), &m); err == nil {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b Message) int {
		if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Type, b.Type); c != 0 {
			return c
		}
		return cmp.Compare(a.AuthorPublicKey, b.AuthorPublicKey)
	})
	return out
}

func (s *State) Clone() *State {
	return &State{
		messages: s.messages.Clone(),
		call:     copyCall(s.call),
		handled:  cloneHandled(s.handled),
	}
}

func (s *State) Equal(other *State) bool {
	return s.messages.Equal(other.messages) &&
		callEqual(s.call, other.call) &&
		maps.Equal(s.handled, other.handled)
}

func encodeMessage(m Message) string {
	raw, _ := json.Marshal(m)
	return string(raw)
}

func copyCall(c *CallInfo) *CallInfo {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
