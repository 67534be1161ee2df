// Package roster implements OT for collections of named entries keyed by id
// where an entry is created or dropped as a whole. Rooms and the document
// list are rosters.
package roster

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/zeusync/otsync/internal/core/ot"
)

// Entry is one roster item.
type Entry struct {
	Name         string   `json:"name"`
	Participants []string `json:"participants"`
}

// Equal compares entries field by field. Participants must already be sorted.
func (e Entry) Equal(other Entry) bool {
	return e.Name == other.Name && slices.Equal(e.Participants, other.Participants)
}

// Clone returns a deep copy with sorted participants.
func (e Entry) Clone() Entry {
	p := slices.Clone(e.Participants)
	slices.Sort(p)
	return Entry{Name: e.Name, Participants: p}
}

// compareEntries orders creates of the same id. More participants wins,
// ties fall back to the name then the participant list.
func compareEntries(a, b Entry) int {
	if c := cmp.Compare(len(a.Participants), len(b.Participants)); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return slices.Compare(a.Participants, b.Participants)
}

// Op creates (Remove=false) or drops (Remove=true) the entry with ID.
// The zero Op is the empty operation.
type Op struct {
	ID     string `json:"id"`
	Entry  Entry  `json:"entry"`
	Remove bool   `json:"remove"`
}

// Create adds entry under id.
func Create(id string, entry Entry) Op { return Op{ID: id, Entry: entry.Clone()} }

// Drop removes the entry under id; entry must be the stored one.
func Drop(id string, entry Entry) Op { return Op{ID: id, Entry: entry.Clone(), Remove: true} }

func (o Op) Equal(other Op) bool {
	return o.ID == other.ID && o.Remove == other.Remove && o.Entry.Equal(other.Entry)
}

func (o Op) String() string {
	verb := "create"
	if o.Remove {
		verb = "drop"
	}
	return fmt.Sprintf("%s %s %q %v", verb, o.ID, o.Entry.Name, o.Entry.Participants)
}

// Rules is the ot.Rules implementation for roster operations.
type Rules struct{}

var _ ot.Rules[Op] = Rules{}

func (Rules) Transform(left, right Op) (ot.TransformResult[Op], error) {
	if left.ID != right.ID {
		return ot.Pass(left, right), nil
	}
	if left.Equal(right) {
		return ot.Empty[Op](), nil
	}

	switch {
	case left.Remove && right.Remove:
		return ot.TransformResult[Op]{}, ot.Conflict(left, right, "entry dropped with different contents")
	case left.Remove != right.Remove:
		return ot.TransformResult[Op]{}, ot.Conflict(left, right, "entry created and dropped concurrently")
	}

	if compareEntries(left.Entry, right.Entry) > 0 {
		return ot.LeftOnly(right.invert(), left), nil
	}
	return ot.RightOnly(left.invert(), right), nil
}

func (Rules) Squash(first, second Op) (Op, bool) {
	if first.ID == second.ID && first.Remove != second.Remove && first.Entry.Equal(second.Entry) {
		return Op{}, true
	}
	return Op{}, false
}

func (Rules) Invert(op Op) Op { return op.invert() }

func (Rules) IsEmpty(op Op) bool { return op.ID == "" }

func (o Op) invert() Op {
	return Op{ID: o.ID, Entry: o.Entry, Remove: !o.Remove}
}

// State maps ids to entries.
type State struct {
	entries map[string]Entry
}

// NewState returns an empty roster.
func NewState() *State { return &State{entries: make(map[string]Entry)} }

func (s *State) Init() { s.entries = make(map[string]Entry) }

func (s *State) Apply(op Op) error {
	if op.ID == "" {
		return nil
	}
	cur, exists := s.entries[op.ID]
	if op.Remove {
		if !exists || !cur.Equal(op.Entry.Clone()) {
			return fmt.Errorf("%w: %s", ot.ErrApply, op)
		}
		delete(s.entries, op.ID)
		return nil
	}
	if exists {
		return fmt.Errorf("%w: %s already exists", ot.ErrApply, op.ID)
	}
	s.entries[op.ID] = op.Entry.Clone()
	return nil
}

// Get returns the entry under id.
func (s *State) Get(id string) (Entry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// IDs returns the sorted entry ids.
func (s *State) IDs() []string {
	return slices.Sorted(maps.Keys(s.entries))
}

func (s *State) Len() int { return len(s.entries) }

func (s *State) Clone() *State {
	out := &State{entries: make(map[string]Entry, len(s.entries))}
	for id, e := range s.entries {
		out.entries[id] = e.Clone()
	}
	return out
}

func (s *State) Equal(other *State) bool {
	return maps.EqualFunc(s.entries, other.entries, Entry.Equal)
}
