// Package contacts is the OT domain for a user's contact list, keyed by the
// contact's public key.
package contacts

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/zeusync/otsync/internal/core/ot"
	"github.com/zeusync/otsync/internal/core/ot/mapot"
)

// TagContacts is the wire tag of contact list edits.
const TagContacts = "contacts.set"

// Contact is the value stored under a peer's public key.
type Contact struct {
	Name string `json:"name"`
}

// Operation edits one or more contacts.
type Operation = mapot.Operation[Contact]

// State is the folded contact list.
type State = mapot.State[Contact]

func NewState() *State { return mapot.NewState[Contact]() }

// compareContacts breaks concurrent edits of one contact lexicographically by name.
func compareContacts(a, b *Contact) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return cmp.Compare(a.Name, b.Name)
}

// NewSystem returns the contacts OT system.
func NewSystem() *ot.System[Operation] {
	return ot.NewSystem[Operation](mapot.NewRules[Contact](compareContacts))
}

// Codec maps contact operations to wire envelopes.
type Codec struct{}

var _ ot.Codec[Operation] = Codec{}

func (Codec) Encode(op Operation) (ot.Envelope, error) {
	return ot.Wrap(TagContacts, op)
}

func (Codec) Decode(env ot.Envelope) (Operation, error) {
	if env.Type != TagContacts {
		return nil, ot.UnknownType(env.Type)
	}
	op, err := ot.Unwrap[Operation](env)
	if err != nil {
		return nil, err
	}
	for key := range op {
		if strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%w: contact with empty public key", ot.ErrSerialization)
		}
	}
	return op, nil
}
