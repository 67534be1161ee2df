// Package profile is the OT domain for a user's public profile: free-form
// named fields with string values.
package profile

import (
	"fmt"
	"strings"

	"github.com/zeusync/otsync/internal/core/ot"
	"github.com/zeusync/otsync/internal/core/ot/mapot"
)

// TagProfile is the wire tag of profile field edits.
const TagProfile = "profile.set"

// Well-known fields.
const (
	FieldName   = "name"
	FieldAvatar = "avatar"
	FieldBio    = "bio"
)

type Operation = mapot.Operation[string]

type State = mapot.State[string]

func NewState() *State { return mapot.NewState[string]() }

// NewSystem returns the profile OT system. Concurrent edits of one field
// keep the lexicographically greater value.
func NewSystem() *ot.System[Operation] {
	return ot.NewSystem[Operation](mapot.NewRules[string](mapot.OrderedCompare[string]))
}

// Codec maps profile operations to wire envelopes.
type Codec struct{}

var _ ot.Codec[Operation] = Codec{}

func (Codec) Encode(op Operation) (ot.Envelope, error) {
	return ot.Wrap(TagProfile, op)
}

func (Codec) Decode(env ot.Envelope) (Operation, error) {
	if env.Type != TagProfile {
		return nil, ot.UnknownType(env.Type)
	}
	op, err := ot.Unwrap[Operation](env)
	if err != nil {
		return nil, err
	}
	for field := range op {
		if strings.TrimSpace(field) == "" {
			return nil, fmt.Errorf("%w: profile field without name", ot.ErrSerialization)
		}
	}
	return op, nil
}
