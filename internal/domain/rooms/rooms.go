// Package rooms is the OT domain for the roster of chat rooms a user belongs to.
package rooms

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/otsync/internal/core/ot"
	"github.com/zeusync/otsync/internal/core/ot/roster"
)

// TagRoom is the wire tag of room roster edits.
const TagRoom = "rooms.room"

type Operation = roster.Op

type State = roster.State

// Room is a roster entry: a name and the sorted participant keys.
type Room = roster.Entry

func NewState() *State { return roster.NewState() }

// NewSystem returns the rooms OT system.
func NewSystem() *ot.System[Operation] {
	return ot.NewSystem[Operation](roster.Rules{})
}

// DialogID derives the id of the one-to-one room between participants, so
// that both sides creating the dialog concurrently meet on the same id.
func DialogID(participants ...string) string {
	keys := slices.Clone(participants)
	slices.Sort(keys)
	keys = slices.Compact(keys)
	return "dialog-" + strconv.FormatUint(xxhash.Sum64String(strings.Join(keys, "\x00")), 36)
}

// Codec maps room operations to wire envelopes.
type Codec struct{}

var _ ot.Codec[Operation] = Codec{}

func (Codec) Encode(op Operation) (ot.Envelope, error) { return ot.Wrap(TagRoom, op) }

func (Codec) Decode(env ot.Envelope) (Operation, error) {
	if env.Type != TagRoom {
		return Operation{}, ot.UnknownType(env.Type)
	}
	op, err := ot.Unwrap[Operation](env)
	if err != nil {
		return Operation{}, err
	}
	if op.ID == "" {
		return Operation{}, fmt.Errorf("%w: room without id", ot.ErrSerialization)
	}
	return op, nil
}
