package rooms

import (
	"errors"
	"slices"

	"github.com/google/uuid"

	"github.com/zeusync/otsync/internal/core/ot"
	"github.com/zeusync/otsync/internal/core/ot/roster"
)

var (
	ErrRoomExists     = errors.New("rooms: room already exists")
	ErrUnknownRoom    = errors.New("rooms: room not found")
	ErrNoParticipants = errors.New("rooms: room needs at least one other participant")
)

// Service manages the rooms of the local user.
type Service struct {
	doc  ot.Editor[Operation, *State]
	self string
}

// NewService edits the rooms of user self.
func NewService(doc ot.Editor[Operation, *State], self string) *Service {
	return &Service{doc: doc, self: self}
}

// Create opens a group room with the local user and participants.
func (s *Service) Create(name string, participants ...string) (string, error) {
	if len(participants) == 0 {
		return "", ErrNoParticipants
	}
	id := uuid.NewString()
	return id, s.doc.Add(roster.Create(id, Room{Name: name, Participants: s.members(participants)}))
}

// Dialog opens the one-to-one room with peer. Opening an existing dialog
// returns its id without changes.
func (s *Service) Dialog(peer string) (string, error) {
	if peer == "" || peer == s.self {
		return "", ErrNoParticipants
	}
	id := DialogID(s.self, peer)
	if _, ok := s.doc.State().Get(id); ok {
		return id, nil
	}
	return id, s.doc.Add(roster.Create(id, Room{Participants: s.members([]string{peer})}))
}

// Leave drops the room from the roster.
func (s *Service) Leave(id string) error {
	room, ok := s.doc.State().Get(id)
	if !ok {
		return ErrUnknownRoom
	}
	return s.doc.Add(roster.Drop(id, room))
}

// Get returns the room with id.
func (s *Service) Get(id string) (Room, bool) { return s.doc.State().Get(id) }

func (s *Service) IDs() []string { return s.doc.State().IDs() }

func (s *Service) members(participants []string) []string {
	out := append([]string{s.self}, participants...)
	slices.Sort(out)
	return slices.Compact(out)
}
