package contacts

import (
	"errors"
	"strings"

	"github.com/zeusync/otsync/internal/core/ot"
)

var (
	ErrInvalidKey     = errors.New("contacts: public key is empty")
	ErrContactExists  = errors.New("contacts: contact already exists")
	ErrUnknownContact = errors.New("contacts: contact not found")
)

// Service edits the address book.
type Service struct {
	doc ot.Editor[Operation, *State]
}

func NewService(doc ot.Editor[Operation, *State]) *Service {
	return &Service{doc: doc}
}

// Add stores a new contact; it fails if publicKey is already known.
func (s *Service) Add(publicKey, name string) error {
	if strings.TrimSpace(publicKey) == "" {
		return ErrInvalidKey
	}
	state := s.doc.State()
	if _, ok := state.Get(publicKey); ok {
		return ErrContactExists
	}
	return s.doc.Add(state.SetOp(publicKey, &Contact{Name: name}))
}

// Rename changes the name of a known contact.
func (s *Service) Rename(publicKey, name string) error {
	state := s.doc.State()
	if _, ok := state.Get(publicKey); !ok {
		return ErrUnknownContact
	}
	return s.doc.Add(state.SetOp(publicKey, &Contact{Name: name}))
}

// Remove deletes a known contact.
func (s *Service) Remove(publicKey string) error {
	state := s.doc.State()
	if _, ok := state.Get(publicKey); !ok {
		return ErrUnknownContact
	}
	return s.doc.Add(state.SetOp(publicKey, nil))
}

// List returns the contacts keyed by public key.
func (s *Service) List() map[string]Contact {
	return s.doc.State().Values()
}
