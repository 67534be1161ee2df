package profile

import (
	"errors"
	"strings"

	"github.com/zeusync/otsync/internal/core/ot"
)

// ErrInvalidField rejects edits without a field name.
var ErrInvalidField = errors.New("profile: field name is empty")

// Service edits profile fields.
type Service struct {
	doc ot.Editor[Operation, *State]
}

func NewService(doc ot.Editor[Operation, *State]) *Service {
	return &Service{doc: doc}
}

// Set writes a field. Writing the current value is a no-op.
func (s *Service) Set(field, value string) error {
	if strings.TrimSpace(field) == "" {
		return ErrInvalidField
	}
	return s.doc.Add(s.doc.State().SetOp(field, &value))
}

// SetAll writes several fields as one operation.
func (s *Service) SetAll(fields map[string]string) error {
	state := s.doc.State()
	op := Operation{}
	for field, value := range fields {
		if strings.TrimSpace(field) == "" {
			return ErrInvalidField
		}
		for k, e := range state.SetOp(field, &value) {
			op[k] = e
		}
	}
	return s.doc.Add(op)
}

// Clear removes field.
func (s *Service) Clear(field string) error {
	return s.doc.Add(s.doc.State().SetOp(field, nil))
}

// Get returns the value of field.
func (s *Service) Get(field string) (string, bool) {
	return s.doc.State().Get(field)
}
