package documents

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/zeusync/otsync/internal/core/ot"
	"github.com/zeusync/otsync/internal/core/ot/roster"
)

var (
	ErrOutOfRange      = errors.New("documents: position out of range")
	ErrUnknownDocument = errors.New("documents: document not found")
)

// TextService edits one document's text on behalf of a client.
type TextService struct {
	doc    ot.Editor[Operation, *State]
	origin string
}

// NewTextService binds a client, identified by origin, to a text document.
func NewTextService(doc ot.Editor[Operation, *State], origin string) *TextService {
	return &TextService{doc: doc, origin: origin}
}

// Insert types text at pos.
func (s *TextService) Insert(pos int, text string) error {
	if pos < 0 || pos > s.doc.State().Len() {
		return ErrOutOfRange
	}
	return s.doc.Add(Insert(pos, text, s.origin))
}

// Delete removes n runes starting at pos.
func (s *TextService) Delete(pos, n int) error {
	state := s.doc.State()
	if pos < 0 || n < 0 || pos+n > state.Len() {
		return ErrOutOfRange
	}
	runes := []rune(state.Text())
	return s.doc.Add(Delete(pos, string(runes[pos:pos+n])))
}

// Replace deletes n runes at pos and inserts text in their place.
func (s *TextService) Replace(pos, n int, text string) error {
	if err := s.Delete(pos, n); err != nil {
		return err
	}
	if utf8.RuneCountInString(text) == 0 {
		return nil
	}
	return s.Insert(pos, text)
}

func (s *TextService) Text() string { return s.doc.State().Text() }

// ListService manages the document list.
type ListService struct {
	doc ot.Editor[ListOp, *ListState]
}

// NewListService binds a client to its document list.
func NewListService(doc ot.Editor[ListOp, *ListState]) *ListService {
	return &ListService{doc: doc}
}

// Create adds a new document shared with participants and returns its id.
func (s *ListService) Create(name string, participants []string) (string, error) {
	id := uuid.NewString()
	return id, s.doc.Add(roster.Create(id, roster.Entry{Name: name, Participants: participants}))
}

// Drop removes the document from the list.
func (s *ListService) Drop(id string) error {
	entry, ok := s.doc.State().Get(id)
	if !ok {
		return ErrUnknownDocument
	}
	return s.doc.Add(roster.Drop(id, entry))
}

func (s *ListService) IDs() []string { return s.doc.State().IDs() }
