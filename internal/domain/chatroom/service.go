package chatroom

import (
	"strings"
	"time"

	"github.com/zeusync/otsync/internal/core/ot"
)

// Service turns user actions in a room into operations.
type Service struct {
	doc       ot.Editor[Operation, *State]
	publicKey string
	peerID    string
	now       func() time.Time
}

// NewService binds the local user identified by publicKey and peerID to doc.
func NewService(doc ot.Editor[Operation, *State], publicKey, peerID string) *Service {
	return &Service{doc: doc, publicKey: publicKey, peerID: peerID, now: time.Now}
}

// SendMessage posts a text message authored by the local user.
func (s *Service) SendMessage(content string) (Message, error) {
	if strings.TrimSpace(content) == "" {
		return Message{}, ErrEmptyMessage
	}
	m := Message{
		Timestamp:       s.now().UnixMilli(),
		AuthorPublicKey: s.publicKey,
		Content:         content,
		Type:            TypeText,
	}
	return m, s.doc.Add(AddMessage(m))
}

// DeleteMessage removes m if the room holds it.
func (s *Service) DeleteMessage(m Message) error {
	if !s.doc.State().HasMessage(m) {
		return ErrUnknownMessage
	}
	return s.doc.Add(RemoveMessage(m))
}

// StartCall makes the local user the caller.
func (s *Service) StartCall() (CallInfo, error) {
	if _, active := s.doc.State().Call(); active {
		return CallInfo{}, ErrCallActive
	}
	info := CallInfo{PublicKey: s.publicKey, PeerID: s.peerID, Timestamp: s.now().UnixMilli()}
	return info, s.doc.Add(StartCall(info))
}

// DropCall finishes the active call.
func (s *Service) DropCall() error {
	state := s.doc.State()
	call, active := state.Call()
	if !active {
		return ErrNoActiveCall
	}
	return s.doc.Add(Drop(call, state.Handled(), s.now().UnixMilli()))
}

// Accept joins the active call.
func (s *Service) Accept() error { return s.answer(true) }

// Reject declines the active call.
func (s *Service) Reject() error { return s.answer(false) }

func (s *Service) answer(accept bool) error {
	state := s.doc.State()
	if _, active := state.Call(); !active {
		return ErrNoActiveCall
	}
	prev := state.Answer(s.publicKey)
	if accept {
		return s.doc.Add(Accept(s.publicKey, prev))
	}
	return s.doc.Add(Reject(s.publicKey, prev))
}
