// Package chatroom is the OT domain for a chat room: a set of message
// records plus the state of the room's single active call.
package chatroom

import (
	"maps"
)

// Message record types.
const (
	TypeText = "text"
	TypeCall = "call"
	TypeDrop = "drop"
)

// Message is one record in the room. Records are stored in serialized form,
// so two messages are the same message only if every field matches.
type Message struct {
	Timestamp       int64  `json:"timestamp"`
	AuthorPublicKey string `json:"authorPublicKey"`
	AuthorPeerID    string `json:"authorPeerId,omitempty"`
	Content         string `json:"content,omitempty"`
	Type            string `json:"type"`
}

// CallInfo identifies a call by its caller and start time.
type CallInfo struct {
	PublicKey string `json:"publicKey"`
	PeerID    string `json:"peerId"`
	Timestamp int64  `json:"timestamp"`
}

func (c CallInfo) startMessage() Message {
	return Message{
		Timestamp:       c.Timestamp,
		AuthorPublicKey: c.PublicKey,
		AuthorPeerID:    c.PeerID,
		Type:            TypeCall,
	}
}

// Operation is the closed set of chat room operations.
type Operation interface {
	isOperation()
}

// MessageOp adds or removes a message. The zero value is the empty operation.
type MessageOp struct {
	Message Message `json:"message"`
	Remove  bool    `json:"remove"`
}

// CallOp replaces the active call. A nil side means no call; starting a call
// from nothing posts its start message and ending it retracts that message.
type CallOp struct {
	Prev *CallInfo `json:"prev"`
	Next *CallInfo `json:"next"`
}

// DropCallOp finishes the active call, posting a drop message. Handled is the
// snapshot of participant answers taken at drop time so the drop can be
// inverted.
type DropCallOp struct {
	Call          CallInfo        `json:"call"`
	Handled       map[string]bool `json:"handled"`
	DropTimestamp int64           `json:"dropTimestamp"`
	Invert        bool            `json:"invert"`
}

// HandleCallOp records a participant's answer: true accepts, false rejects,
// nil withdraws the answer.
type HandleCallOp struct {
	PublicKey string `json:"publicKey"`
	Prev      *bool  `json:"prev"`
	Next      *bool  `json:"next"`
}

func (MessageOp) isOperation()    {}
func (CallOp) isOperation()       {}
func (DropCallOp) isOperation()   {}
func (HandleCallOp) isOperation() {}

// Empty is the chat room's no-op.
var Empty Operation = MessageOp{}

// AddMessage posts m.
func AddMessage(m Message) MessageOp { return MessageOp{Message: m} }

// RemoveMessage deletes m. It matches only an identical record.
func RemoveMessage(m Message) MessageOp { return MessageOp{Message: m, Remove: true} }

// StartCall starts a call when none is active.
func StartCall(info CallInfo) CallOp { return CallOp{Next: &info} }

// Drop builds the drop of call with the given answers snapshot.
func Drop(call CallInfo, handled map[string]bool, at int64) DropCallOp {
	return DropCallOp{Call: call, Handled: cloneHandled(handled), DropTimestamp: at}
}

// Accept records that publicKey joined the active call. prev is the
// participant's current answer.
func Accept(publicKey string, prev *bool) HandleCallOp {
	return HandleCallOp{PublicKey: publicKey, Prev: prev, Next: boolPtr(true)}
}

// Reject records that publicKey declined the active call.
func Reject(publicKey string, prev *bool) HandleCallOp {
	return HandleCallOp{PublicKey: publicKey, Prev: prev, Next: boolPtr(false)}
}

func (d DropCallOp) dropMessage() Message {
	return Message{
		Timestamp:       d.DropTimestamp,
		AuthorPublicKey: d.Call.PublicKey,
		Type:            TypeDrop,
	}
}

func (d DropCallOp) clone() DropCallOp {
	d.Handled = cloneHandled(d.Handled)
	return d
}

func (d DropCallOp) inverted() DropCallOp {
	d = d.clone()
	d.Invert = !d.Invert
	return d
}

func callEqual(a, b *CallInfo) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func boolEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func boolPtr(v bool) *bool { return &v }

func cloneHandled(m map[string]bool) map[string]bool {
	out := maps.Clone(m)
	if out == nil {
		out = map[string]bool{}
	}
	return out
}

func opsEqual(a, b Operation) bool {
	switch x := a.(type) {
	case MessageOp:
		y, ok := b.(MessageOp)
		return ok && x == y
	case CallOp:
		y, ok := b.(CallOp)
		return ok && callEqual(x.Prev, y.Prev) && callEqual(x.Next, y.Next)
	case DropCallOp:
		y, ok := b.(DropCallOp)
		return ok && x.Call == y.Call && x.DropTimestamp == y.DropTimestamp &&
			x.Invert == y.Invert && maps.Equal(x.Handled, y.Handled)
	case HandleCallOp:
		y, ok := b.(HandleCallOp)
		return ok && x.PublicKey == y.PublicKey && boolEqual(x.Prev, y.Prev) && boolEqual(x.Next, y.Next)
	}
	return false
}
