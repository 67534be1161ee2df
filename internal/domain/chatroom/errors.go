package chatroom

import "errors"

var (
	ErrNoActiveCall   = errors.New("chatroom: no active call")
	ErrCallActive     = errors.New("chatroom: a call is already active")
	ErrEmptyMessage   = errors.New("chatroom: message is empty")
	ErrUnknownMessage = errors.New("chatroom: message not found")
)
