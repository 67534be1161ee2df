package chatroom

import (
	"fmt"

	"github.com/zeusync/otsync/internal/core/ot"
)

// Wire tags.
const (
	TagMessage    = "chat.message"
	TagCall       = "chat.call"
	TagDropCall   = "chat.drop_call"
	TagHandleCall = "chat.handle_call"
)

// Codec is the chat room wire codec.
type Codec struct{}

var _ ot.Codec[Operation] = Codec{}

func (Codec) Encode(op Operation) (ot.Envelope, error) {
	switch o := op.(type) {
	case MessageOp:
		return ot.Wrap(TagMessage, o)
	case CallOp:
		return ot.Wrap(TagCall, o)
	case DropCallOp:
		return ot.Wrap(TagDropCall, o)
	case HandleCallOp:
		return ot.Wrap(TagHandleCall, o)
	}
	return ot.Envelope{}, fmt.Errorf("%w: unknown chat operation %T", ot.ErrSerialization, op)
}

func (Codec) Decode(env ot.Envelope) (Operation, error) {
	switch env.Type {
	case TagMessage:
		return decode[MessageOp](env)
	case TagCall:
		return decode[CallOp](env)
	case TagDropCall:
		op, err := ot.Unwrap[DropCallOp](env)
		if err != nil {
			return nil, err
		}
		op.Handled = cloneHandled(op.Handled)
		return op, nil
	case TagHandleCall:
		op, err := ot.Unwrap[HandleCallOp](env)
		if err != nil {
			return nil, err
		}
		if op.PublicKey == "" {
			return nil, fmt.Errorf("%w: %s without public key", ot.ErrSerialization, env.Type)
		}
		return op, nil
	}
	return nil, ot.UnknownType(env.Type)
}

func decode[T Operation](env ot.Envelope) (Operation, error) {
	op, err := ot.Unwrap[T](env)
	if err != nil {
		return nil, err
	}
	return op, nil
}
