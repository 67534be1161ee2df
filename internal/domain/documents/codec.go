package documents

import (
	"fmt"

	"github.com/zeusync/otsync/internal/core/ot"
)

// Wire tags.
const (
	TagInsert = "documents.insert"
	TagDelete = "documents.delete"
	TagEntry  = "documents.entry"
)

// Codec is the text operation codec.
type Codec struct{}

var _ ot.Codec[Operation] = Codec{}

func (Codec) Encode(op Operation) (ot.Envelope, error) {
	switch o := op.(type) {
	case InsertOp:
		return ot.Wrap(TagInsert, o)
	case DeleteOp:
		return ot.Wrap(TagDelete, o)
	}
	return ot.Envelope{}, fmt.Errorf("%w: unknown text operation %T", ot.ErrSerialization, op)
}

func (Codec) Decode(env ot.Envelope) (Operation, error) {
	switch env.Type {
	case TagInsert:
		op, err := ot.Unwrap[InsertOp](env)
		if err != nil {
			return nil, err
		}
		if op.Pos < 0 {
			return nil, fmt.Errorf("%w: negative insert position", ot.ErrSerialization)
		}
		return op, nil
	case TagDelete:
		op, err := ot.Unwrap[DeleteOp](env)
		if err != nil {
			return nil, err
		}
		if op.Pos < 0 {
			return nil, fmt.Errorf("%w: negative delete position", ot.ErrSerialization)
		}
		return op, nil
	}
	return nil, ot.UnknownType(env.Type)
}

// ListCodec is the document list codec.
type ListCodec struct{}

var _ ot.Codec[ListOp] = ListCodec{}

func (ListCodec) Encode(op ListOp) (ot.Envelope, error) { return ot.Wrap(TagEntry, op) }

func (ListCodec) Decode(env ot.Envelope) (ListOp, error) {
	if env.Type != TagEntry {
		return ListOp{}, ot.UnknownType(env.Type)
	}
	op, err := ot.Unwrap[ListOp](env)
	if err != nil {
		return ListOp{}, err
	}
	if op.ID == "" {
		return ListOp{}, fmt.Errorf("%w: document entry without id", ot.ErrSerialization)
	}
	return op, nil
}
