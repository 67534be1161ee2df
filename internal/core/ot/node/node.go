// Package node is the client's view of a document server. Raw speaks in
// wire envelopes and is what transports and the repository implement; Node
// is the typed handle a state manager works with.
package node

import (
	"context"

	"github.com/zeusync/otsync/internal/core/ot"
)

// Snapshot is a revision plus the operations leading to it from some base.
// For checkout the base is the root commit.
type Snapshot struct {
	Revision   ot.Revision
	Operations []ot.Envelope
}

// PushRequest carries a batch of local operations based on From. PushID
// identifies the batch across retries.
type PushRequest struct {
	From       ot.Revision
	PushID     string
	Operations []ot.Envelope
}

// PushResult reports the outcome of a push. When Accepted is false,
// Operations are the commits since From the batch must be rebased over.
// When Accepted is true, Operations holds commits made on top of the batch,
// which only happens when a retried push had already been committed.
type PushResult struct {
	Accepted   bool
	Revision   ot.Revision
	Operations []ot.Envelope
}

// Raw is a document server speaking envelopes.
type Raw interface {
	Checkout(ctx context.Context, document string) (Snapshot, error)
	Fetch(ctx context.Context, document string, from ot.Revision) (Snapshot, error)
	Push(ctx context.Context, document string, req PushRequest) (PushResult, error)
}

// Result is the typed PushResult.
type Result[O any] struct {
	Accepted   bool
	Revision   ot.Revision
	Operations []O
}

// Node is a typed handle on one document.
type Node[O any] interface {
	Document() string
	Checkout(ctx context.Context) (ot.Revision, []O, error)
	Fetch(ctx context.Context, from ot.Revision) (ot.Revision, []O, error)
	Push(ctx context.Context, from ot.Revision, pushID string, ops []O) (Result[O], error)
}

// Binding adapts a Raw node to one document and operation codec.
type Binding[O any] struct {
	raw      Raw
	document string
	codec    ot.Codec[O]
}

var _ Node[struct{}] = (*Binding[struct{}])(nil)

// Bind returns a typed node for document.
func Bind[O any](raw Raw, document string, codec ot.Codec[O]) *Binding[O] {
	return &Binding[O]{raw: raw, document: document, codec: codec}
}

func (b *Binding[O]) Document() string { return b.document }

func (b *Binding[O]) Checkout(ctx context.Context) (ot.Revision, []O, error) {
	snap, err := b.raw.Checkout(ctx, b.document)
	if err != nil {
		return "", nil, err
	}
	ops, err := ot.DecodeAll(b.codec, snap.Operations)
	if err != nil {
		return "", nil, err
	}
	return snap.Revision, ops, nil
}

func (b *Binding[O]) Fetch(ctx context.Context, from ot.Revision) (ot.Revision, []O, error) {
	snap, err := b.raw.Fetch(ctx, b.document, from)
	if err != nil {
		return "", nil, err
	}
	ops, err := ot.DecodeAll(b.codec, snap.Operations)
	if err != nil {
		return "", nil, err
	}
	return snap.Revision, ops, nil
}

func (b *Binding[O]) Push(ctx context.Context, from ot.Revision, pushID string, ops []O) (Result[O], error) {
	envs, err := ot.EncodeAll(b.codec, ops)
	if err != nil {
		return Result[O]{}, err
	}
	res, err := b.raw.Push(ctx, b.document, PushRequest{From: from, PushID: pushID, Operations: envs})
	if err != nil {
		return Result[O]{}, err
	}
	concurrent, err := ot.DecodeAll(b.codec, res.Operations)
	if err != nil {
		return Result[O]{}, err
	}
	return Result[O]{Accepted: res.Accepted, Revision: res.Revision, Operations: concurrent}, nil
}
