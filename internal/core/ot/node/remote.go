package node

import (
	"context"

	"github.com/zeusync/otsync/internal/core/ot"
	"github.com/zeusync/otsync/internal/core/protocol"
)

// Remote is a Raw node reached through a transport.
type Remote struct {
	rt protocol.RoundTripper
}

var _ Raw = (*Remote)(nil)

// NewRemote sends node calls through rt.
func NewRemote(rt protocol.RoundTripper) *Remote {
	return &Remote{rt: rt}
}

func (r *Remote) Checkout(ctx context.Context, document string) (Snapshot, error) {
	resp, err := r.call(ctx, protocol.NewRequest(protocol.MethodCheckout, document))
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Revision: resp.Revision, Operations: resp.Operations}, nil
}

func (r *Remote) Fetch(ctx context.Context, document string, from ot.Revision) (Snapshot, error) {
	req := protocol.NewRequest(protocol.MethodFetch, document)
	req.Revision = from
	resp, err := r.call(ctx, req)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Revision: resp.Revision, Operations: resp.Operations}, nil
}

func (r *Remote) Push(ctx context.Context, document string, push PushRequest) (PushResult, error) {
	req := protocol.NewRequest(protocol.MethodPush, document)
	req.Revision = push.From
	req.PushID = push.PushID
	req.Operations = push.Operations
	resp, err := r.call(ctx, req)
	if err != nil {
		return PushResult{}, err
	}
	return PushResult{Accepted: resp.Accepted, Revision: resp.Revision, Operations: resp.Operations}, nil
}

// Close closes the underlying transport.
func (r *Remote) Close() error {
	return r.rt.Close()
}

func (r *Remote) call(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	resp, err := r.rt.RoundTrip(ctx, req)
	if err != nil {
		return protocol.Response{}, err
	}
	if resp.ID != req.ID {
		return protocol.Response{}, protocol.NewProtocolError(protocol.ErrorCodeProtocolViolation,
			"response id "+resp.ID+" does not match request "+req.ID, protocol.ErrInvalidMessage)
	}
	if err = resp.Error.Err(); err != nil {
		return protocol.Response{}, err
	}
	if resp.Revision == "" {
		return protocol.Response{}, protocol.NewProtocolError(protocol.ErrorCodeInvalidMessage,
			"response without revision", protocol.ErrInvalidMessage)
	}
	return resp, nil
}
