package node

import (
	"context"

	"github.com/zeusync/otsync/internal/core/observability/log"
	"github.com/zeusync/otsync/internal/core/protocol"
)

// Handler serves protocol requests from a Raw node. Transports on the server
// side hand every decoded request to it.
type Handler struct {
	raw    Raw
	logger log.Log
}

var _ protocol.Handler = (*Handler)(nil)

// NewHandler serves protocol requests from raw.
func NewHandler(raw Raw, logger log.Log) *Handler {
	if logger == nil {
		logger = log.Provide()
	}
	return &Handler{raw: raw, logger: logger.With(log.String("component", "node_handler"))}
}

// Handle validates req and dispatches it by method. Failures are
// returned in the response, never as Go errors.
func (h *Handler) Handle(ctx context.Context, req protocol.Request) protocol.Response {
	if err := req.Validate(); err != nil {
		h.logger.Debug("Rejected invalid request", log.String("method", string(req.Method)), log.Error(err))
		return protocol.Failure(req.ID, err)
	}

	switch req.Method {
	case protocol.MethodCheckout:
		snap, err := h.raw.Checkout(ctx, req.Document)
		if err != nil {
			return h.fail(req, err)
		}
		return protocol.Response{ID: req.ID, Revision: snap.Revision, Accepted: true, Operations: snap.Operations}

	case protocol.MethodFetch:
		snap, err := h.raw.Fetch(ctx, req.Document, req.Revision)
		if err != nil {
			return h.fail(req, err)
		}
		return protocol.Response{ID: req.ID, Revision: snap.Revision, Accepted: true, Operations: snap.Operations}

	default:
		res, err := h.raw.Push(ctx, req.Document, PushRequest{
			From:       req.Revision,
			PushID:     req.PushID,
			Operations: req.Operations,
		})
		if err != nil {
			return h.fail(req, err)
		}
		return protocol.Response{ID: req.ID, Revision: res.Revision, Accepted: res.Accepted, Operations: res.Operations}
	}
}

func (h *Handler) fail(req protocol.Request, err error) protocol.Response {
	h.logger.Warn("Request failed",
		log.String("method", string(req.Method)),
		log.Document(req.Document),
		log.Error(err),
	)
	return protocol.Failure(req.ID, err)
}
