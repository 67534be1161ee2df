package node

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/zeusync/otsync/internal/core/ot"
	"github.com/zeusync/otsync/internal/core/protocol"
)

// IsTransient reports whether a failed node call may succeed when retried
// unchanged. Transport failures are transient. Serialization errors,
// transform errors, cancellation and server-side rejections are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ot.ErrSerialization) || ot.IsFatal(err) {
		return false
	}

	var protocolErr *protocol.Error
	if errors.As(err, &protocolErr) {
		return protocolErr.IsTemporary()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
