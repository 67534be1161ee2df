package documents

import (
	"github.com/zeusync/otsync/internal/core/ot"
	"github.com/zeusync/otsync/internal/core/ot/roster"
)

// ListOp creates or drops a document in the user's document list.
type ListOp = roster.Op

// ListState is the folded document list.
type ListState = roster.State

// NewListState returns an empty document list.
func NewListState() *ListState { return roster.NewState() }

// NewListSystem returns the document list OT system. Concurrent creates of
// one document keep the entry shared with more participants.
func NewListSystem() *ot.System[ListOp] {
	return ot.NewSystem[ListOp](roster.Rules{})
}
