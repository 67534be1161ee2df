// Package repository holds the authoritative commit chain of every document
// the server knows about. Operations are stored as opaque envelopes; the
// server never transforms them, clients rebase on push rejection.
package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/otsync/internal/core/events/bus"
	"github.com/zeusync/otsync/internal/core/observability/log"
	"github.com/zeusync/otsync/internal/core/ot"
	"github.com/zeusync/otsync/internal/core/ot/node"
	"github.com/zeusync/otsync/internal/core/protocol"
)

const (
	// TopicCommits is the bus topic commit events are published on.
	TopicCommits = "repository.commits"
	// EventCommitted is published after a push creates a commit.
	EventCommitted = "commit.created"
)

// CommitEvent is the payload of EventCommitted.
type CommitEvent struct {
	Document   string
	Revision   ot.Revision
	Parent     ot.Revision
	Operations int
}

type commit struct {
	id     ot.Revision
	parent ot.Revision
	pushID string
	ops    []ot.Envelope
}

type chain struct {
	commits []commit
	byID    map[ot.Revision]int
	byPush  map[string]int
}

func newChain() *chain {
	return &chain{byID: make(map[ot.Revision]int), byPush: make(map[string]int)}
}

func (c *chain) head() ot.Revision {
	if len(c.commits) == 0 {
		return ot.RootCommitID
	}
	return c.commits[len(c.commits)-1].id
}

// position returns the index of rev, -1 for the root.
func (c *chain) position(rev ot.Revision) (int, bool) {
	if rev == ot.RootCommitID {
		return -1, true
	}
	pos, ok := c.byID[rev]
	return pos, ok
}

func (c *chain) opsAfter(pos int) []ot.Envelope {
	var out []ot.Envelope
	for _, cm := range c.commits[pos+1:] {
		out = append(out, cm.ops...)
	}
	return out
}

// Repository is an in-memory node.Raw.
type Repository struct {
	mu     sync.RWMutex
	docs   map[string]*chain
	events bus.EventBus
	logger log.Log
}

var _ node.Raw = (*Repository)(nil)

// New creates an empty repository. events may be nil.
func New(events bus.EventBus, logger log.Log) *Repository {
	if logger == nil {
		logger = log.Provide()
	}
	return &Repository{
		docs:   make(map[string]*chain),
		events: events,
		logger: logger.With(log.String("component", "repository")),
	}
}

// Checkout returns every operation of document and its head. Unknown
// documents are empty at the root commit.
func (r *Repository) Checkout(ctx context.Context, document string) (node.Snapshot, error) {
	return r.Fetch(ctx, document, ot.RootCommitID)
}

// Fetch returns the operations committed after from.
func (r *Repository) Fetch(ctx context.Context, document string, from ot.Revision) (node.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return node.Snapshot{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.docs[document]
	if !ok {
		if from != ot.RootCommitID {
			return node.Snapshot{}, unknownRevision(document, from)
		}
		return node.Snapshot{Revision: ot.RootCommitID}, nil
	}
	pos, ok := c.position(from)
	if !ok {
		return node.Snapshot{}, unknownRevision(document, from)
	}
	return node.Snapshot{Revision: c.head(), Operations: c.opsAfter(pos)}, nil
}

// Push appends req as a new commit when req.From is the head. Otherwise it
// rejects the batch with the commits the client is missing. A push id seen
// before is acknowledged again without a new commit.
func (r *Repository) Push(ctx context.Context, document string, req node.PushRequest) (node.PushResult, error) {
	if err := ctx.Err(); err != nil {
		return node.PushResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.docs[document]
	if !ok {
		c = newChain()
	}

	if req.PushID != "" {
		if pos, seen := c.byPush[req.PushID]; seen {
			r.logger.Debug("Duplicate push acknowledged",
				log.Document(document),
				log.String("push_id", req.PushID),
			)
			return node.PushResult{Accepted: true, Revision: c.head(), Operations: c.opsAfter(pos)}, nil
		}
	}

	pos, known := c.position(req.From)
	if !known {
		return node.PushResult{}, unknownRevision(document, req.From)
	}
	if req.From != c.head() {
		return node.PushResult{Accepted: false, Revision: c.head(), Operations: c.opsAfter(pos)}, nil
	}
	if len(req.Operations) == 0 {
		return node.PushResult{Accepted: true, Revision: c.head()}, nil
	}
	if req.PushID == "" {
		return node.PushResult{}, protocol.NewProtocolError(protocol.ErrorCodeInvalidPush, "push without push id", protocol.ErrInvalidPush)
	}

	id := commitID(req.From, req.PushID, req.Operations)
	if _, exists := c.byID[id]; exists || id == ot.RootCommitID {
		return node.PushResult{}, protocol.NewProtocolError(protocol.ErrorCodeInternalError, "commit id collision", protocol.ErrInternalError)
	}

	ops := make([]ot.Envelope, len(req.Operations))
	copy(ops, req.Operations)
	c.commits = append(c.commits, commit{id: id, parent: req.From, pushID: req.PushID, ops: ops})
	c.byID[id] = len(c.commits) - 1
	c.byPush[req.PushID] = len(c.commits) - 1
	r.docs[document] = c

	r.logger.Debug("Commit created",
		log.Document(document),
		log.Revision(id.String()),
		log.Int("operations", len(ops)),
	)
	r.publish(CommitEvent{Document: document, Revision: id, Parent: req.From, Operations: len(ops)})

	return node.PushResult{Accepted: true, Revision: id}, nil
}

// Head returns the head revision and the number of committed operations.
func (r *Repository) Head(document string) (ot.Revision, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.docs[document]
	if !ok {
		return ot.RootCommitID, 0
	}
	n := 0
	for _, cm := range c.commits {
		n += len(cm.ops)
	}
	return c.head(), n
}

// Documents lists the documents with at least one commit.
func (r *Repository) Documents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.docs))
	for id := range r.docs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Repository) publish(ev CommitEvent) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(TopicCommits, bus.NewEvent(EventCommitted, "repository", ev)); err != nil {
		r.logger.Warn("Commit event delivery failed", log.Document(ev.Document), log.Error(err))
	}
}

// commitID hashes the parent, push id and operations of a commit.
func commitID(parent ot.Revision, pushID string, ops []ot.Envelope) ot.Revision {
	h := xxhash.New()
	_, _ = h.WriteString(parent.String())
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(pushID)
	for _, op := range ops {
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(op.Type)
		_, _ = h.Write([]byte{0})
		_, _ = h.Write(op.Value)
	}
	return ot.RevisionFromHash(h.Sum64())
}

func unknownRevision(document string, rev ot.Revision) error {
	return protocol.NewProtocolError(protocol.ErrorCodeUnknownRevision,
		"document "+document+" has no revision "+rev.String(), protocol.ErrUnknownRevision)
}
