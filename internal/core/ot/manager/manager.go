// Package manager reconciles a client's optimistic local edits with the
// server's history for one document.
//
// The visible state is always the server state at Revision with the pending
// log applied on top. Add extends the log, Sync pushes it and rebases it over
// concurrent commits, Reset drops it.
package manager

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/zeusync/otsync/internal/core/events/bus"
	"github.com/zeusync/otsync/internal/core/observability/log"
	"github.com/zeusync/otsync/internal/core/ot"
	"github.com/zeusync/otsync/internal/core/ot/node"
	"github.com/zeusync/otsync/internal/core/store"
)

// Status is the lifecycle position of a Manager.
type Status int32

const (
	StatusUninitialized Status = iota
	StatusCheckedOut
	StatusIdle
	StatusSyncing
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusCheckedOut:
		return "checked-out"
	case StatusIdle:
		return "idle"
	case StatusSyncing:
		return "syncing"
	case StatusStopped:
		return "stopped"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Snapshot is a document state the manager can fold operations into and
// hand out copies of.
type Snapshot[O any, S any] interface {
	ot.State[O]
	Clone() S
}

// Manager is the state manager of one document.
type Manager[O any, S Snapshot[O, S]] struct {
	system   *ot.System[O]
	node     node.Node[O]
	newState func() S
	opts     options
	logger   log.Log

	mu       sync.Mutex
	status   Status
	revision ot.Revision
	state    S
	pending  []O
	// inflight is the length of the pending prefix sent under pushID. It is
	// resent unchanged until the server answers.
	inflight int
	pushID   string
	invalid  error

	flight  singleflight.Group
	changes *store.Store[S]
	// notifyMu spans snapshot and delivery so subscribers see states in order.
	notifyMu sync.Mutex
	kick     chan struct{}
}

// New creates a manager for the document behind n. newState must return a
// fresh, uninitialized state.
func New[O any, S Snapshot[O, S]](system *ot.System[O], n node.Node[O], newState func() S, opts ...Option) *Manager[O, S] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.Provide()
	}

	initial := newState()
	initial.Init()

	return &Manager[O, S]{
		system:   system,
		node:     n,
		newState: newState,
		opts:     o,
		logger:   o.logger.With(log.String("component", "ot_manager"), log.Document(n.Document())),
		state:    initial,
		changes:  store.New[S]("document:"+n.Document(), initial.Clone(), o.events),
		kick:     make(chan struct{}, 1),
	}
}

// Checkout loads the server state of the document. Transport failures are
// returned as is; the caller retries them.
func (m *Manager[O, S]) Checkout(ctx context.Context) error {
	if err := m.usable(true); err != nil {
		return err
	}

	rev, ops, err := m.node.Checkout(ctx)
	if err != nil {
		m.logFailure("Checkout failed", err)
		return err
	}

	state := m.newState()
	state.Init()
	if err = ot.Apply(state, ops...); err != nil {
		return fmt.Errorf("manager: checkout at %s: %w", rev, err)
	}

	m.mu.Lock()
	if m.status != StatusUninitialized {
		m.mu.Unlock()
		return ErrCheckedOut
	}
	m.revision = rev
	m.state = state
	m.status = StatusCheckedOut
	m.mu.Unlock()

	m.logger.Info("Document checked out", log.Revision(rev.String()), log.Int("operations", len(ops)))
	m.notify()
	return nil
}

// CheckoutRoot starts a brand-new document locally at the root commit
// without asking the server.
func (m *Manager[O, S]) CheckoutRoot() error {
	if err := m.usable(true); err != nil {
		return err
	}

	state := m.newState()
	state.Init()

	m.mu.Lock()
	if m.status != StatusUninitialized {
		m.mu.Unlock()
		return ErrCheckedOut
	}
	m.revision = ot.RootCommitID
	m.state = state
	m.status = StatusCheckedOut
	m.mu.Unlock()

	m.logger.Info("Document created locally", log.Revision(ot.RootCommitID.String()))
	m.notify()
	return nil
}

// Add applies ops to the visible state and appends them to the pending log.
// Empty operations are skipped. If any op does not apply, nothing changes.
func (m *Manager[O, S]) Add(ops ...O) error {
	m.mu.Lock()
	if err := m.usableLocked(false); err != nil {
		m.mu.Unlock()
		return err
	}

	next := m.state.Clone()
	accepted := make([]O, 0, len(ops))
	for _, op := range ops {
		if m.system.IsEmpty(op) {
			continue
		}
		if err := next.Apply(op); err != nil {
			m.mu.Unlock()
			return err
		}
		accepted = append(accepted, op)
	}
	if len(accepted) == 0 {
		m.mu.Unlock()
		return nil
	}
	m.state = next
	m.pending = append(m.pending, accepted...)
	m.mu.Unlock()

	select {
	case m.kick <- struct{}{}:
	default:
	}
	m.notify()
	return nil
}

// Sync pushes the pending log and folds in concurrent commits until the
// server accepts it. With nothing pending it only fetches. Concurrent calls
// share one round of requests.
func (m *Manager[O, S]) Sync(ctx context.Context) error {
	_, err, _ := m.flight.Do("sync", func() (any, error) {
		return nil, m.sync(ctx)
	})
	return err
}

func (m *Manager[O, S]) sync(ctx context.Context) error {
	for round := 1; ; round++ {
		m.mu.Lock()
		if err := m.usableLocked(false); err != nil {
			m.mu.Unlock()
			return err
		}
		if m.pushID == "" {
			m.pending = m.system.Squash(m.pending)
			m.inflight = len(m.pending)
			if m.inflight > 0 {
				m.pushID = uuid.NewString()
			}
		}
		from, pushID := m.revision, m.pushID
		batch := slices.Clone(m.pending[:m.inflight])
		m.status = StatusSyncing
		m.mu.Unlock()

		m.logger.Debug("Sync round",
			log.Revision(from.String()),
			log.Int("round", round),
			log.Int("operations", len(batch)),
		)

		var (
			res node.Result[O]
			err error
		)
		if len(batch) == 0 {
			res.Accepted = true
			res.Revision, res.Operations, err = m.node.Fetch(ctx, from)
		} else {
			res, err = m.node.Push(ctx, from, pushID, batch)
		}
		if err != nil {
			m.settle()
			m.logFailure("Sync failed", err)
			return err
		}

		done, err := m.merge(res)
		m.notify()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// merge folds a server answer into the local state. It reports whether the
// pending log is empty; operations added while the push was in flight keep
// the sync going.
func (m *Manager[O, S]) merge(res node.Result[O]) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if res.Accepted {
		m.pending = slices.Clone(m.pending[m.inflight:])
	}
	m.inflight = 0
	m.pushID = ""

	if len(res.Operations) > 0 {
		if err := m.rebase(res.Operations); err != nil {
			return false, err
		}
	}
	m.revision = res.Revision
	if m.status == StatusSyncing {
		m.status = StatusIdle
	}

	if !res.Accepted {
		m.logger.Debug("Push rejected, rebased",
			log.Revision(res.Revision.String()),
			log.Int("concurrent", len(res.Operations)),
			log.Int("pending", len(m.pending)),
		)
	} else {
		m.logger.Debug("Sync complete", log.Revision(res.Revision.String()), log.Int("pending", len(m.pending)))
	}
	return len(m.pending) == 0, nil
}

// rebase transforms the pending log over server operations based on the
// same revision and applies their rebased form to the visible state.
func (m *Manager[O, S]) rebase(server []O) error {
	server = m.system.Squash(server)
	res, err := m.system.Transform(m.pending, server)
	if err != nil {
		return m.invalidate(err)
	}
	next := m.state.Clone()
	if err = ot.Apply(next, res.Right...); err != nil {
		return m.invalidate(err)
	}
	m.state = next
	m.pending = res.Left
	return nil
}

// Reset drops every pending operation and restores the server state.
func (m *Manager[O, S]) Reset() error {
	m.mu.Lock()
	if err := m.usableLocked(false); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.status == StatusSyncing {
		m.mu.Unlock()
		return ErrSyncInProgress
	}
	next := m.state.Clone()
	if err := ot.Apply(next, m.system.Invert(m.pending)...); err != nil {
		err = m.invalidate(err)
		m.mu.Unlock()
		return err
	}
	dropped := len(m.pending)
	m.state = next
	m.pending = nil
	m.inflight = 0
	m.pushID = ""
	m.mu.Unlock()

	m.logger.Info("Pending operations dropped", log.Int("operations", dropped))
	m.notify()
	return nil
}

// State returns a copy of the visible state.
func (m *Manager[O, S]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Revision is the server revision the pending log is based on.
func (m *Manager[O, S]) Revision() ot.Revision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revision
}

// Status returns the current sync status.
func (m *Manager[O, S]) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Pending returns the number of operations not yet acknowledged.
func (m *Manager[O, S]) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Err returns the fatal error that invalidated the manager, if any.
func (m *Manager[O, S]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invalid
}

// Subscribe calls fn with a copy of the state after every change, in
// change order. fn runs on the editing goroutine and must not edit the
// document itself.
func (m *Manager[O, S]) Subscribe(fn func(S)) (bus.Subscription, error) {
	return m.changes.Subscribe(fn)
}

// Unsubscribe stops deliveries to sub.
func (m *Manager[O, S]) Unsubscribe(sub bus.Subscription) error {
	return m.changes.Unsubscribe(sub)
}

// Run checks the document out if needed and keeps it in sync until ctx is
// done. Transient failures are retried after the fixed retry delay; any
// other error stops the loop and is returned.
func (m *Manager[O, S]) Run(ctx context.Context) error {
	m.logger.Info("Sync loop started",
		log.Duration("sync_interval", m.opts.syncInterval),
		log.Duration("retry_delay", m.opts.retryDelay),
	)
	defer m.logger.Info("Sync loop stopped")

	for m.Status() == StatusUninitialized {
		err := m.Checkout(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		if !node.IsTransient(err) {
			return err
		}
		if !m.wait(ctx, m.opts.retryDelay, false) {
			return nil
		}
	}

	for {
		delay := m.opts.syncInterval
		if err := m.Sync(ctx); err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrStopped) {
				return nil
			}
			if !node.IsTransient(err) {
				return err
			}
			delay = m.opts.retryDelay
		}
		if !m.wait(ctx, delay, delay == m.opts.syncInterval) {
			return nil
		}
	}
}

// wait sleeps for d, or less when woken by Add and wake is set. It reports
// false when ctx is done.
func (m *Manager[O, S]) wait(ctx context.Context, d time.Duration, wake bool) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	var kick <-chan struct{}
	if wake {
		kick = m.kick
	}
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-kick:
		return true
	}
}

// Close stops the manager. Later calls fail with ErrStopped.
func (m *Manager[O, S]) Close() error {
	m.mu.Lock()
	if m.status == StatusStopped {
		m.mu.Unlock()
		return nil
	}
	m.status = StatusStopped
	m.mu.Unlock()
	return m.changes.Close()
}

func (m *Manager[O, S]) usable(checkout bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usableLocked(checkout)
}

func (m *Manager[O, S]) usableLocked(checkout bool) error {
	switch {
	case m.invalid != nil:
		return fmt.Errorf("%w: %w", ErrInvalidated, m.invalid)
	case m.status == StatusStopped:
		return ErrStopped
	case checkout && m.status != StatusUninitialized:
		return ErrCheckedOut
	case !checkout && m.status == StatusUninitialized:
		return ErrNotCheckedOut
	}
	return nil
}

// invalidate records a fatal error. Callers hold mu.
func (m *Manager[O, S]) invalidate(err error) error {
	m.invalid = err
	m.status = StatusStopped
	m.logger.Error("Document state invalidated", log.Error(err))
	return err
}

// settle leaves the syncing status after a failed round.
func (m *Manager[O, S]) settle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusSyncing {
		m.status = StatusIdle
	}
}

func (m *Manager[O, S]) notify() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	state := m.State()
	if err := m.changes.Set(state); err != nil {
		m.logger.Debug("State change delivery failed", log.Error(err))
	}
}

func (m *Manager[O, S]) logFailure(msg string, err error) {
	if node.IsTransient(err) {
		m.logger.Warn(msg+", retrying", log.Error(err))
		return
	}
	m.logger.Error(msg, log.Error(err))
}
