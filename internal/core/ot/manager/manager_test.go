package manager

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/otsync/internal/core/observability/log"
	"github.com/zeusync/otsync/internal/core/ot"
	"github.com/zeusync/otsync/internal/core/ot/mapot"
	"github.com/zeusync/otsync/internal/core/ot/node"
	"github.com/zeusync/otsync/internal/core/protocol"
	"github.com/zeusync/otsync/internal/core/repository"
	"github.com/zeusync/otsync/internal/domain/profile"
)

type profileManager = Manager[profile.Operation, *profile.State]

var _ ot.Editor[profile.Operation, *profile.State] = (*profileManager)(nil)

func newManager(n node.Node[profile.Operation], opts ...Option) *profileManager {
	opts = append([]Option{WithLogger(log.Nop())}, opts...)
	return New[profile.Operation, *profile.State](profile.NewSystem(), n, profile.NewState, opts...)
}

func bind(repo *repository.Repository) *node.Binding[profile.Operation] {
	return node.Bind[profile.Operation](repo, "profile:alice", profile.Codec{})
}

func set(field string, prev *string, next string) profile.Operation {
	return mapot.Set(field, prev, &next)
}

// flaky fails the first failPushes pushes with a transport error.
type flaky struct {
	node.Node[profile.Operation]
	failPushes atomic.Int32
	pushes     atomic.Int32
}

func (f *flaky) Push(ctx context.Context, from ot.Revision, pushID string, ops []profile.Operation) (node.Result[profile.Operation], error) {
	f.pushes.Add(1)
	if f.failPushes.Add(-1) >= 0 {
		return node.Result[profile.Operation]{}, protocol.WrapError(protocol.ErrConnectionLost, "push")
	}
	return f.Node.Push(ctx, from, pushID, ops)
}

func TestAddBeforeCheckout(t *testing.T) {
	m := newManager(bind(repository.New(nil, log.Nop())))
	assert.Equal(t, StatusUninitialized, m.Status())
	assert.ErrorIs(t, m.Add(set(profile.FieldName, nil, "a")), ErrNotCheckedOut)
	assert.ErrorIs(t, m.Sync(context.Background()), ErrNotCheckedOut)
}

func TestCheckoutLoadsServerState(t *testing.T) {
	ctx := context.Background()
	repo := repository.New(nil, log.Nop())

	writer := newManager(bind(repo))
	require.NoError(t, writer.CheckoutRoot())
	require.NoError(t, writer.Add(set(profile.FieldName, nil, "Alice"), set(profile.FieldBio, nil, "hi")))
	require.NoError(t, writer.Sync(ctx))

	reader := newManager(bind(repo))
	require.NoError(t, reader.Checkout(ctx))
	assert.Equal(t, StatusCheckedOut, reader.Status())
	assert.Equal(t, writer.Revision(), reader.Revision())
	assert.True(t, writer.State().Equal(reader.State()))
	assert.ErrorIs(t, reader.Checkout(ctx), ErrCheckedOut)
	assert.ErrorIs(t, reader.CheckoutRoot(), ErrCheckedOut)
}

func TestCheckoutRootThenSync(t *testing.T) {
	ctx := context.Background()
	m := newManager(bind(repository.New(nil, log.Nop())))

	require.NoError(t, m.CheckoutRoot())
	assert.Equal(t, ot.RootCommitID, m.Revision())

	require.NoError(t, m.Add(set(profile.FieldName, nil, "Alice")))
	assert.Equal(t, 1, m.Pending())

	require.NoError(t, m.Sync(ctx))
	assert.NotEqual(t, ot.RootCommitID, m.Revision())
	assert.Zero(t, m.Pending())
	assert.Equal(t, StatusIdle, m.Status())

	name, ok := m.State().Get(profile.FieldName)
	require.True(t, ok)
	assert.Equal(t, "Alice", name)
}

func TestAddIsAtomic(t *testing.T) {
	m := newManager(bind(repository.New(nil, log.Nop())))
	require.NoError(t, m.CheckoutRoot())

	err := m.Add(
		set(profile.FieldName, nil, "Alice"),
		set(profile.FieldBio, mapot.Ptr("stale"), "new"),
	)
	assert.ErrorIs(t, err, ot.ErrApply)
	assert.Zero(t, m.State().Len())
	assert.Zero(t, m.Pending())

	// empty edits are skipped
	require.NoError(t, m.Add(profile.Operation{}, mapot.Set[string](profile.FieldBio, nil, nil)))
	assert.Zero(t, m.Pending())
}

func TestStateIsACopy(t *testing.T) {
	m := newManager(bind(repository.New(nil, log.Nop())))
	require.NoError(t, m.CheckoutRoot())
	require.NoError(t, m.Add(set(profile.FieldName, nil, "Alice")))

	snapshot := m.State()
	require.NoError(t, snapshot.Apply(set(profile.FieldBio, nil, "mutated")))

	_, ok := m.State().Get(profile.FieldBio)
	assert.False(t, ok)
}

func TestTransientFailureLeavesStateUntouched(t *testing.T) {
	repo := repository.New(nil, log.Nop())
	f := &flaky{Node: bind(repo)}
	f.failPushes.Store(1)

	m := newManager(f)
	require.NoError(t, m.CheckoutRoot())
	require.NoError(t, m.Add(set(profile.FieldName, nil, "Alice")))
	before := m.State()

	err := m.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, node.IsTransient(err))
	assert.True(t, before.Equal(m.State()))
	assert.Equal(t, 1, m.Pending())
	assert.Equal(t, ot.RootCommitID, m.Revision())
	assert.Equal(t, StatusIdle, m.Status())

	require.NoError(t, m.Sync(context.Background()))
	assert.Zero(t, m.Pending())
}

func TestRetriedPushIsNotDuplicated(t *testing.T) {
	ctx := context.Background()
	repo := repository.New(nil, log.Nop())
	m := newManager(&lostReply{Node: bind(repo)})
	require.NoError(t, m.CheckoutRoot())
	require.NoError(t, m.Add(set(profile.FieldName, nil, "Alice")))

	// the commit lands but the reply is lost
	require.Error(t, m.Sync(ctx))
	head, count := repo.Head("profile:alice")
	assert.Equal(t, 1, count)

	require.NoError(t, m.Add(set(profile.FieldBio, nil, "hi")))
	require.NoError(t, m.Sync(ctx))

	_, count = repo.Head("profile:alice")
	assert.Equal(t, 2, count)
	assert.NotEqual(t, head, m.Revision())
	assert.Zero(t, m.Pending())

	fresh := newManager(bind(repo))
	require.NoError(t, fresh.Checkout(ctx))
	assert.True(t, fresh.State().Equal(m.State()))
}

// lostReply commits the first push and then reports a transport failure.
type lostReply struct {
	node.Node[profile.Operation]
	once sync.Once
}

func (l *lostReply) Push(ctx context.Context, from ot.Revision, pushID string, ops []profile.Operation) (node.Result[profile.Operation], error) {
	res, err := l.Node.Push(ctx, from, pushID, ops)
	lost := false
	l.once.Do(func() { lost = true })
	if lost {
		return node.Result[profile.Operation]{}, protocol.WrapError(protocol.ErrConnectionLost, "read reply")
	}
	return res, err
}

// A sync fails with a network error, is retried, and the retry is rejected
// with one concurrent operation.
func TestRetryThenRebase(t *testing.T) {
	ctx := context.Background()
	repo := repository.New(nil, log.Nop())

	alice := &flaky{Node: bind(repo)}
	alice.failPushes.Store(1)
	a := newManager(alice)
	b := newManager(bind(repo))
	require.NoError(t, a.Checkout(ctx))
	require.NoError(t, b.Checkout(ctx))

	require.NoError(t, a.Add(set(profile.FieldBio, nil, "from a")))

	require.Error(t, a.Sync(ctx))

	require.NoError(t, b.Add(set(profile.FieldName, nil, "from b")))
	require.NoError(t, b.Sync(ctx))

	require.NoError(t, a.Sync(ctx))
	assert.Equal(t, int32(3), alice.pushes.Load())
	assert.Zero(t, a.Pending())

	fresh := newManager(bind(repo))
	require.NoError(t, fresh.Checkout(ctx))
	assert.Equal(t, fresh.Revision(), a.Revision())
	assert.True(t, fresh.State().Equal(a.State()))

	require.NoError(t, b.Sync(ctx))
	assert.True(t, fresh.State().Equal(b.State()))
}

func TestConcurrentEditsOfOneField(t *testing.T) {
	ctx := context.Background()
	repo := repository.New(nil, log.Nop())
	a := newManager(bind(repo))
	b := newManager(bind(repo))
	require.NoError(t, a.CheckoutRoot())
	require.NoError(t, b.CheckoutRoot())

	require.NoError(t, a.Add(set(profile.FieldName, nil, "Ann")))
	require.NoError(t, b.Add(set(profile.FieldName, nil, "Bob")))
	require.NoError(t, a.Sync(ctx))
	require.NoError(t, b.Sync(ctx))
	require.NoError(t, a.Sync(ctx))

	assert.Equal(t, a.Revision(), b.Revision())
	assert.True(t, a.State().Equal(b.State()))
	name, _ := a.State().Get(profile.FieldName)
	assert.Equal(t, "Bob", name)
}

func TestSyncWithoutPendingFetches(t *testing.T) {
	ctx := context.Background()
	repo := repository.New(nil, log.Nop())
	a := newManager(bind(repo))
	b := newManager(bind(repo))
	require.NoError(t, a.CheckoutRoot())
	require.NoError(t, b.CheckoutRoot())

	require.NoError(t, a.Add(set(profile.FieldAvatar, nil, "cat.png")))
	require.NoError(t, a.Sync(ctx))

	require.NoError(t, b.Sync(ctx))
	assert.Equal(t, a.Revision(), b.Revision())
	assert.True(t, a.State().Equal(b.State()))
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	repo := repository.New(nil, log.Nop())
	m := newManager(bind(repo))
	require.NoError(t, m.CheckoutRoot())
	require.NoError(t, m.Add(set(profile.FieldName, nil, "Alice")))
	require.NoError(t, m.Sync(ctx))
	synced := m.State()

	require.NoError(t, m.Add(set(profile.FieldName, mapot.Ptr("Alice"), "Eve"), set(profile.FieldBio, nil, "x")))
	require.NoError(t, m.Reset())

	assert.Zero(t, m.Pending())
	assert.True(t, synced.Equal(m.State()))
}

// fakeNode answers every push with a fixed concurrent operation.
type fakeNode struct {
	concurrent profile.Operation
}

func (f *fakeNode) Document() string { return "fake" }

func (f *fakeNode) Checkout(context.Context) (ot.Revision, []profile.Operation, error) {
	return ot.RootCommitID, nil, nil
}

func (f *fakeNode) Fetch(context.Context, ot.Revision) (ot.Revision, []profile.Operation, error) {
	return "r1", []profile.Operation{f.concurrent}, nil
}

func (f *fakeNode) Push(context.Context, ot.Revision, string, []profile.Operation) (node.Result[profile.Operation], error) {
	return node.Result[profile.Operation]{Revision: "r1", Operations: []profile.Operation{f.concurrent}}, nil
}

func TestFatalTransformInvalidates(t *testing.T) {
	// the server claims the field held a value the client never saw
	m := newManager(&fakeNode{concurrent: set(profile.FieldName, mapot.Ptr("ghost"), "Zed")})
	require.NoError(t, m.CheckoutRoot())
	require.NoError(t, m.Add(set(profile.FieldName, nil, "Alice")))

	err := m.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, ot.IsFatal(err))
	assert.False(t, node.IsTransient(err))
	assert.Equal(t, StatusStopped, m.Status())
	require.Error(t, m.Err())

	assert.ErrorIs(t, m.Add(set(profile.FieldBio, nil, "x")), ErrInvalidated)
	assert.ErrorIs(t, m.Sync(context.Background()), ErrInvalidated)
	assert.ErrorIs(t, m.Reset(), ErrInvalidated)
	assert.ErrorIs(t, m.Run(context.Background()), ErrInvalidated)
}

func TestSubscribe(t *testing.T) {
	m := newManager(bind(repository.New(nil, log.Nop())))
	require.NoError(t, m.CheckoutRoot())

	var seen []int
	sub, err := m.Subscribe(func(s *profile.State) { seen = append(seen, s.Len()) })
	require.NoError(t, err)

	require.NoError(t, m.Add(set(profile.FieldName, nil, "Alice")))
	require.NoError(t, m.Add(set(profile.FieldBio, nil, "hi")))
	assert.Equal(t, []int{1, 2}, seen)

	require.NoError(t, m.Unsubscribe(sub))
	require.NoError(t, m.Add(set(profile.FieldAvatar, nil, "a.png")))
	assert.Len(t, seen, 2)
}

func TestSubscribersEndOnLatestState(t *testing.T) {
	m := newManager(bind(repository.New(nil, log.Nop())))
	require.NoError(t, m.CheckoutRoot())

	var (
		mu   sync.Mutex
		last *profile.State
	)
	_, err := m.Subscribe(func(s *profile.State) {
		mu.Lock()
		last = s
		mu.Unlock()
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, field := range []string{profile.FieldName, profile.FieldBio, profile.FieldAvatar} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var prev *string
			for i := range 200 {
				next := field + "-" + strconv.Itoa(i)
				assert.NoError(t, m.Add(set(field, prev, next)))
				prev = &next
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, last)
	assert.True(t, m.State().Equal(last), "subscriber saw %v, manager holds %v", last.Values(), m.State().Values())
}

func TestRunRetriesWithFixedDelay(t *testing.T) {
	repo := repository.New(nil, log.Nop())
	f := &flaky{Node: bind(repo)}
	f.failPushes.Store(2)

	m := newManager(f, WithRetryDelay(5*time.Millisecond), WithSyncInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return m.Status() != StatusUninitialized }, time.Second, time.Millisecond)
	require.NoError(t, m.Add(set(profile.FieldName, nil, "Alice")))

	require.Eventually(t, func() bool {
		_, count := repo.Head("profile:alice")
		return count == 1 && m.Pending() == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, f.pushes.Load(), int32(3))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
}

func TestCloseStops(t *testing.T) {
	m := newManager(bind(repository.New(nil, log.Nop())))
	require.NoError(t, m.CheckoutRoot())
	require.NoError(t, m.Close())
	assert.Equal(t, StatusStopped, m.Status())
	assert.ErrorIs(t, m.Add(set(profile.FieldName, nil, "a")), ErrStopped)
	assert.True(t, errors.Is(m.Sync(context.Background()), ErrStopped))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "checked-out", StatusCheckedOut.String())
	assert.Equal(t, "status(9)", Status(9).String())
}
