package sync

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-sync-client/internal/database"
	"game-sync-client/internal/gateway"
	"game-sync-client/internal/push"
	"game-sync-client/internal/queue"
	"game-sync-client/internal/server"
	"game-sync-client/internal/store"
)

type fakeNetwork struct {
	mu        sync.Mutex
	connected bool
	subs      []chan bool
}

func (f *fakeNetwork) IsConnectedNow() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeNetwork) Subscribe() (<-chan bool, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan bool, 4)
	f.subs = append(f.subs, ch)
	return ch, func() {}
}

func (f *fakeNetwork) set(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = connected
	for _, ch := range f.subs {
		ch <- connected
	}
}

type fakePush struct {
	mu        sync.Mutex
	connected bool
	subs      []chan *push.Message
}

func (f *fakePush) Connect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
}

func (f *fakePush) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakePush) Subscribe() (<-chan *push.Message, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan *push.Message, 4)
	f.subs = append(f.subs, ch)
	return ch, func() {}
}

func (f *fakePush) emit(msg *push.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- msg
	}
}

type coordFixture struct {
	coord *Coordinator
	store *store.SQLiteStore
	queue *queue.Queue
	net   *fakeNetwork
	push  *fakePush
	gw    *gateway.Gateway
}

func newCoordFixture(t *testing.T, online bool) *coordFixture {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "coord.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	remote := server.NewServer()
	t.Cleanup(remote.Close)
	srv := httptest.NewServer(remote.Routes())
	t.Cleanup(srv.Close)

	st := store.NewSQLiteStore(db)
	q := queue.NewQueue(db)
	net := &fakeNetwork{connected: online}
	gw := gateway.NewGateway(srv.URL, 5*time.Second, net, q)
	ps := &fakePush{}

	coord := NewCoordinator(st, q, gw, net, ps, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, coord.Start())
	t.Cleanup(coord.Stop)

	return &coordFixture{coord: coord, store: st, queue: q, net: net, push: ps, gw: gw}
}

func coordSample() *store.Game {
	return &store.Game{
		HomeTeam:  "Hawks",
		AwayTeam:  "Owls",
		HomeScore: 3,
		AwayScore: 3,
		Date:      time.Now().UnixMilli(),
		Location:  "Stadium",
		SportType: "Football",
		Status:    "Finished",
	}
}

func TestAddGameOnlineLinksServerID(t *testing.T) {
	f := newCoordFixture(t, true)
	ctx := context.Background()

	g, err := f.coord.AddGame(ctx, coordSample())
	require.NoError(t, err)
	require.NotNil(t, g.ServerID)
	assert.False(t, g.PendingSync)

	stored, err := f.store.GetByLocalID(ctx, g.LocalID)
	require.NoError(t, err)
	require.NotNil(t, stored.ServerID)
	assert.Equal(t, *g.ServerID, *stored.ServerID)
}

func TestAddGameOfflineQueuesCreate(t *testing.T) {
	f := newCoordFixture(t, false)
	ctx := context.Background()

	g, err := f.coord.AddGame(ctx, coordSample())
	require.NoError(t, err)
	assert.Nil(t, g.ServerID)
	assert.True(t, g.PendingSync)
	assert.Equal(t, store.OpCreate, g.PendingOp)

	ops, err := f.queue.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, queue.KindCreate, ops[0].Kind)
	assert.Equal(t, g.LocalID, ops[0].SubjectID)
}

func TestReconnectDrainsQueue(t *testing.T) {
	f := newCoordFixture(t, false)
	ctx := context.Background()

	g, err := f.coord.AddGame(ctx, coordSample())
	require.NoError(t, err)

	f.net.set(true)

	require.Eventually(t, func() bool {
		n, err := f.queue.Count(ctx)
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond, "queue should drain after reconnect")

	stored, err := f.store.GetByLocalID(ctx, g.LocalID)
	require.NoError(t, err)
	assert.NotNil(t, stored.ServerID)
	assert.False(t, stored.PendingSync)
}

func TestSelfEchoSuppressed(t *testing.T) {
	f := newCoordFixture(t, true)
	ctx := context.Background()

	g, err := f.coord.AddGame(ctx, coordSample())
	require.NoError(t, err)
	require.NotNil(t, g.ServerID)

	// The server broadcasts our own CREATE back; it must not double-insert.
	f.push.emit(&push.Message{Type: push.Create, Data: &push.GamePayload{
		ID:       *g.ServerID,
		HomeTeam: g.HomeTeam,
		AwayTeam: g.AwayTeam,
	}})

	assert.Never(t, func() bool {
		games, err := f.store.ListAll(ctx)
		return err != nil || len(games) != 1
	}, 300*time.Millisecond, 25*time.Millisecond, "self-echo must not change the record set")
}

func TestPushCreateApplied(t *testing.T) {
	f := newCoordFixture(t, true)
	ctx := context.Background()

	f.push.emit(&push.Message{Type: push.Create, Data: &push.GamePayload{
		ID:       90,
		HomeTeam: "Remote",
		AwayTeam: "Visitors",
		Date:     time.Now().UnixMilli(),
	}})

	require.Eventually(t, func() bool {
		_, err := f.store.GetByServerID(ctx, 90)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	got, err := f.store.GetByServerID(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, "Remote", got.HomeTeam)
	assert.False(t, got.PendingSync)
}

func TestPushCreateForKnownRecordIgnored(t *testing.T) {
	f := newCoordFixture(t, true)
	ctx := context.Background()

	g, err := f.coord.AddGame(ctx, coordSample())
	require.NoError(t, err)

	// Another device's echo arrives late, after the suppression entry was
	// already consumed. Reconciliation by server id keeps it a no-op.
	f.coord.suppress.CheckAndRemove(*g.ServerID)
	f.push.emit(&push.Message{Type: push.Create, Data: &push.GamePayload{ID: *g.ServerID}})

	assert.Never(t, func() bool {
		games, err := f.store.ListAll(ctx)
		return err != nil || len(games) != 1
	}, 300*time.Millisecond, 25*time.Millisecond)
}

func TestPushUpdateApplied(t *testing.T) {
	f := newCoordFixture(t, true)
	ctx := context.Background()

	g, err := f.coord.AddGame(ctx, coordSample())
	require.NoError(t, err)

	f.push.emit(&push.Message{Type: push.Update, Data: &push.GamePayload{
		ID:        *g.ServerID,
		HomeTeam:  g.HomeTeam,
		AwayTeam:  g.AwayTeam,
		HomeScore: 10,
		AwayScore: 0,
		Date:      g.Date,
		Location:  g.Location,
		SportType: g.SportType,
		Status:    "Finished",
	}})

	require.Eventually(t, func() bool {
		got, err := f.store.GetByLocalID(ctx, g.LocalID)
		return err == nil && got.HomeScore == 10
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPushUpdateSkipsRecordPendingDeletion(t *testing.T) {
	f := newCoordFixture(t, true)
	ctx := context.Background()

	g, err := f.coord.AddGame(ctx, coordSample())
	require.NoError(t, err)
	require.NoError(t, f.store.SetPending(ctx, g.LocalID, store.OpDelete))

	f.push.emit(&push.Message{Type: push.Update, Data: &push.GamePayload{
		ID:        *g.ServerID,
		HomeScore: 99,
	}})

	assert.Never(t, func() bool {
		got, err := f.store.GetByLocalID(ctx, g.LocalID)
		return err != nil || got.HomeScore == 99
	}, 300*time.Millisecond, 25*time.Millisecond, "a record queued for deletion must not be resurrected")
}

func TestPushDeleteApplied(t *testing.T) {
	f := newCoordFixture(t, true)
	ctx := context.Background()

	g, err := f.coord.AddGame(ctx, coordSample())
	require.NoError(t, err)

	f.push.emit(&push.Message{Type: push.Delete, Data: &push.GamePayload{ID: *g.ServerID}})

	require.Eventually(t, func() bool {
		_, err := f.store.GetByLocalID(ctx, g.LocalID)
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUpdateGameUnsyncedQueuesNothing(t *testing.T) {
	f := newCoordFixture(t, false)
	ctx := context.Background()

	g, err := f.coord.AddGame(ctx, coordSample())
	require.NoError(t, err)

	g.Notes = "revised before first sync"
	require.NoError(t, f.coord.UpdateGame(ctx, g))

	// Only the original CREATE is queued; its replay re-reads current state.
	ops, err := f.queue.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, queue.KindCreate, ops[0].Kind)
}

func TestUpdateGameOfflineQueuesUpdate(t *testing.T) {
	f := newCoordFixture(t, true)
	ctx := context.Background()

	g, err := f.coord.AddGame(ctx, coordSample())
	require.NoError(t, err)

	f.net.mu.Lock()
	f.net.connected = false
	f.net.mu.Unlock()

	g.HomeScore = 7
	require.NoError(t, f.coord.UpdateGame(ctx, g))

	ops, err := f.queue.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, queue.KindUpdate, ops[0].Kind)
	assert.Equal(t, *g.ServerID, ops[0].SubjectID)

	stored, err := f.store.GetByLocalID(ctx, g.LocalID)
	require.NoError(t, err)
	assert.True(t, stored.PendingSync)
}

func TestDeleteGameUnsyncedStaysLocal(t *testing.T) {
	f := newCoordFixture(t, false)
	ctx := context.Background()

	g, err := f.coord.AddGame(ctx, coordSample())
	require.NoError(t, err)

	// Remove the queued CREATE to model a record that never reached the server
	// and has no queue entry left.
	ops, err := f.queue.ListPending(ctx)
	require.NoError(t, err)
	for _, op := range ops {
		require.NoError(t, f.queue.Remove(ctx, op.QueueID))
	}

	require.NoError(t, f.coord.DeleteGame(ctx, g.LocalID))

	n, err := f.queue.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "a never-synced record has nothing remote to delete")
}

func TestDeleteGameOfflineQueuesDelete(t *testing.T) {
	f := newCoordFixture(t, true)
	ctx := context.Background()

	g, err := f.coord.AddGame(ctx, coordSample())
	require.NoError(t, err)

	f.net.mu.Lock()
	f.net.connected = false
	f.net.mu.Unlock()

	require.NoError(t, f.coord.DeleteGame(ctx, g.LocalID))

	ops, err := f.queue.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, queue.KindDelete, ops[0].Kind)
	assert.Equal(t, *g.ServerID, ops[0].SubjectID)
}

func TestStartTwiceFails(t *testing.T) {
	f := newCoordFixture(t, true)
	assert.Error(t, f.coord.Start())
	assert.Equal(t, "running", f.coord.GetStatus())
}

func TestStopIsIdempotent(t *testing.T) {
	f := newCoordFixture(t, true)
	f.coord.Stop()
	f.coord.Stop()
	assert.Equal(t, "idle", f.coord.GetStatus())
}
