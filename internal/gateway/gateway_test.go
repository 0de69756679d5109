package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-sync-client/internal/database"
	"game-sync-client/internal/queue"
	"game-sync-client/internal/server"
	"game-sync-client/internal/store"
)

type fakeNet struct {
	up atomic.Bool
}

func (f *fakeNet) IsConnectedNow() bool { return f.up.Load() }

type fixture struct {
	gw    *Gateway
	queue *queue.Queue
	store *store.SQLiteStore
	net   *fakeNet
	srv   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "gw.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	remote := server.NewServer()
	t.Cleanup(remote.Close)
	srv := httptest.NewServer(remote.Routes())
	t.Cleanup(srv.Close)

	q := queue.NewQueue(db)
	net := &fakeNet{}
	net.up.Store(true)

	return &fixture{
		gw:    NewGateway(srv.URL, 5*time.Second, net, q),
		queue: q,
		store: store.NewSQLiteStore(db),
		net:   net,
		srv:   srv,
	}
}

func sampleGame() *store.Game {
	return &store.Game{
		HomeTeam:  "Lions",
		AwayTeam:  "Tigers",
		HomeScore: 2,
		AwayScore: 1,
		Date:      time.Now().UnixMilli(),
		Location:  "Arena",
		SportType: "Football",
		Status:    "Finished",
	}
}

func TestCreateAssignsServerID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.gw.Create(ctx, sampleGame())
	require.NoError(t, err)
	assert.False(t, res.Deferred)
	require.NotNil(t, res.Game.ServerID)
	assert.Equal(t, int64(1), *res.Game.ServerID)

	games, err := f.gw.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "Lions", games[0].HomeTeam)
}

func TestCreateOfflineDefersToQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.net.up.Store(false)

	g := sampleGame()
	g.LocalID = 11

	res, err := f.gw.Create(ctx, g)
	require.NoError(t, err)
	assert.True(t, res.Deferred)

	ops, err := f.queue.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, queue.KindCreate, ops[0].Kind)
	assert.Equal(t, int64(11), ops[0].SubjectID)
}

func TestCreateTransportFailureDefersToQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.srv.Close() // connected per the monitor, but the wire is dead

	g := sampleGame()
	g.LocalID = 3

	res, err := f.gw.Create(ctx, g)
	require.NoError(t, err)
	assert.True(t, res.Deferred)

	n, err := f.queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateRejectionSurfacesWithoutQueueing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := sampleGame()
	g.HomeTeam = "" // fails server validation

	_, err := f.gw.Create(ctx, g)
	var re *RejectedError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusBadRequest, re.StatusCode)

	// Retrying a validation failure is futile; nothing was queued.
	n, qerr := f.queue.Count(ctx)
	require.NoError(t, qerr)
	assert.Zero(t, n)
}

func TestUpdateRequiresServerID(t *testing.T) {
	f := newFixture(t)

	_, err := f.gw.Update(context.Background(), sampleGame())
	assert.ErrorIs(t, err, ErrNotSynced)
}

func TestUpdateRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.gw.Create(ctx, sampleGame())
	require.NoError(t, err)

	created.Game.HomeScore = 9
	res, err := f.gw.Update(ctx, created.Game)
	require.NoError(t, err)
	assert.False(t, res.Deferred)

	got, err := f.gw.Get(ctx, *created.Game.ServerID)
	require.NoError(t, err)
	assert.Equal(t, 9, got.HomeScore)
}

func TestUpdateOfflineDefersToQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.gw.Create(ctx, sampleGame())
	require.NoError(t, err)

	f.net.up.Store(false)
	res, err := f.gw.Update(ctx, created.Game)
	require.NoError(t, err)
	assert.True(t, res.Deferred)

	ops, err := f.queue.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, queue.KindUpdate, ops[0].Kind)
	assert.Equal(t, *created.Game.ServerID, ops[0].SubjectID)
}

func TestDeleteRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.gw.Create(ctx, sampleGame())
	require.NoError(t, err)

	res, err := f.gw.Delete(ctx, *created.Game.ServerID)
	require.NoError(t, err)
	assert.False(t, res.Deferred)

	games, err := f.gw.FetchAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, games)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.gw.Get(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchAllTransportFailure(t *testing.T) {
	f := newFixture(t)
	f.srv.Close()

	_, err := f.gw.FetchAll(context.Background())
	var te *TransportError
	assert.ErrorAs(t, err, &te)
}
