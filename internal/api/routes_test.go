package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-sync-client/internal/database"
	"game-sync-client/internal/gateway"
	"game-sync-client/internal/netmon"
	"game-sync-client/internal/push"
	"game-sync-client/internal/queue"
	"game-sync-client/internal/server"
	"game-sync-client/internal/store"
	syncpkg "game-sync-client/internal/sync"
)

type noPush struct{}

func (noPush) Connect()    {}
func (noPush) Disconnect() {}
func (noPush) Subscribe() (<-chan *push.Message, func()) {
	return make(chan *push.Message), func() {}
}

// newAPIServer stands up the full stack behind the handler: remote reference
// server, local database, gateway, coordinator.
func newAPIServer(t *testing.T, online bool) *httptest.Server {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	remoteSrv := server.NewServer()
	t.Cleanup(remoteSrv.Close)
	remote := httptest.NewServer(remoteSrv.Routes())
	t.Cleanup(remote.Close)

	probeURL := remote.URL
	if !online {
		probeURL = "http://127.0.0.1:1"
	}
	mon := netmon.NewMonitor(netmon.HealthProbe(probeURL, time.Second), time.Minute)

	q := queue.NewQueue(db)
	st := store.NewSQLiteStore(db)
	gw := gateway.NewGateway(remote.URL, 5*time.Second, mon, q)

	coord := syncpkg.NewCoordinator(st, q, gw, mon, noPush{}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, coord.Start())
	t.Cleanup(coord.Stop)

	api := httptest.NewServer(NewHandler(coord).Routes())
	t.Cleanup(api.Close)
	return api
}

func postGame(t *testing.T, base string) gameView {
	t.Helper()
	body := []byte(`{"homeTeam":"Lions","awayTeam":"Tigers","location":"Arena","sportType":"Football","status":"Scheduled"}`)
	resp, err := http.Post(base+"/api/v1/games", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var v gameView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthEndpoint(t *testing.T) {
	api := newAPIServer(t, true)

	resp, err := http.Get(api.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	out, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "OK", string(out))
}

func TestAddGameOnline(t *testing.T) {
	api := newAPIServer(t, true)

	v := postGame(t, api.URL)
	assert.NotZero(t, v.LocalID)
	require.NotNil(t, v.ServerID)
	assert.False(t, v.PendingSync)
}

func TestAddGameOfflineMarksPending(t *testing.T) {
	api := newAPIServer(t, false)

	v := postGame(t, api.URL)
	assert.NotZero(t, v.LocalID)
	assert.Nil(t, v.ServerID)
	assert.True(t, v.PendingSync)
	assert.Equal(t, "CREATE", v.PendingOp)

	resp, err := http.Get(api.URL + "/api/v1/sync/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status struct {
		Status         string `json:"status"`
		Pending        int    `json:"pending"`
		PendingRecords int    `json:"pendingRecords"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, 1, status.Pending)
	assert.Equal(t, 1, status.PendingRecords)
}

func TestAddGameRejectedSavedLocally(t *testing.T) {
	api := newAPIServer(t, true)

	// Missing location fails remote validation but must still land locally.
	body := []byte(`{"homeTeam":"Lions","awayTeam":"Tigers"}`)
	resp, err := http.Post(api.URL+"/api/v1/games", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out struct {
		Game    gameView `json:"game"`
		Warning string   `json:"warning"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotZero(t, out.Game.LocalID)
	assert.Nil(t, out.Game.ServerID)
	assert.NotEmpty(t, out.Warning)
}

func TestGetAndListGames(t *testing.T) {
	api := newAPIServer(t, true)

	v := postGame(t, api.URL)

	resp, err := http.Get(api.URL + "/api/v1/games/" + itoa(v.LocalID))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(api.URL + "/api/v1/games")
	require.NoError(t, err)
	defer resp2.Body.Close()

	var list []gameView
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&list))
	assert.Len(t, list, 1)

	resp3, err := http.Get(api.URL + "/api/v1/games/999")
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp3.StatusCode)
}

func TestUpdateGameEndpoint(t *testing.T) {
	api := newAPIServer(t, true)

	v := postGame(t, api.URL)

	body := []byte(`{"homeTeam":"Lions","awayTeam":"Tigers","location":"Arena","homeScore":4,"awayScore":1,"status":"Finished"}`)
	req, err := http.NewRequest(http.MethodPut, api.URL+"/api/v1/games/"+itoa(v.LocalID), bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated gameView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	assert.Equal(t, 4, updated.HomeScore)
	assert.Equal(t, "Finished", updated.Status)
	require.NotNil(t, updated.ServerID, "server link survives an update")
}

func TestDeleteGameEndpoint(t *testing.T) {
	api := newAPIServer(t, true)

	v := postGame(t, api.URL)

	req, err := http.NewRequest(http.MethodDelete, api.URL+"/api/v1/games/"+itoa(v.LocalID), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(api.URL + "/api/v1/games/" + itoa(v.LocalID))
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestTriggerSync(t *testing.T) {
	api := newAPIServer(t, true)

	resp, err := http.Post(api.URL+"/api/v1/sync/trigger", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
