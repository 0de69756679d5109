package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"game-sync-client/internal/gateway"
	"game-sync-client/internal/logger"
	"game-sync-client/internal/push"
	"game-sync-client/internal/queue"
	"game-sync-client/internal/store"
)

// Network is the connectivity signal the coordinator reacts to.
type Network interface {
	IsConnectedNow() bool
	Subscribe() (<-chan bool, func())
}

// PushSource is the live-update channel the coordinator consumes.
type PushSource interface {
	Connect()
	Disconnect()
	Subscribe() (<-chan *push.Message, func())
}

// Coordinator orchestrates the store, the gateway, the queue and the push
// channel: initial fetch-and-merge, dispatch of local mutations, queue replay
// on reconnect, and application of inbound push notifications with self-echo
// suppression.
type Coordinator struct {
	store    store.Store
	queue    *queue.Queue
	gateway  *gateway.Gateway
	network  Network
	push     PushSource
	suppress *suppressionSet

	settleDelay time.Duration

	mu     sync.Mutex
	status string

	replaying atomic.Bool
	refresh   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCoordinator(st store.Store, q *queue.Queue, gw *gateway.Gateway, net Network, ps PushSource, suppressionWindow, settleDelay time.Duration) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:       st,
		queue:       q,
		gateway:     gw,
		network:     net,
		push:        ps,
		suppress:    newSuppressionSet(suppressionWindow),
		settleDelay: settleDelay,
		status:      "idle",
		refresh:     make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Refresh signals that the record set changed and any display should reload.
// Signals coalesce.
func (c *Coordinator) Refresh() <-chan struct{} {
	return c.refresh
}

func (c *Coordinator) signalRefresh() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

func (c *Coordinator) Start() error {
	c.mu.Lock()
	if c.status == "running" {
		c.mu.Unlock()
		return fmt.Errorf("coordinator is already running")
	}
	c.status = "running"
	c.mu.Unlock()

	logger.Log.Info("Starting reconciliation coordinator")

	netCh, netCancel := c.network.Subscribe()
	pushCh, pushCancel := c.push.Subscribe()

	c.wg.Add(3)
	go c.watchConnectivity(netCh, netCancel)
	go c.watchPush(pushCh, pushCancel)
	go c.watchQueue()

	if c.network.IsConnectedNow() {
		c.push.Connect()
	}

	c.wg.Add(1)
	go c.startup()

	return nil
}

// startup loads remote state and, after a short settle delay, drains the
// queue. Local data is available to callers throughout.
func (c *Coordinator) startup() {
	defer c.wg.Done()

	if c.network.IsConnectedNow() {
		if err := c.fetchAndMerge(c.ctx); err != nil {
			// Recoverable: carry on with local-only data.
			logger.Log.Warn("Initial server fetch failed, continuing with local data", zap.Error(err))
		}
	}

	select {
	case <-time.After(c.settleDelay):
	case <-c.ctx.Done():
		return
	}

	c.TriggerReplay()
}

func (c *Coordinator) fetchAndMerge(ctx context.Context) error {
	games, err := c.gateway.FetchAll(ctx)
	if err != nil {
		return err
	}

	if err := c.store.SaveBatchFromRemote(ctx, games); err != nil {
		return fmt.Errorf("failed to merge server records: %w", err)
	}

	c.signalRefresh()
	return nil
}

func (c *Coordinator) watchConnectivity(ch <-chan bool, cancel func()) {
	defer c.wg.Done()
	defer cancel()

	for {
		select {
		case connected, ok := <-ch:
			if !ok {
				return
			}
			if connected {
				logger.Log.Info("Connectivity restored")
				c.push.Connect()
				c.TriggerReplay()
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Coordinator) watchQueue() {
	defer c.wg.Done()

	for {
		select {
		case <-c.queue.Notify():
			if c.network.IsConnectedNow() {
				c.TriggerReplay()
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// TriggerReplay runs one replay pass. Passes do not overlap: a trigger while
// one is in flight is dropped.
func (c *Coordinator) TriggerReplay() {
	if !c.replaying.CompareAndSwap(false, true) {
		logger.Log.Debug("Replay already in progress, skipping trigger")
		return
	}
	defer c.replaying.Store(false)

	if !c.network.IsConnectedNow() {
		return
	}

	if err := c.gateway.ReplayQueue(c.ctx, c.store); err != nil {
		logger.Log.Error("Replay pass failed", zap.Error(err))
		return
	}
	c.signalRefresh()
}

// ListGames returns the local record set, newest first.
func (c *Coordinator) ListGames(ctx context.Context) ([]*store.Game, error) {
	return c.store.ListAll(ctx)
}

// GetGame returns one local record.
func (c *Coordinator) GetGame(ctx context.Context, localID int64) (*store.Game, error) {
	return c.store.GetByLocalID(ctx, localID)
}

// PendingCount reports the depth of the pending-operation queue.
func (c *Coordinator) PendingCount(ctx context.Context) (int, error) {
	return c.queue.Count(ctx)
}

// PendingRecords reports how many local rows still await remote acknowledgement.
func (c *Coordinator) PendingRecords(ctx context.Context) (int, error) {
	return c.store.PendingCount(ctx)
}

// AddGame writes the record locally, then pushes it to the server or queues
// a CREATE. The local record is always returned; a rejection travels back as
// the error alongside it.
func (c *Coordinator) AddGame(ctx context.Context, game *store.Game) (*store.Game, error) {
	inserted, err := c.store.Insert(ctx, game)
	if err != nil {
		return nil, fmt.Errorf("failed to save game locally: %w", err)
	}

	if !c.network.IsConnectedNow() {
		// Known offline: enqueue directly, skipping the gateway's own check.
		if err := c.store.SetPending(ctx, inserted.LocalID, store.OpCreate); err != nil {
			return nil, err
		}
		if _, err := c.queue.EnqueueCreate(ctx, inserted); err != nil {
			return nil, err
		}
		inserted.PendingSync = true
		inserted.PendingOp = store.OpCreate
		c.signalRefresh()
		return inserted, nil
	}

	res, err := c.gateway.Create(ctx, inserted)
	if err != nil {
		c.signalRefresh()
		return inserted, err
	}

	if res.Deferred {
		if err := c.store.SetPending(ctx, inserted.LocalID, store.OpCreate); err != nil {
			return nil, err
		}
		inserted.PendingSync = true
		inserted.PendingOp = store.OpCreate
		c.signalRefresh()
		return inserted, nil
	}

	serverID := *res.Game.ServerID

	// Suppress before linking so the server's broadcast of this same change
	// cannot race past us and double-insert.
	c.suppress.Add(serverID)

	if err := c.store.SetServerLink(ctx, inserted.LocalID, serverID); err != nil {
		return nil, err
	}
	inserted.ServerID = &serverID
	inserted.PendingSync = false
	inserted.PendingOp = ""

	c.signalRefresh()
	return inserted, nil
}

// UpdateGame writes the record locally, then pushes the change or queues an
// UPDATE. A record still waiting on its CREATE enqueues nothing: the CREATE
// replay re-reads current state and will carry this change.
func (c *Coordinator) UpdateGame(ctx context.Context, game *store.Game) error {
	if err := c.store.Update(ctx, game); err != nil {
		return fmt.Errorf("failed to update game locally: %w", err)
	}
	defer c.signalRefresh()

	if game.ServerID == nil {
		logger.Log.Debug("Updated unsynced game, CREATE replay will carry it",
			zap.Int64("localID", game.LocalID))
		return nil
	}
	serverID := *game.ServerID

	if !c.network.IsConnectedNow() {
		if err := c.store.SetPending(ctx, game.LocalID, store.OpUpdate); err != nil {
			return err
		}
		_, err := c.queue.EnqueueUpdate(ctx, game, serverID)
		return err
	}

	res, err := c.gateway.Update(ctx, game)
	if err != nil {
		return err
	}

	if res.Deferred {
		return c.store.SetPending(ctx, game.LocalID, store.OpUpdate)
	}

	c.suppress.Add(serverID)
	return c.store.SetServerLink(ctx, game.LocalID, serverID)
}

// DeleteGame removes the record locally, then propagates the delete or queues
// it. A record that never reached the server has nothing remote to do.
func (c *Coordinator) DeleteGame(ctx context.Context, localID int64) error {
	// Read first: the server id is gone once the row is.
	game, err := c.store.GetByLocalID(ctx, localID)
	if err != nil {
		return err
	}

	if err := c.store.Delete(ctx, localID); err != nil {
		return fmt.Errorf("failed to delete game locally: %w", err)
	}
	defer c.signalRefresh()

	if game.ServerID == nil {
		return nil
	}
	serverID := *game.ServerID

	if !c.network.IsConnectedNow() {
		_, err := c.queue.EnqueueDelete(ctx, serverID)
		return err
	}

	res, err := c.gateway.Delete(ctx, serverID)
	if err != nil {
		return err
	}
	if !res.Deferred {
		c.suppress.Add(serverID)
	}
	return nil
}

func (c *Coordinator) watchPush(ch <-chan *push.Message, cancel func()) {
	defer c.wg.Done()
	defer cancel()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			c.handlePush(msg)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Coordinator) handlePush(msg *push.Message) {
	if msg.Data == nil {
		return
	}
	serverID := msg.Data.ID

	if c.suppress.CheckAndRemove(serverID) {
		logger.Log.Debug("Ignoring self-echo",
			zap.String("type", string(msg.Type)), zap.Int64("serverID", serverID))
		return
	}

	ctx := c.ctx
	var applied bool

	switch msg.Type {
	case push.Create:
		applied = c.applyPushCreate(ctx, serverID, msg.Data)
	case push.Update:
		applied = c.applyPushUpdate(ctx, serverID, msg.Data)
	case push.Delete:
		applied = c.applyPushDelete(ctx, serverID)
	}

	if applied {
		c.signalRefresh()
	}
}

func (c *Coordinator) applyPushCreate(ctx context.Context, serverID int64, data *push.GamePayload) bool {
	_, err := c.store.GetByServerID(ctx, serverID)
	if err == nil {
		logger.Log.Debug("Push CREATE for known record, skipping", zap.Int64("serverID", serverID))
		return false
	}
	if !errors.Is(err, store.ErrNotFound) {
		logger.Log.Error("Failed to look up record for push CREATE", zap.Error(err))
		return false
	}

	game := payloadToGame(serverID, data)
	if _, err := c.store.Insert(ctx, game); err != nil {
		logger.Log.Error("Failed to apply push CREATE", zap.Int64("serverID", serverID), zap.Error(err))
		return false
	}

	logger.Log.Info("Applied push CREATE", zap.Int64("serverID", serverID))
	return true
}

func (c *Coordinator) applyPushUpdate(ctx context.Context, serverID int64, data *push.GamePayload) bool {
	current, err := c.store.GetByServerID(ctx, serverID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Log.Debug("Push UPDATE for unknown record, skipping", zap.Int64("serverID", serverID))
		return false
	}
	if err != nil {
		logger.Log.Error("Failed to look up record for push UPDATE", zap.Error(err))
		return false
	}

	// A row queued for deletion must not be resurrected by a merge.
	if current.PendingOp == store.OpDelete {
		logger.Log.Debug("Push UPDATE for record pending deletion, skipping",
			zap.Int64("serverID", serverID))
		return false
	}

	current.HomeTeam = data.HomeTeam
	current.AwayTeam = data.AwayTeam
	current.HomeScore = data.HomeScore
	current.AwayScore = data.AwayScore
	current.Date = data.Date
	current.Location = data.Location
	current.SportType = data.SportType
	current.Status = data.Status
	current.Notes = data.Notes

	if err := c.store.Update(ctx, current); err != nil {
		logger.Log.Error("Failed to apply push UPDATE", zap.Int64("serverID", serverID), zap.Error(err))
		return false
	}

	logger.Log.Info("Applied push UPDATE", zap.Int64("serverID", serverID))
	return true
}

func (c *Coordinator) applyPushDelete(ctx context.Context, serverID int64) bool {
	current, err := c.store.GetByServerID(ctx, serverID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Log.Debug("Push DELETE for unknown record, skipping", zap.Int64("serverID", serverID))
		return false
	}
	if err != nil {
		logger.Log.Error("Failed to look up record for push DELETE", zap.Error(err))
		return false
	}

	if err := c.store.Delete(ctx, current.LocalID); err != nil {
		logger.Log.Error("Failed to apply push DELETE", zap.Int64("serverID", serverID), zap.Error(err))
		return false
	}

	logger.Log.Info("Applied push DELETE", zap.Int64("serverID", serverID))
	return true
}

func payloadToGame(serverID int64, data *push.GamePayload) *store.Game {
	return &store.Game{
		HomeTeam:  data.HomeTeam,
		AwayTeam:  data.AwayTeam,
		HomeScore: data.HomeScore,
		AwayScore: data.AwayScore,
		Date:      data.Date,
		Location:  data.Location,
		SportType: data.SportType,
		Status:    data.Status,
		Notes:     data.Notes,
		ServerID:  &serverID,
	}
}

func (c *Coordinator) GetStatus() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.status != "running" {
		c.mu.Unlock()
		return
	}
	c.status = "idle"
	c.mu.Unlock()

	logger.Log.Info("Stopping reconciliation coordinator")

	c.push.Disconnect()
	c.cancel()
	c.wg.Wait()
}
