package gateway

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"game-sync-client/internal/logger"
	"game-sync-client/internal/queue"
	"game-sync-client/internal/store"
)

// ReplayQueue drains the pending queue against the server, FIFO. Each entry
// is independently retryable: a failure leaves that entry queued and
// processing continues with the next one. Remote calls go direct, never
// through the deferring paths, so a failed replay cannot re-enqueue.
func (g *Gateway) ReplayQueue(ctx context.Context, st store.Store) error {
	ops, err := g.queue.ListPending(ctx)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	logger.Log.Info("Replaying pending operations", zap.Int("count", len(ops)))

	for _, op := range ops {
		switch op.Kind {
		case queue.KindCreate:
			g.replayCreate(ctx, st, op)
		case queue.KindUpdate:
			g.replayUpdate(ctx, st, op)
		case queue.KindDelete:
			g.replayDelete(ctx, op)
		default:
			logger.Log.Error("Unknown queue entry kind, removing",
				zap.String("queueID", op.QueueID), zap.String("kind", string(op.Kind)))
			_ = g.queue.Remove(ctx, op.QueueID)
		}
	}

	remaining, err := g.queue.Count(ctx)
	if err == nil {
		logger.Log.Info("Replay pass finished", zap.Int("remaining", remaining))
	}
	return nil
}

// replayCreate re-reads the record before calling the server: a row that
// gained a server id through another path makes the entry superseded, and a
// row deleted locally makes it obsolete.
func (g *Gateway) replayCreate(ctx context.Context, st store.Store, op *queue.PendingOperation) {
	current, err := st.GetByLocalID(ctx, op.SubjectID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Log.Debug("Skipping CREATE, record gone locally",
			zap.String("queueID", op.QueueID), zap.Int64("localID", op.SubjectID))
		_ = g.queue.Remove(ctx, op.QueueID)
		return
	}
	if err != nil {
		logger.Log.Error("Failed to re-read record for CREATE replay",
			zap.String("queueID", op.QueueID), zap.Error(err))
		return
	}

	if current.ServerID != nil {
		logger.Log.Debug("Skipping CREATE, record already synced",
			zap.String("queueID", op.QueueID), zap.Int64("serverID", *current.ServerID))
		_ = g.queue.Remove(ctx, op.QueueID)
		return
	}

	// Replay carries the current record state, not the enqueued snapshot.
	created, err := g.createRemote(ctx, current)
	if err != nil {
		logger.Log.Warn("CREATE replay failed, keeping entry",
			zap.String("queueID", op.QueueID), zap.Error(err))
		return
	}

	if err := st.SetServerLink(ctx, current.LocalID, *created.ServerID); err != nil {
		logger.Log.Error("Failed to record server link after CREATE replay",
			zap.Int64("localID", current.LocalID), zap.Error(err))
		return
	}
	_ = g.queue.Remove(ctx, op.QueueID)

	logger.Log.Info("CREATE replayed",
		zap.Int64("localID", current.LocalID), zap.Int64("serverID", *created.ServerID))
}

// replayUpdate sends the record's current local state, not the stale snapshot
// in the entry. An entry whose record is still waiting on its CREATE stays
// queued; CREATE must land first.
func (g *Gateway) replayUpdate(ctx context.Context, st store.Store, op *queue.PendingOperation) {
	current, err := st.GetByServerID(ctx, op.SubjectID)
	if errors.Is(err, store.ErrNotFound) {
		snapshot, derr := op.DecodeGame()
		if derr == nil && snapshot.LocalID != 0 {
			local, lerr := st.GetByLocalID(ctx, snapshot.LocalID)
			if lerr == nil && local.ServerID == nil {
				logger.Log.Debug("Skipping UPDATE, CREATE has not landed yet",
					zap.String("queueID", op.QueueID), zap.Int64("localID", local.LocalID))
				return
			}
		}
		// Record deleted locally; nothing left to push.
		logger.Log.Debug("Dropping UPDATE, record gone locally",
			zap.String("queueID", op.QueueID), zap.Int64("serverID", op.SubjectID))
		_ = g.queue.Remove(ctx, op.QueueID)
		return
	}
	if err != nil {
		logger.Log.Error("Failed to re-read record for UPDATE replay",
			zap.String("queueID", op.QueueID), zap.Error(err))
		return
	}

	if _, err := g.updateRemote(ctx, current, op.SubjectID); err != nil {
		logger.Log.Warn("UPDATE replay failed, keeping entry",
			zap.String("queueID", op.QueueID), zap.Error(err))
		return
	}

	if err := st.SetServerLink(ctx, current.LocalID, op.SubjectID); err != nil {
		logger.Log.Error("Failed to clear sync flags after UPDATE replay",
			zap.Int64("localID", current.LocalID), zap.Error(err))
	}
	_ = g.queue.Remove(ctx, op.QueueID)

	logger.Log.Info("UPDATE replayed", zap.Int64("serverID", op.SubjectID))
}

func (g *Gateway) replayDelete(ctx context.Context, op *queue.PendingOperation) {
	if err := g.deleteRemote(ctx, op.SubjectID); err != nil {
		// A 404 also keeps the entry: the record vanished upstream and the
		// delete stays queued for completion semantics.
		logger.Log.Warn("DELETE replay failed, keeping entry",
			zap.String("queueID", op.QueueID), zap.Error(err))
		return
	}
	_ = g.queue.Remove(ctx, op.QueueID)

	logger.Log.Info("DELETE replayed", zap.Int64("serverID", op.SubjectID))
}
