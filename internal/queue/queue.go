package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"game-sync-client/internal/database"
	"game-sync-client/internal/logger"
	"game-sync-client/internal/store"
)

// Kind identifies the deferred mutation a queue entry represents.
type Kind string

const (
	KindCreate Kind = "CREATE"
	KindUpdate Kind = "UPDATE"
	KindDelete Kind = "DELETE"
)

// PendingOperation is a durable record of a mutation that has not been
// acknowledged remotely. SubjectID is the local id for CREATE entries and the
// server id for UPDATE/DELETE entries.
type PendingOperation struct {
	QueueID   string
	SubjectID int64
	Kind      Kind
	CreatedAt int64
	Payload   []byte // JSON snapshot of the record, nil for DELETE
}

// Queue persists pending operations in the local database so they survive
// process restarts. Entries replay in insert order.
type Queue struct {
	db     *database.Database
	notify chan struct{}
}

func NewQueue(db *database.Database) *Queue {
	return &Queue{
		db:     db,
		notify: make(chan struct{}, 1),
	}
}

// Notify signals whenever an entry is enqueued. The coordinator listens on it
// to attempt an immediate replay pass while connected. The channel holds one
// pending signal; bursts coalesce.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

func (q *Queue) EnqueueCreate(ctx context.Context, game *store.Game) (*PendingOperation, error) {
	payload, err := json.Marshal(game)
	if err != nil {
		return nil, fmt.Errorf("failed to encode game snapshot: %w", err)
	}
	return q.enqueue(ctx, game.LocalID, KindCreate, payload)
}

func (q *Queue) EnqueueUpdate(ctx context.Context, game *store.Game, serverID int64) (*PendingOperation, error) {
	payload, err := json.Marshal(game)
	if err != nil {
		return nil, fmt.Errorf("failed to encode game snapshot: %w", err)
	}
	return q.enqueue(ctx, serverID, KindUpdate, payload)
}

func (q *Queue) EnqueueDelete(ctx context.Context, serverID int64) (*PendingOperation, error) {
	return q.enqueue(ctx, serverID, KindDelete, nil)
}

func (q *Queue) enqueue(ctx context.Context, subjectID int64, kind Kind, payload []byte) (*PendingOperation, error) {
	op := &PendingOperation{
		QueueID:   uuid.New().String(),
		SubjectID: subjectID,
		Kind:      kind,
		CreatedAt: time.Now().UnixMilli(),
		Payload:   payload,
	}

	query := `INSERT INTO pending_operations (queue_id, subject_id, kind, created_at, payload)
			  VALUES (?, ?, ?, ?, ?)`

	_, err := q.db.DB.ExecContext(ctx, query,
		op.QueueID,
		op.SubjectID,
		string(op.Kind),
		op.CreatedAt,
		op.Payload,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s for subject %d: %w", kind, subjectID, err)
	}

	logger.Log.Debug("Enqueued pending operation",
		zap.String("queueID", op.QueueID),
		zap.String("kind", string(kind)),
		zap.Int64("subjectID", subjectID),
	)

	select {
	case q.notify <- struct{}{}:
	default:
	}

	return op, nil
}

// ListPending returns all entries in replay (FIFO) order.
func (q *Queue) ListPending(ctx context.Context) ([]*PendingOperation, error) {
	query := `SELECT queue_id, subject_id, kind, created_at, payload
			  FROM pending_operations ORDER BY created_at, rowid`

	rows, err := q.db.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending operations: %w", err)
	}
	defer rows.Close()

	var ops []*PendingOperation
	for rows.Next() {
		var op PendingOperation
		var kind string
		var payload sql.RawBytes

		if err := rows.Scan(&op.QueueID, &op.SubjectID, &kind, &op.CreatedAt, &payload); err != nil {
			return nil, err
		}
		op.Kind = Kind(kind)
		if payload != nil {
			op.Payload = append([]byte(nil), payload...)
		}
		ops = append(ops, &op)
	}

	return ops, rows.Err()
}

// Remove drops an entry after confirmed remote success or supersession.
// Removing an absent entry is a no-op.
func (q *Queue) Remove(ctx context.Context, queueID string) error {
	res, err := q.db.DB.ExecContext(ctx, `DELETE FROM pending_operations WHERE queue_id = ?`, queueID)
	if err != nil {
		return fmt.Errorf("failed to remove queue entry %s: %w", queueID, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		logger.Log.Debug("Removed queue entry", zap.String("queueID", queueID))
	}
	return nil
}

func (q *Queue) Count(ctx context.Context) (int, error) {
	var n int
	err := q.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_operations`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending operations: %w", err)
	}
	return n, nil
}

// DecodeGame unpacks the record snapshot carried by a CREATE/UPDATE entry.
func (op *PendingOperation) DecodeGame() (*store.Game, error) {
	if op.Payload == nil {
		return nil, fmt.Errorf("queue entry %s has no payload", op.QueueID)
	}
	var g store.Game
	if err := json.Unmarshal(op.Payload, &g); err != nil {
		return nil, fmt.Errorf("failed to decode queue entry %s: %w", op.QueueID, err)
	}
	return &g, nil
}
