package store

import (
	"context"
)

type Store interface {
	// Records
	ListAll(ctx context.Context) ([]*Game, error)
	GetByLocalID(ctx context.Context, localID int64) (*Game, error)
	GetByServerID(ctx context.Context, serverID int64) (*Game, error)
	Insert(ctx context.Context, game *Game) (*Game, error)
	Update(ctx context.Context, game *Game) error
	Delete(ctx context.Context, localID int64) error

	// Sync bookkeeping
	SetServerLink(ctx context.Context, localID, serverID int64) error
	SetPending(ctx context.Context, localID int64, op string) error
	SaveBatchFromRemote(ctx context.Context, games []*Game) error
	PendingCount(ctx context.Context) (int, error)
}
