package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"game-sync-client/internal/database"
	"game-sync-client/internal/logger"
)

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("record not found")

const gameColumns = `local_id, home_team, away_team, home_score, away_score, date, location, sport_type, status, notes, server_id, pending_sync, pending_op`

type SQLiteStore struct {
	db *database.Database
}

func NewSQLiteStore(db *database.Database) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]*Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games ORDER BY date DESC`

	rows, err := s.db.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var games []*Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}

	return games, rows.Err()
}

func (s *SQLiteStore) GetByLocalID(ctx context.Context, localID int64) (*Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE local_id = ?`
	return s.getOne(ctx, query, localID)
}

func (s *SQLiteStore) GetByServerID(ctx context.Context, serverID int64) (*Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE server_id = ?`
	return s.getOne(ctx, query, serverID)
}

func (s *SQLiteStore) getOne(ctx context.Context, query string, arg interface{}) (*Game, error) {
	row := s.db.DB.QueryRowContext(ctx, query, arg)
	g, err := scanGame(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, game *Game) (*Game, error) {
	query := `INSERT INTO games (home_team, away_team, home_score, away_score, date, location, sport_type, status, notes, server_id, pending_sync, pending_op)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := s.db.DB.ExecContext(ctx, query,
		game.HomeTeam,
		game.AwayTeam,
		game.HomeScore,
		game.AwayScore,
		game.Date,
		game.Location,
		game.SportType,
		game.Status,
		game.Notes,
		nullableID(game.ServerID),
		boolToInt(game.PendingSync),
		nullableOp(game.PendingOp),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert game: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted id: %w", err)
	}

	inserted := *game
	inserted.LocalID = id

	logger.Log.Debug("Inserted game", zap.Int64("localID", id))
	return &inserted, nil
}

func (s *SQLiteStore) Update(ctx context.Context, game *Game) error {
	query := `UPDATE games SET home_team = ?, away_team = ?, home_score = ?, away_score = ?, date = ?, location = ?, sport_type = ?, status = ?, notes = ?, pending_sync = ?, pending_op = ?
			  WHERE local_id = ?`

	res, err := s.db.DB.ExecContext(ctx, query,
		game.HomeTeam,
		game.AwayTeam,
		game.HomeScore,
		game.AwayScore,
		game.Date,
		game.Location,
		game.SportType,
		game.Status,
		game.Notes,
		boolToInt(game.PendingSync),
		nullableOp(game.PendingOp),
		game.LocalID,
	)
	if err != nil {
		return fmt.Errorf("failed to update game %d: %w", game.LocalID, err)
	}

	return requireRow(res)
}

func (s *SQLiteStore) Delete(ctx context.Context, localID int64) error {
	res, err := s.db.DB.ExecContext(ctx, `DELETE FROM games WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to delete game %d: %w", localID, err)
	}
	return requireRow(res)
}

// SetServerLink records the server id for a row and clears its sync flags.
// The server id is written once; reconciliation depends on it never changing.
func (s *SQLiteStore) SetServerLink(ctx context.Context, localID, serverID int64) error {
	query := `UPDATE games SET server_id = ?, pending_sync = 0, pending_op = NULL WHERE local_id = ?`

	res, err := s.db.DB.ExecContext(ctx, query, serverID, localID)
	if err != nil {
		return fmt.Errorf("failed to link game %d to server id %d: %w", localID, serverID, err)
	}

	if err := requireRow(res); err != nil {
		return err
	}

	logger.Log.Debug("Linked game to server id",
		zap.Int64("localID", localID),
		zap.Int64("serverID", serverID),
	)
	return nil
}

func (s *SQLiteStore) SetPending(ctx context.Context, localID int64, op string) error {
	query := `UPDATE games SET pending_sync = 1, pending_op = ? WHERE local_id = ?`

	res, err := s.db.DB.ExecContext(ctx, query, op, localID)
	if err != nil {
		return fmt.Errorf("failed to mark game %d pending: %w", localID, err)
	}
	return requireRow(res)
}

// SaveBatchFromRemote merges a server snapshot into the store. Rows already
// linked to an incoming server id are overwritten in place, keeping their
// local id; unknown server ids insert as new rows. Running the same batch
// twice leaves the store unchanged.
func (s *SQLiteStore) SaveBatchFromRemote(ctx context.Context, games []*Game) error {
	return s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		for _, g := range games {
			if g.ServerID == nil {
				continue
			}

			var localID int64
			err := tx.QueryRowContext(ctx, `SELECT local_id FROM games WHERE server_id = ?`, *g.ServerID).Scan(&localID)

			switch {
			case err == sql.ErrNoRows:
				_, err = tx.ExecContext(ctx,
					`INSERT INTO games (home_team, away_team, home_score, away_score, date, location, sport_type, status, notes, server_id, pending_sync, pending_op)
					 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL)`,
					g.HomeTeam, g.AwayTeam, g.HomeScore, g.AwayScore, g.Date,
					g.Location, g.SportType, g.Status, g.Notes, *g.ServerID,
				)
				if err != nil {
					return fmt.Errorf("failed to insert remote game %d: %w", *g.ServerID, err)
				}

			case err != nil:
				return fmt.Errorf("failed to look up server id %d: %w", *g.ServerID, err)

			default:
				_, err = tx.ExecContext(ctx,
					`UPDATE games SET home_team = ?, away_team = ?, home_score = ?, away_score = ?, date = ?, location = ?, sport_type = ?, status = ?, notes = ?
					 WHERE local_id = ?`,
					g.HomeTeam, g.AwayTeam, g.HomeScore, g.AwayScore, g.Date,
					g.Location, g.SportType, g.Status, g.Notes, localID,
				)
				if err != nil {
					return fmt.Errorf("failed to merge remote game %d: %w", *g.ServerID, err)
				}
			}
		}
		return nil
	})
}

// PendingCount reports how many rows still await remote acknowledgement.
func (s *SQLiteStore) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM games WHERE pending_sync = 1`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending games: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGame(row rowScanner) (*Game, error) {
	var g Game
	var notes sql.NullString
	var serverID sql.NullInt64
	var pendingSync int
	var pendingOp sql.NullString

	err := row.Scan(
		&g.LocalID,
		&g.HomeTeam,
		&g.AwayTeam,
		&g.HomeScore,
		&g.AwayScore,
		&g.Date,
		&g.Location,
		&g.SportType,
		&g.Status,
		&notes,
		&serverID,
		&pendingSync,
		&pendingOp,
	)
	if err != nil {
		return nil, err
	}

	g.Notes = notes.String
	if serverID.Valid {
		id := serverID.Int64
		g.ServerID = &id
	}
	g.PendingSync = pendingSync != 0
	g.PendingOp = pendingOp.String

	return &g, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func nullableOp(op string) sql.NullString {
	if op == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: op, Valid: true}
}
