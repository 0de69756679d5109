package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"game-sync-client/internal/logger"
	"game-sync-client/internal/queue"
	"game-sync-client/internal/store"
)

// Connectivity is the point-in-time check the gateway consults before going
// to the network.
type Connectivity interface {
	IsConnectedNow() bool
}

// Result is the outcome of a mutation. Deferred means the operation could not
// reach the server and was queued; the caller should still treat the local
// write as successful.
type Result struct {
	Game     *store.Game
	Deferred bool
}

// Gateway performs request/response calls against the remote game service and
// defers mutations to the pending queue when the service is unreachable.
type Gateway struct {
	baseURL string
	client  *http.Client
	net     Connectivity
	queue   *queue.Queue
}

func NewGateway(baseURL string, timeout time.Duration, net Connectivity, q *queue.Queue) *Gateway {
	return &Gateway{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		net:     net,
		queue:   q,
	}
}

// FetchAll retrieves the server's full record set. Failure is recoverable:
// the caller continues with local-only data.
func (g *Gateway) FetchAll(ctx context.Context) ([]*store.Game, error) {
	var envelope apiResponse[[]GameDTO]
	if err := g.do(ctx, http.MethodGet, "/api/games", nil, &envelope); err != nil {
		return nil, err
	}

	games := make([]*store.Game, 0, len(envelope.Data))
	for _, dto := range envelope.Data {
		games = append(games, dtoToGame(dto))
	}

	logger.Log.Info("Fetched games from server", zap.Int("count", len(games)))
	return games, nil
}

// Get retrieves a single record by server id.
func (g *Gateway) Get(ctx context.Context, serverID int64) (*store.Game, error) {
	var envelope apiResponse[GameDTO]
	if err := g.do(ctx, http.MethodGet, fmt.Sprintf("/api/games/%d", serverID), nil, &envelope); err != nil {
		return nil, err
	}
	return dtoToGame(envelope.Data), nil
}

// Create pushes a new record to the server. Offline or on a recoverable
// failure it enqueues a CREATE and reports a deferred success; rejections
// surface without queueing.
func (g *Gateway) Create(ctx context.Context, game *store.Game) (*Result, error) {
	if !g.net.IsConnectedNow() {
		logger.Log.Debug("Offline, deferring CREATE", zap.Int64("localID", game.LocalID))
		if _, err := g.queue.EnqueueCreate(ctx, game); err != nil {
			return nil, err
		}
		return &Result{Game: game, Deferred: true}, nil
	}

	created, err := g.createRemote(ctx, game)
	if err != nil {
		if !IsRecoverable(err) {
			return nil, err
		}
		logger.Log.Warn("CREATE failed, deferring to queue",
			zap.Int64("localID", game.LocalID), zap.Error(err))
		if _, qerr := g.queue.EnqueueCreate(ctx, game); qerr != nil {
			return nil, qerr
		}
		return &Result{Game: game, Deferred: true}, nil
	}

	return &Result{Game: created}, nil
}

// Update pushes changed fields for a record that already has a server id.
func (g *Gateway) Update(ctx context.Context, game *store.Game) (*Result, error) {
	if game.ServerID == nil {
		return nil, ErrNotSynced
	}
	serverID := *game.ServerID

	if !g.net.IsConnectedNow() {
		logger.Log.Debug("Offline, deferring UPDATE", zap.Int64("serverID", serverID))
		if _, err := g.queue.EnqueueUpdate(ctx, game, serverID); err != nil {
			return nil, err
		}
		return &Result{Game: game, Deferred: true}, nil
	}

	updated, err := g.updateRemote(ctx, game, serverID)
	if err != nil {
		if !IsRecoverable(err) {
			return nil, err
		}
		logger.Log.Warn("UPDATE failed, deferring to queue",
			zap.Int64("serverID", serverID), zap.Error(err))
		if _, qerr := g.queue.EnqueueUpdate(ctx, game, serverID); qerr != nil {
			return nil, qerr
		}
		return &Result{Game: game, Deferred: true}, nil
	}

	return &Result{Game: updated}, nil
}

// Delete removes a record remotely by server id.
func (g *Gateway) Delete(ctx context.Context, serverID int64) (*Result, error) {
	if !g.net.IsConnectedNow() {
		logger.Log.Debug("Offline, deferring DELETE", zap.Int64("serverID", serverID))
		if _, err := g.queue.EnqueueDelete(ctx, serverID); err != nil {
			return nil, err
		}
		return &Result{Deferred: true}, nil
	}

	if err := g.deleteRemote(ctx, serverID); err != nil {
		if !IsRecoverable(err) {
			return nil, err
		}
		logger.Log.Warn("DELETE failed, deferring to queue",
			zap.Int64("serverID", serverID), zap.Error(err))
		if _, qerr := g.queue.EnqueueDelete(ctx, serverID); qerr != nil {
			return nil, qerr
		}
		return &Result{Deferred: true}, nil
	}

	return &Result{}, nil
}

func (g *Gateway) createRemote(ctx context.Context, game *store.Game) (*store.Game, error) {
	dto := gameToDTO(game)
	dto.ID = nil // the server assigns ids

	var envelope apiResponse[GameDTO]
	if err := g.do(ctx, http.MethodPost, "/api/games", dto, &envelope); err != nil {
		return nil, err
	}

	created := dtoToGame(envelope.Data)
	if created.ServerID == nil {
		return nil, fmt.Errorf("server response missing id for created game")
	}

	logger.Log.Info("Created game on server", zap.Int64("serverID", *created.ServerID))
	return created, nil
}

func (g *Gateway) updateRemote(ctx context.Context, game *store.Game, serverID int64) (*store.Game, error) {
	var envelope apiResponse[GameDTO]
	err := g.do(ctx, http.MethodPut, fmt.Sprintf("/api/games/%d", serverID), gameToDTO(game), &envelope)
	if err != nil {
		return nil, err
	}

	logger.Log.Info("Updated game on server", zap.Int64("serverID", serverID))
	return dtoToGame(envelope.Data), nil
}

func (g *Gateway) deleteRemote(ctx context.Context, serverID int64) error {
	var envelope apiResponse[map[string]int64]
	err := g.do(ctx, http.MethodDelete, fmt.Sprintf("/api/games/%d", serverID), nil, &envelope)
	if err != nil {
		return err
	}

	logger.Log.Info("Deleted game on server", zap.Int64("serverID", serverID))
	return nil
}

func (g *Gateway) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Err: err}
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		msg := serverMessage(raw)
		return &RejectedError{StatusCode: resp.StatusCode, Message: msg}
	}
	if resp.StatusCode >= 500 {
		return &TransportError{Err: fmt.Errorf("server error %d", resp.StatusCode)}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func serverMessage(raw []byte) string {
	var envelope apiResponse[json.RawMessage]
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Message != "" {
		return envelope.Message
	}
	return "request rejected"
}
