// Package server is the reference game service: the REST surface the gateway
// talks to plus the websocket stream the push channel consumes. It exists for
// local development and for exercising the sync engine against a real
// transport in tests.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"game-sync-client/internal/logger"
)

// GameRecord is the server-side record shape.
type GameRecord struct {
	ID        int64  `json:"id"`
	HomeTeam  string `json:"homeTeam"`
	AwayTeam  string `json:"awayTeam"`
	HomeScore int    `json:"homeScore"`
	AwayScore int    `json:"awayScore"`
	Date      int64  `json:"date"`
	Location  string `json:"location"`
	SportType string `json:"sportType"`
	Status    string `json:"status"`
	Notes     string `json:"notes"`
}

type Server struct {
	mu     sync.Mutex
	games  []GameRecord
	nextID int64
	hub    *Hub
}

func NewServer() *Server {
	return &Server{
		nextID: 1,
		hub:    NewHub(),
	}
}

func (s *Server) Close() {
	s.hub.Close()
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.HealthCheck)
	r.Get("/api/games", s.ListGames)
	r.Post("/api/games", s.CreateGame)
	r.Get("/api/games/{id}", s.GetGame)
	r.Put("/api/games/{id}", s.UpdateGame)
	r.Delete("/api/games/{id}", s.DeleteGame)

	r.Get("/", s.hub.HandleWebSocket)

	return r
}

func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "Server is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) ListGames(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	games := make([]GameRecord, len(s.games))
	copy(games, s.games)
	s.mu.Unlock()

	respond(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    games,
	})
}

func (s *Server) GetGame(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, http.StatusBadRequest, "Invalid game id")
		return
	}

	s.mu.Lock()
	game, ok := s.find(id)
	s.mu.Unlock()

	if !ok {
		fail(w, http.StatusNotFound, "Game not found")
		return
	}

	respond(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    game,
	})
}

func (s *Server) CreateGame(w http.ResponseWriter, r *http.Request) {
	var in GameRecord
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if in.HomeTeam == "" || in.AwayTeam == "" || in.Location == "" {
		fail(w, http.StatusBadRequest, "Missing required fields: homeTeam, awayTeam, location")
		return
	}

	if in.Date == 0 {
		in.Date = time.Now().UnixMilli()
	}
	if in.SportType == "" {
		in.SportType = "Football"
	}
	if in.Status == "" {
		in.Status = "Scheduled"
	}

	s.mu.Lock()
	in.ID = s.nextID
	s.nextID++
	s.games = append(s.games, in)
	s.mu.Unlock()

	logger.Log.Info("Created game", zap.Int64("id", in.ID))
	s.hub.Broadcast("CREATE", in)

	respond(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    in,
	})
}

func (s *Server) UpdateGame(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, http.StatusBadRequest, "Invalid game id")
		return
	}

	var in GameRecord
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if in.HomeTeam == "" || in.AwayTeam == "" || in.Location == "" {
		fail(w, http.StatusBadRequest, "Missing required fields: homeTeam, awayTeam, location")
		return
	}

	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		fail(w, http.StatusNotFound, "Game not found")
		return
	}
	in.ID = id
	if in.Date == 0 {
		in.Date = s.games[idx].Date
	}
	s.games[idx] = in
	s.mu.Unlock()

	logger.Log.Info("Updated game", zap.Int64("id", id))
	s.hub.Broadcast("UPDATE", in)

	respond(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    in,
	})
}

func (s *Server) DeleteGame(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, http.StatusBadRequest, "Invalid game id")
		return
	}

	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		fail(w, http.StatusNotFound, "Game not found")
		return
	}
	s.games = append(s.games[:idx], s.games[idx+1:]...)
	s.mu.Unlock()

	logger.Log.Info("Deleted game", zap.Int64("id", id))
	s.hub.Broadcast("DELETE", map[string]int64{"id": id})

	respond(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Game deleted successfully",
		"data":    map[string]int64{"id": id},
	})
}

func (s *Server) find(id int64) (GameRecord, bool) {
	if idx := s.indexOf(id); idx >= 0 {
		return s.games[idx], true
	}
	return GameRecord{}, false
}

func (s *Server) indexOf(id int64) int {
	for i, g := range s.games {
		if g.ID == id {
			return i
		}
	}
	return -1
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func fail(w http.ResponseWriter, status int, message string) {
	respond(w, status, map[string]interface{}{
		"success": false,
		"message": message,
	})
}
