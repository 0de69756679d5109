package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"game-sync-client/internal/gateway"
	"game-sync-client/internal/store"
	syncpkg "game-sync-client/internal/sync"
)

// Handler exposes the data operations a presentation layer invokes, plus the
// sync controls. It is the process's only UI-facing surface.
type Handler struct {
	coordinator *syncpkg.Coordinator
}

func NewHandler(coordinator *syncpkg.Coordinator) *Handler {
	return &Handler{
		coordinator: coordinator,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/games", h.ListGames)
		r.Post("/games", h.AddGame)
		r.Get("/games/{localID}", h.GetGame)
		r.Put("/games/{localID}", h.UpdateGame)
		r.Delete("/games/{localID}", h.DeleteGame)

		r.Get("/sync/status", h.SyncStatus)
		r.Post("/sync/trigger", h.TriggerSync)
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// gameView is the JSON shape served to the presentation layer. It exposes the
// sync state the UI observes alongside the domain fields.
type gameView struct {
	LocalID     int64  `json:"localId"`
	ServerID    *int64 `json:"serverId,omitempty"`
	HomeTeam    string `json:"homeTeam"`
	AwayTeam    string `json:"awayTeam"`
	HomeScore   int    `json:"homeScore"`
	AwayScore   int    `json:"awayScore"`
	Date        int64  `json:"date"`
	Location    string `json:"location"`
	SportType   string `json:"sportType"`
	Status      string `json:"status"`
	Notes       string `json:"notes"`
	PendingSync bool   `json:"pendingSync"`
	PendingOp   string `json:"pendingOp,omitempty"`
}

func toView(g *store.Game) gameView {
	return gameView{
		LocalID:     g.LocalID,
		ServerID:    g.ServerID,
		HomeTeam:    g.HomeTeam,
		AwayTeam:    g.AwayTeam,
		HomeScore:   g.HomeScore,
		AwayScore:   g.AwayScore,
		Date:        g.Date,
		Location:    g.Location,
		SportType:   g.SportType,
		Status:      g.Status,
		Notes:       g.Notes,
		PendingSync: g.PendingSync,
		PendingOp:   g.PendingOp,
	}
}

func fromView(v gameView) *store.Game {
	return &store.Game{
		LocalID:   v.LocalID,
		HomeTeam:  v.HomeTeam,
		AwayTeam:  v.AwayTeam,
		HomeScore: v.HomeScore,
		AwayScore: v.AwayScore,
		Date:      v.Date,
		Location:  v.Location,
		SportType: v.SportType,
		Status:    v.Status,
		Notes:     v.Notes,
		ServerID:  v.ServerID,
	}
}

func (h *Handler) ListGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.coordinator.ListGames(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	views := make([]gameView, 0, len(games))
	for _, g := range games {
		views = append(views, toView(g))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	localID, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	game, err := h.coordinator.GetGame(r.Context(), localID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toView(game))
}

func (h *Handler) AddGame(w http.ResponseWriter, r *http.Request) {
	var v gameView
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	game := fromView(v)
	game.ServerID = nil // server ids are assigned remotely

	added, err := h.coordinator.AddGame(r.Context(), game)
	if err != nil {
		status, ok := rejectionStatus(err)
		if !ok || added == nil {
			http.Error(w, err.Error(), status)
			return
		}
		// Saved locally, rejected remotely: the record exists but stays
		// unsynced. Surface both.
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"game":    toView(added),
			"warning": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusCreated, toView(added))
}

func (h *Handler) UpdateGame(w http.ResponseWriter, r *http.Request) {
	localID, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	current, err := h.coordinator.GetGame(r.Context(), localID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var v gameView
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	game := fromView(v)
	game.LocalID = localID
	game.ServerID = current.ServerID

	if err := h.coordinator.UpdateGame(r.Context(), game); err != nil {
		status, _ := rejectionStatus(err)
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, toView(game))
}

func (h *Handler) DeleteGame(w http.ResponseWriter, r *http.Request) {
	localID, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.coordinator.DeleteGame(r.Context(), localID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}
		status, _ := rejectionStatus(err)
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"localId": localID})
}

func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := h.coordinator.PendingCount(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	records, err := h.coordinator.PendingRecords(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         h.coordinator.GetStatus(),
		"pending":        pending,
		"pendingRecords": records,
	})
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	h.coordinator.TriggerReplay()
	writeJSON(w, http.StatusOK, map[string]string{"status": "triggered"})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "localID"), 10, 64)
}

func rejectionStatus(err error) (int, bool) {
	var re *gateway.RejectedError
	if errors.As(err, &re) {
		return http.StatusBadGateway, true
	}
	return http.StatusInternalServerError, false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
