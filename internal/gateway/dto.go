package gateway

import (
	"game-sync-client/internal/store"
)

// GameDTO is the wire shape of a game record.
type GameDTO struct {
	ID        *int64 `json:"id,omitempty"`
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

// apiResponse is the server's response envelope.
type apiResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message"`
}

func gameToDTO(g *store.Game) GameDTO {
	return GameDTO{
		ID:        g.ServerID,
		HomeTeam:  g.HomeTeam,
		AwayTeam:  g.AwayTeam,
		HomeScore: g.HomeScore,
		AwayScore: g.AwayScore,
		Date:      g.Date,
		Location:  g.Location,
		SportType: g.SportType,
		Status:    g.Status,
		Notes:     g.Notes,
	}
}

// dtoToGame maps a server record into a fresh local record. The local id is
// zero until the store assigns one.
func dtoToGame(dto GameDTO) *store.Game {
	return &store.Game{
		HomeTeam:  dto.HomeTeam,
		AwayTeam:  dto.AwayTeam,
		HomeScore: dto.HomeScore,
		AwayScore: dto.AwayScore,
		Date:      dto.Date,
		Location:  dto.Location,
		SportType: dto.SportType,
		Status:    dto.Status,
		Notes:     dto.Notes,
		ServerID:  dto.ID,
	}
}
