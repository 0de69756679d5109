package push

import (
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	Create MessageType = "CREATE"
	Update MessageType = "UPDATE"
	Delete MessageType = "DELETE"
)

// GamePayload is the record shape carried by CREATE/UPDATE frames. DELETE
// frames carry only the id.
type GamePayload struct {
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

// Message is one change notification from the server's broadcast stream.
type Message struct {
	Type MessageType  `json:"type"`
	Data *GamePayload `json:"data"`
}

func (m Message) String() string {
	id := int64(0)
	if m.Data != nil {
		id = m.Data.ID
	}
	return fmt.Sprintf("[%s] id=%d", m.Type, id)
}

func parseMessage(frame []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(frame, &m); err != nil {
		return nil, fmt.Errorf("malformed push frame: %w", err)
	}
	switch m.Type {
	case Create, Update, Delete:
	default:
		return nil, fmt.Errorf("unknown push message type %q", m.Type)
	}
	if m.Data == nil {
		return nil, fmt.Errorf("push frame %s missing data", m.Type)
	}
	return &m, nil
}
