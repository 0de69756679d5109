package store

// Operation kinds recorded on a row while a mutation awaits remote acknowledgement.
const (
	OpCreate = "CREATE"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// Game is a locally stored game record. LocalID is assigned by the store and
// stable for the row's lifetime. ServerID is nil until the first successful
// remote create and never changes once set.
type Game struct {
	LocalID     int64
	HomeTeam    string
	AwayTeam    string
	HomeScore   int
	AwayScore   int
	Date        int64 // unix milliseconds, matches the wire format
	Location    string
	SportType   string
	Status      string
	Notes       string
	ServerID    *int64
	PendingSync bool
	PendingOp   string
}

// Synced reports whether the record has been acknowledged by the server.
func (g *Game) Synced() bool {
	return g.ServerID != nil && !g.PendingSync
}
