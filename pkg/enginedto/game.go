package enginedto

import "time"

type GameStatus string

const (
	StatusActive   GameStatus = "ACTIVE"
	StatusFinished GameStatus = "FINISHED"
	StatusAborted  GameStatus = "ABORTED"
)

// GameRecord is the live record of one game against the engine. It is kept
// as JSON in Redis while the game runs and archived when it ends.
type GameRecord struct {
	ID           string        `json:"id"`
	Status       GameStatus    `json:"status"`
	Player       string        `json:"player"`
	Engine       string        `json:"engine"`
	EngineWhite  bool          `json:"engine_white"`
	TimeControl  time.Duration `json:"time_control"`
	Increment    time.Duration `json:"increment"`
	MovesUCI     []string      `json:"moves_uci"`
	MovesSAN     []string      `json:"moves_san"`
	FEN          string        `json:"fen"`
	Result       string        `json:"result,omitempty"`
	ResultMethod string        `json:"result_method,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      time.Time     `json:"ended_at,omitempty"`
	ArchiveID    int64         `json:"archive_id,omitempty"`
}

// Finished reports whether the game reached a result or was aborted.
func (g *GameRecord) Finished() bool {
	return g != nil && g.Status != StatusActive
}
