package enginedto

import "time"

// MoveBy tells who produced a move.
type MoveBy string

const (
	MoveByPlayer MoveBy = "player"
	MoveByEngine MoveBy = "engine"
)

// MoveEvent is published for every move accepted into a game.
type MoveEvent struct {
	GameID  string    `json:"game_id"`
	Ply     uint      `json:"ply"`
	Side    string    `json:"side"`
	By      MoveBy    `json:"by"`
	UCI     string    `json:"uci"`
	SAN     string    `json:"san,omitempty"`
	Ponder  string    `json:"ponder,omitempty"`
	FEN     string    `json:"fen"`
	WhiteMS int64     `json:"white_ms"`
	BlackMS int64     `json:"black_ms"`
	At      time.Time `json:"at"`
}

// RemoteMove is a player move received from a remote UI.
type RemoteMove struct {
	GameID string `json:"game_id"`
	UCI    string `json:"uci"`
}
