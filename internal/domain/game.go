package domain

import "time"

// ArchivedGame is a finished game as stored in the archive.
type ArchivedGame struct {
	ID           int64
	GameUUID     string
	Player       string
	EngineName   string
	EngineWhite  bool
	TimeControl  time.Duration
	Increment    time.Duration
	Result       string
	ResultMethod string
	MovesUCI     []string
	MovesSAN     []string
	PGN          string
	StartedAt    time.Time
	EndedAt      time.Time
	Duration     time.Duration
}

// PlayerStats is the running score of one player against the engines.
type PlayerStats struct {
	Player       string
	GamesPlayed  int
	Wins         int
	Losses       int
	Draws        int
	LastEngine   string
	LastPlayedAt time.Time
	UpdatedAt    time.Time
}

// Apply folds one finished game into the stats.
func (s *PlayerStats) Apply(g *ArchivedGame) {
	s.GamesPlayed++
	switch PlayerOutcome(g) {
	case "win":
		s.Wins++
	case "loss":
		s.Losses++
	case "draw":
		s.Draws++
	}
	s.LastEngine = g.EngineName
	s.LastPlayedAt = g.EndedAt
}

// PlayerOutcome maps a PGN result to win, loss or draw from the player's side.
// Aborted games report "".
func PlayerOutcome(g *ArchivedGame) string {
	switch g.Result {
	case "1/2-1/2":
		return "draw"
	case "1-0":
		if g.EngineWhite {
			return "loss"
		}
		return "win"
	case "0-1":
		if g.EngineWhite {
			return "win"
		}
		return "loss"
	default:
		return ""
	}
}
