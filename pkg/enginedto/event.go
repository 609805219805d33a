package enginedto

// EventKind names the payload carried by an Event.
type EventKind string

const (
	EventGameStarted  EventKind = "game_started"
	EventMove         EventKind = "move"
	EventGameOver     EventKind = "game_over"
	EventEngineFailed EventKind = "engine_failed"
)

// Event is the envelope relayed to remote listeners.
type Event struct {
	Kind  EventKind   `json:"kind"`
	Move  *MoveEvent  `json:"move,omitempty"`
	Game  *GameRecord `json:"game,omitempty"`
	Error string      `json:"error,omitempty"`
}
