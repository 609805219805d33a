package game

import "errors"

var (
	ErrIllegalMove    = errors.New("illegal move")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrGameOver       = errors.New("game is over")
	ErrNoActiveGame   = errors.New("no active game")
	ErrGameInProgress = errors.New("game already in progress")
)
