package uci

import (
	"time"

	nchess "github.com/corentings/chess/v2"
)

// Side is the player to move. First moves from the start position.
type Side int

const (
	First Side = iota
	Second
)

func (s Side) Other() Side {
	if s == First {
		return Second
	}
	return First
}

func (s Side) String() string {
	if s == First {
		return "white"
	}
	return "black"
}

type PieceType = nchess.PieceType

// GameHost is the game-session collaborator outside the adapter.
type GameHost interface {
	StartGame(player, engineName string, timeControl time.Duration)
	RecordLastMove(move string)
	DecodePromotionChar(c byte) PieceType
}

// Clock drives the players' clocks. SwitchClock stops the running clock and
// starts the one for side.
type Clock interface {
	StartClock(side Side)
	SwitchClock(side Side)
	RemainingTime(side Side) time.Duration
}

// EngineMove is published after every accepted best move.
type EngineMove struct {
	Move      string
	Promotion PieceType
	Ponder    string
	Ply       uint // ply of this move, 1 for the first move of the game
	Side      Side
}

// Observer receives engine results. Callbacks run on the reading flow and
// must return promptly without calling back into the Adapter.
type Observer interface {
	EngineMove(ev EngineMove)
	NoMove()
	EngineFailed(err error)
}

type Collaborators struct {
	Host     GameHost
	Clock    Clock
	Observer Observer
}

func (c Collaborators) withDefaults() Collaborators {
	if c.Host == nil {
		c.Host = nopHost{}
	}
	if c.Clock == nil {
		c.Clock = nopClock{}
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	return c
}

// DecodePromotion maps a promotion letter of either case to a piece type.
func DecodePromotion(c byte) PieceType {
	switch c &^ 0x20 {
	case 'Q':
		return nchess.Queen
	case 'R':
		return nchess.Rook
	case 'B':
		return nchess.Bishop
	case 'N':
		return nchess.Knight
	default:
		return nchess.NoPieceType
	}
}

type nopHost struct{}

func (nopHost) StartGame(string, string, time.Duration) {}
func (nopHost) RecordLastMove(string)                   {}
func (nopHost) DecodePromotionChar(c byte) PieceType    { return DecodePromotion(c) }

type nopClock struct{}

func (nopClock) StartClock(Side)                  {}
func (nopClock) SwitchClock(Side)                 {}
func (nopClock) RemainingTime(Side) time.Duration { return 0 }

type nopObserver struct{}

func (nopObserver) EngineMove(EngineMove) {}
func (nopObserver) NoMove()               {}
func (nopObserver) EngineFailed(error)    {}
