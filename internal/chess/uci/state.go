package uci

import (
	"fmt"
	"strings"
	"sync"
)

const (
	positionPreamble       = "position startpos"
	movesKeyword           = " moves"
	DefaultMaxHistoryBytes = 8192
)

// GameState is the move history and turn bookkeeping of one session. Every
// mutation holds mu, so engine and user moves never interleave.
type GameState struct {
	mu         sync.Mutex
	clock      Clock
	maxBytes   int
	history    []byte
	moves      []string
	ply        uint
	side       Side
	pondering  bool
	engineName string
}

type GameSnapshot struct {
	Position   string
	Moves      []string
	Ply        uint
	SideToMove Side
	Pondering  bool
	EngineName string
}

func NewGameState(clock Clock, maxBytes int) *GameState {
	if clock == nil {
		clock = nopClock{}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxHistoryBytes
	}
	g := &GameState{clock: clock, maxBytes: maxBytes}
	g.resetLocked()
	return g
}

func (g *GameState) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetLocked()
}

func (g *GameState) resetLocked() {
	g.history = append(g.history[:0], positionPreamble...)
	g.moves = g.moves[:0]
	g.ply = 1
	g.side = First
	g.pondering = false
}

// Append records one move and drives the clock for the side now to move. It
// returns the ply of the move just made and the side that made it.
func (g *GameState) Append(move string) (uint, Side, error) {
	move = strings.TrimSpace(move)
	if move == "" || strings.ContainsAny(move, " \t\r\n") {
		return 0, First, fmt.Errorf("append move %q: %w", move, ErrProtocolMismatch)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	extra := 1 + len(move)
	if len(g.moves) == 0 {
		extra += len(movesKeyword)
	}
	if len(g.history)+extra > g.maxBytes {
		return 0, g.side, fmt.Errorf("%w: %d+%d bytes exceeds %d at ply %d", ErrStateOverflow, len(g.history), extra, g.maxBytes, g.ply)
	}

	if len(g.moves) == 0 {
		g.history = append(g.history, movesKeyword...)
	}
	g.history = append(g.history, ' ')
	g.history = append(g.history, move...)
	g.moves = append(g.moves, move)

	made := g.ply
	mover := g.side
	g.side = g.side.Other()
	g.ply++
	if made == 1 {
		g.clock.StartClock(g.side)
	} else {
		g.clock.SwitchClock(g.side)
	}
	return made, mover, nil
}

func (g *GameState) RenderPosition() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return string(g.history)
}

// SpeculativePosition is the current position with the expected reply played.
func (g *GameState) SpeculativePosition(ponder string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var sb strings.Builder
	sb.Grow(len(g.history) + len(movesKeyword) + len(ponder) + 1)
	sb.Write(g.history)
	if len(g.moves) == 0 {
		sb.WriteString(movesKeyword)
	}
	sb.WriteByte(' ')
	sb.WriteString(ponder)
	return sb.String()
}

func (g *GameState) SetPondering(v bool) {
	g.mu.Lock()
	g.pondering = v
	g.mu.Unlock()
}

func (g *GameState) Pondering() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pondering
}

// clearPondering resets the flag and reports whether it was set.
func (g *GameState) clearPondering() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	was := g.pondering
	g.pondering = false
	return was
}

func (g *GameState) SetEngineName(name string) {
	g.mu.Lock()
	g.engineName = name
	g.mu.Unlock()
}

func (g *GameState) Snapshot() GameSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GameSnapshot{
		Position:   string(g.history),
		Moves:      append([]string(nil), g.moves...),
		Ply:        g.ply,
		SideToMove: g.side,
		Pondering:  g.pondering,
		EngineName: g.engineName,
	}
}
