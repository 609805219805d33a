package game

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/cheese-uci/internal/chess/uci"
)

var (
	notationUCI = nchess.UCINotation{}
	notationSAN = nchess.AlgebraicNotation{}
)

// board mirrors the adapter's move history on a full rules model.
type board struct {
	game *nchess.Game
}

func newBoard() *board {
	return &board{game: nchess.NewGame()}
}

func (b *board) turn() uci.Side {
	if b.game.Position().Turn() == nchess.Black {
		return uci.Second
	}
	return uci.First
}

// normalize accepts SAN or coordinate notation and returns the move in
// lowercase coordinate notation.
func (b *board) normalize(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrIllegalMove
	}
	pos := b.game.Position()
	mv, err := notationSAN.Decode(pos, text)
	if err != nil {
		mv, err = notationUCI.Decode(pos, strings.ToLower(text))
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, text)
	}
	if err := b.game.Clone().Move(mv, nil); err != nil {
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, text)
	}
	return strings.ToLower(notationUCI.Encode(pos, mv)), nil
}

// apply plays a coordinate move and returns its SAN.
func (b *board) apply(move string) (string, error) {
	pos := b.game.Position()
	mv, err := notationUCI.Decode(pos, strings.ToLower(move))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, move)
	}
	if err := b.game.Clone().Move(mv, nil); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrIllegalMove, move, err)
	}
	san := notationSAN.Encode(pos, mv)
	if err := b.game.Move(mv, nil); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrIllegalMove, move, err)
	}
	return san, nil
}

func (b *board) fen() string { return b.game.FEN() }

// outcome returns the PGN result and method once the game has ended.
func (b *board) outcome() (result, method string, over bool) {
	switch b.game.Outcome() {
	case nchess.WhiteWon:
		result = ResultWhiteWon
	case nchess.BlackWon:
		result = ResultBlackWon
	case nchess.Draw:
		result = ResultDraw
	default:
		return "", "", false
	}
	return result, strings.ToLower(b.game.Method().String()), true
}

func (b *board) resign(side uci.Side) {
	if side == uci.First {
		b.game.Resign(nchess.White)
		return
	}
	b.game.Resign(nchess.Black)
}

const (
	ResultWhiteWon = "1-0"
	ResultBlackWon = "0-1"
	ResultDraw     = "1/2-1/2"
)

// winFor returns the PGN result of side winning.
func winFor(side uci.Side) string {
	if side == uci.First {
		return ResultWhiteWon
	}
	return ResultBlackWon
}
