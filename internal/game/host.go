package game

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/cheese-uci/internal/chess/clock"
	"github.com/park285/cheese-uci/internal/chess/uci"
	"github.com/park285/cheese-uci/pkg/enginedto"
)

type hostConfig struct {
	Clock       *clock.GameClock
	Sink        *Sink
	EngineWhite bool
	Increment   time.Duration
	Now         func() time.Time
	Logger      *zap.Logger
}

// Host is the game side of one adapter lease: it mirrors every accepted move
// on a rules board, decides the result and emits events to the sink.
type Host struct {
	clock       *clock.GameClock
	sink        *Sink
	now         func() time.Time
	logger      *zap.Logger
	engineWhite bool
	increment   time.Duration

	mu      sync.Mutex
	board   *board
	rec     *enginedto.GameRecord
	pending *enginedto.MoveEvent
	err     error
	over    bool
	done    chan struct{}
}

func newHost(cfg hostConfig) *Host {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Host{
		clock:       cfg.Clock,
		sink:        cfg.Sink,
		now:         cfg.Now,
		logger:      cfg.Logger,
		engineWhite: cfg.EngineWhite,
		increment:   cfg.Increment,
		board:       newBoard(),
		done:        make(chan struct{}),
	}
}

func (h *Host) engineSide() uci.Side {
	if h.engineWhite {
		return uci.First
	}
	return uci.Second
}

func (h *Host) playerSide() uci.Side { return h.engineSide().Other() }

func (h *Host) StartGame(player, engineName string, timeControl time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.board = newBoard()
	h.pending = nil
	h.clock.Reset(timeControl, h.increment)
	h.rec = &enginedto.GameRecord{
		ID:          uuid.NewString(),
		Status:      enginedto.StatusActive,
		Player:      player,
		Engine:      engineName,
		EngineWhite: h.engineWhite,
		TimeControl: timeControl,
		Increment:   h.increment,
		MovesUCI:    []string{},
		MovesSAN:    []string{},
		FEN:         h.board.fen(),
		StartedAt:   h.now(),
	}
	h.logger.Info("game started",
		zap.String("game", h.rec.ID),
		zap.String("player", player),
		zap.String("engine", engineName),
		zap.Bool("engine_white", h.engineWhite),
	)
	h.emitLocked(enginedto.Event{Kind: enginedto.EventGameStarted, Game: h.cloneLocked()})
}

// RecordLastMove applies a move the adapter accepted into its history.
func (h *Host) RecordLastMove(move string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rec == nil || h.over {
		return
	}
	mover := h.board.turn()
	san, err := h.board.apply(move)
	if err != nil {
		h.logger.Error("move rejected by board", zap.String("game", h.rec.ID), zap.String("move", move), zap.Error(err))
		h.finishLocked(enginedto.StatusAborted, "*", "illegal move", err)
		return
	}
	h.rec.MovesUCI = append(h.rec.MovesUCI, move)
	h.rec.MovesSAN = append(h.rec.MovesSAN, san)
	h.rec.FEN = h.board.fen()

	ev := enginedto.MoveEvent{
		GameID:  h.rec.ID,
		Ply:     uint(len(h.rec.MovesUCI)),
		Side:    mover.String(),
		By:      enginedto.MoveByPlayer,
		UCI:     move,
		SAN:     san,
		FEN:     h.rec.FEN,
		WhiteMS: h.clock.RemainingTime(uci.First).Milliseconds(),
		BlackMS: h.clock.RemainingTime(uci.Second).Milliseconds(),
		At:      h.now(),
	}
	if mover == h.engineSide() {
		// ponder arrives with EngineMove
		ev.By = enginedto.MoveByEngine
		h.pending = &ev
	} else {
		h.emitMoveLocked(ev)
	}

	if result, method, over := h.board.outcome(); over {
		h.flushPendingLocked()
		h.finishLocked(enginedto.StatusFinished, result, method, nil)
	}
}

func (h *Host) DecodePromotionChar(c byte) uci.PieceType { return uci.DecodePromotion(c) }

func (h *Host) EngineMove(ev uci.EngineMove) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil || h.pending.UCI != ev.Move {
		return
	}
	h.pending.Ponder = ev.Ponder
	h.flushPendingLocked()
}

// NoMove ends a game the board has not already decided as an engine resignation.
func (h *Host) NoMove() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rec == nil || h.over {
		return
	}
	if result, method, over := h.board.outcome(); over {
		h.finishLocked(enginedto.StatusFinished, result, method, nil)
		return
	}
	h.board.resign(h.engineSide())
	h.finishLocked(enginedto.StatusFinished, winFor(h.playerSide()), "resignation", nil)
}

func (h *Host) EngineFailed(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rec == nil || h.over {
		return
	}
	h.emitLocked(enginedto.Event{Kind: enginedto.EventEngineFailed, Error: err.Error()})
	h.finishLocked(enginedto.StatusAborted, "*", "engine failure", err)
}

// normalize checks that the player may move and converts text to coordinate
// notation.
func (h *Host) normalize(text string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rec == nil {
		return "", ErrNoActiveGame
	}
	if h.over {
		return "", ErrGameOver
	}
	if h.board.turn() != h.playerSide() {
		return "", ErrNotYourTurn
	}
	return h.board.normalize(text)
}

func (h *Host) resign() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rec == nil {
		return ErrNoActiveGame
	}
	if h.over {
		return ErrGameOver
	}
	h.board.resign(h.playerSide())
	h.finishLocked(enginedto.StatusFinished, winFor(h.engineSide()), "resignation", nil)
	return nil
}

// checkFlag ends the game when the running side is out of time.
func (h *Host) checkFlag() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rec == nil || h.over {
		return false
	}
	side, running := h.clock.Running()
	if !running || !h.clock.Flagged(side) {
		return false
	}
	h.logger.Info("flag fell", zap.String("game", h.rec.ID), zap.Stringer("side", side))
	h.finishLocked(enginedto.StatusFinished, winFor(side.Other()), "time forfeit", nil)
	return true
}

func (h *Host) abort(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.over {
		return
	}
	if h.rec == nil {
		h.over = true
		close(h.done)
		return
	}
	h.finishLocked(enginedto.StatusAborted, "*", reason, nil)
}

func (h *Host) Done() <-chan struct{} { return h.done }

// Err returns the failure that aborted the game, if any.
func (h *Host) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Host) Record() *enginedto.GameRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cloneLocked()
}

func (h *Host) finishLocked(status enginedto.GameStatus, result, method string, err error) {
	h.over = true
	h.err = err
	h.clock.Pause()
	h.rec.Status = status
	h.rec.Result = result
	h.rec.ResultMethod = method
	h.rec.EndedAt = h.now()
	h.logger.Info("game over",
		zap.String("game", h.rec.ID),
		zap.String("status", string(status)),
		zap.String("result", result),
		zap.String("method", method),
		zap.Int("plies", len(h.rec.MovesUCI)),
	)
	h.emitLocked(enginedto.Event{Kind: enginedto.EventGameOver, Game: h.cloneLocked()})
	close(h.done)
}

func (h *Host) flushPendingLocked() {
	if h.pending == nil {
		return
	}
	ev := *h.pending
	h.pending = nil
	h.emitMoveLocked(ev)
}

func (h *Host) emitMoveLocked(ev enginedto.MoveEvent) {
	h.emitLocked(enginedto.Event{Kind: enginedto.EventMove, Move: &ev, Game: h.cloneLocked()})
}

func (h *Host) emitLocked(ev enginedto.Event) {
	if h.sink != nil {
		h.sink.Emit(ev)
	}
}

func (h *Host) cloneLocked() *enginedto.GameRecord {
	if h.rec == nil {
		return nil
	}
	c := *h.rec
	c.MovesUCI = append([]string(nil), h.rec.MovesUCI...)
	c.MovesSAN = append([]string(nil), h.rec.MovesSAN...)
	return &c
}
