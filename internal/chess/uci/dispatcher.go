package uci

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type DispatchState int

const (
	AwaitingHandshake DispatchState = iota
	Ready
	AwaitingBestMove
	Pondering
)

func (s DispatchState) String() string {
	switch s {
	case AwaitingHandshake:
		return "awaiting_handshake"
	case Ready:
		return "ready"
	case AwaitingBestMove:
		return "awaiting_bestmove"
	case Pondering:
		return "pondering"
	default:
		return "unknown"
	}
}

// EngineOption is an option the engine declared during the handshake.
type EngineOption struct {
	Name string
	Type string
}

// Dispatcher consumes tokens on the reading flow and routes them to the
// gates, the game state and the collaborators.
type Dispatcher struct {
	mu      sync.Mutex
	state   DispatchState
	discard bool
	// superseded is set when a search starts while an abandoned one has
	// not reported yet.
	superseded bool
	name    string
	author  string
	options []EngineOption

	game      *GameState
	ready     *readyGate
	handshake *handshakeGate
	writer    *commandWriter
	host      GameHost
	observer  Observer
	logger    *zap.Logger
}

func newDispatcher(game *GameState, writer *commandWriter, collab Collaborators, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		state:     AwaitingHandshake,
		game:      game,
		ready:     &readyGate{},
		handshake: newHandshakeGate(),
		writer:    writer,
		host:      collab.Host,
		observer:  collab.Observer,
		logger:    logger,
	}
}

func (d *Dispatcher) State() DispatchState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Dispatcher) setState(s DispatchState) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// beginSearch marks a search as issued unless one is already running.
func (d *Dispatcher) beginSearch() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == AwaitingBestMove {
		return ErrEngineThinking
	}
	d.state = AwaitingBestMove
	d.superseded = d.discard
	return nil
}

// abandonSearch marks the bestmove of the search in progress, if any, for
// discarding and sends stop. The mark is set under mu, so a bestmove is
// either accepted before it or dropped after it.
func (d *Dispatcher) abandonSearch() (bool, error) {
	d.mu.Lock()
	if d.state != AwaitingBestMove && d.state != Pondering {
		d.mu.Unlock()
		return false, nil
	}
	pending := d.discard
	d.discard = true
	d.mu.Unlock()
	if pending {
		return true, nil
	}
	if err := d.writer.Stop(); err != nil {
		d.mu.Lock()
		d.discard = false
		d.mu.Unlock()
		return false, err
	}
	return true, nil
}

func (d *Dispatcher) Identity() (name, author string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.name, d.author
}

func (d *Dispatcher) Options() []EngineOption {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]EngineOption(nil), d.options...)
}

// Dispatch handles one token. Only a fatal condition is returned; protocol
// anomalies are logged and dropped.
func (d *Dispatcher) Dispatch(tok Token) error {
	switch tok.Kind {
	case HandshakeOk:
		d.onHandshake()
	case ReadyOk:
		d.ready.signal()
	case IdName:
		d.mu.Lock()
		d.name = tok.Text
		d.mu.Unlock()
		d.game.SetEngineName(tok.Text)
		d.logger.Info("uci engine identified", zap.String("name", tok.Text))
	case IdAuthor:
		d.mu.Lock()
		d.author = tok.Text
		d.mu.Unlock()
		d.logger.Debug("uci engine author", zap.String("author", tok.Text))
	case OptionDecl:
		d.onOption(tok)
	case BestMove, BestMoveNoPonder, BestMoveWithPonder:
		return d.onBestMove(tok)
	case Unmatched:
		d.logger.Debug("uci <<", zap.String("line", tok.Text))
	case EmptyLine, LineFeed, EndOfStream:
	}
	return nil
}

func (d *Dispatcher) onHandshake() {
	if !d.handshake.open() {
		d.logger.Debug("uci duplicate uciok ignored")
		return
	}
	d.mu.Lock()
	if d.state == AwaitingHandshake {
		d.state = Ready
	}
	d.mu.Unlock()
}

func (d *Dispatcher) onOption(tok Token) {
	if len(tok.Groups) < 2 {
		d.logger.Warn("uci option declaration dropped", zap.Error(mismatch(tok.Text, "option grammar")))
		return
	}
	opt := EngineOption{Name: tok.Groups[0], Type: tok.Groups[1]}
	d.mu.Lock()
	d.options = append(d.options, opt)
	d.mu.Unlock()
	d.logger.Debug("uci option", zap.String("name", opt.Name), zap.String("type", opt.Type))
}

func (d *Dispatcher) onBestMove(tok Token) error {
	if len(tok.Groups) == 0 {
		d.logger.Warn("uci bestmove dropped", zap.Error(mismatch(tok.Text, "bestmove without move")))
		return nil
	}

	d.mu.Lock()
	ev, notify, err := d.acceptLocked(tok)
	d.mu.Unlock()
	if err != nil || !notify {
		return err
	}
	if ev == nil {
		d.observer.NoMove()
		return nil
	}
	d.observer.EngineMove(*ev)
	return nil
}

// acceptLocked applies a bestmove to the game. It returns the event to report,
// a nil event with notify set for "(none)", or notify unset when the move
// was dropped.
func (d *Dispatcher) acceptLocked(tok Token) (*EngineMove, bool, error) {
	move := tok.Groups[0]
	if d.discard {
		d.discard = false
		d.game.clearPondering()
		if !d.superseded {
			d.state = Ready
		}
		d.superseded = false
		d.logger.Debug("uci abandoned search result discarded", zap.String("move", move))
		return nil, false, nil
	}
	if d.state == Pondering && d.game.clearPondering() {
		d.state = Ready
		d.logger.Debug("uci ponder result discarded", zap.String("move", move))
		return nil, false, nil
	}

	if move == noMove {
		d.state = Ready
		d.logger.Info("uci engine has no legal move")
		return nil, true, nil
	}
	if err := checkMoveSyntax(move); err != nil {
		d.state = Ready
		d.logger.Warn("uci bestmove dropped", zap.Error(err))
		return nil, false, nil
	}

	ev := EngineMove{Move: move}
	if len(move) > 4 {
		ev.Promotion = d.host.DecodePromotionChar(upperASCII(move[4]))
	}

	ply, mover, err := d.game.Append(move)
	if err != nil {
		return nil, false, fmt.Errorf("append engine move %s: %w", move, err)
	}
	ev.Ply = ply
	ev.Side = mover
	d.host.RecordLastMove(move)

	d.state = Ready
	if tok.Kind == BestMoveWithPonder {
		ev.Ponder = tok.Groups[1]
		if d.startPonder(ev.Ponder) {
			d.state = Pondering
		}
	}
	return &ev, true, nil
}

// startPonder searches the position after the expected reply.
func (d *Dispatcher) startPonder(ponder string) bool {
	if err := checkMoveSyntax(ponder); err != nil {
		d.logger.Warn("uci ponder move ignored", zap.Error(err))
		return false
	}
	d.game.SetPondering(true)
	if err := d.writer.Position(d.game.SpeculativePosition(ponder)); err != nil {
		d.game.SetPondering(false)
		return false
	}
	if err := d.writer.GoPonder(); err != nil {
		d.game.SetPondering(false)
		return false
	}
	return true
}

// checkMoveSyntax accepts square pairs with an optional promotion letter.
func checkMoveSyntax(move string) error {
	if move == "0000" {
		return nil
	}
	if len(move) != 4 && len(move) != 5 {
		return mismatch(move, "move length")
	}
	for i := 0; i < 4; i += 2 {
		file, rank := move[i], move[i+1]
		if file < 'a' || file > 'h' || rank < '1' || rank > '8' {
			return mismatch(move, "square")
		}
	}
	return nil
}

func upperASCII(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
