package uci

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const quitGrace = 300 * time.Millisecond

type Config struct {
	Spawn SpawnConfig

	Threads       int
	HashMB        int
	DisablePonder bool
	ExtraOptions  map[string]string

	ReadyTimeout     time.Duration
	HandshakeTimeout time.Duration
	MaxHistoryBytes  int

	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.Threads <= 0 {
		c.Threads = 1
	}
	if c.HashMB <= 0 {
		c.HashMB = 16
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = defaultReadyTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.MaxHistoryBytes <= 0 {
		c.MaxHistoryBytes = DefaultMaxHistoryBytes
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Adapter drives one engine session: a background reading flow dispatches
// engine output while callers issue commands through the gates.
type Adapter struct {
	cfg     Config
	session *Session
	writer  *commandWriter
	game    *GameState
	disp    *Dispatcher
	collab  Collaborators
	logger  *zap.Logger

	// issue serializes the command-issuing side.
	issue sync.Mutex

	running    atomic.Bool
	cancel     context.CancelFunc
	readerDone chan struct{}
	done       chan struct{}

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
	closeErr  error
}

// Start spawns the engine and completes the handshake and initial configuration.
func Start(ctx context.Context, cfg Config, collab Collaborators) (*Adapter, error) {
	cfg = cfg.withDefaults()
	session, err := Spawn(ctx, cfg.Spawn, cfg.Logger)
	if err != nil {
		return nil, err
	}
	return Attach(ctx, session, cfg, collab)
}

// Attach runs the adapter over an existing session. The session is closed if
// initialization fails.
func Attach(ctx context.Context, session *Session, cfg Config, collab Collaborators) (*Adapter, error) {
	cfg = cfg.withDefaults()
	collab = collab.withDefaults()
	logger := cfg.Logger

	writer := &commandWriter{out: session, logger: logger}
	game := NewGameState(collab.Clock, cfg.MaxHistoryBytes)
	readerCtx, cancel := context.WithCancel(context.Background())

	a := &Adapter{
		cfg:        cfg,
		session:    session,
		writer:     writer,
		game:       game,
		disp:       newDispatcher(game, writer, collab, logger),
		collab:     collab,
		logger:     logger,
		cancel:     cancel,
		readerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
	a.running.Store(true)
	go a.readLoop(readerCtx)

	if err := a.initialize(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Adapter) initialize(ctx context.Context) error {
	a.issue.Lock()
	defer a.issue.Unlock()

	if err := a.writer.UCI(); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := awaitSignal(ctx, a.disp.handshake.ch, a.done, a.cfg.HandshakeTimeout, "uciok"); err != nil {
		return err
	}
	if err := a.applyOptions(); err != nil {
		return err
	}
	if err := a.waitReadyLocked(ctx); err != nil {
		return err
	}
	name, author := a.disp.Identity()
	a.logger.Info("uci engine ready",
		zap.String("name", name),
		zap.String("author", author),
		zap.Int("options", len(a.disp.Options())),
	)
	return nil
}

func (a *Adapter) applyOptions() error {
	cmds := [][2]string{
		{"Threads", strconv.Itoa(a.cfg.Threads)},
		{"Hash", strconv.Itoa(a.cfg.HashMB)},
		{"Ponder", strconv.FormatBool(!a.cfg.DisablePonder)},
	}
	names := make([]string, 0, len(a.cfg.ExtraOptions))
	for name := range a.cfg.ExtraOptions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmds = append(cmds, [2]string{name, a.cfg.ExtraOptions[name]})
	}
	for _, c := range cmds {
		if err := a.writer.SetOption(c[0], c[1]); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	return nil
}

func (a *Adapter) readLoop(ctx context.Context) {
	defer close(a.readerDone)
	tz := NewTokenizer(a.session.Output(), a.logger)
	for a.running.Load() {
		tok, err := tz.Next(ctx)
		if tok.Kind == EndOfStream {
			if a.running.Load() {
				if err == nil {
					err = io.EOF
				}
				a.fail(fmt.Errorf("engine output closed: %w", err))
			}
			return
		}
		if err := a.disp.Dispatch(tok); err != nil {
			a.fail(err)
			return
		}
	}
}

// fail records a fatal error and tears the session down.
func (a *Adapter) fail(err error) {
	a.errMu.Lock()
	if a.err == nil {
		a.err = err
	}
	a.errMu.Unlock()
	a.logger.Error("uci session failed", zap.Error(err))
	a.collab.Observer.EngineFailed(err)
	_ = a.teardown(false)
}

func (a *Adapter) teardown(sendQuit bool) error {
	a.closeOnce.Do(func() {
		wasRunning := a.running.Swap(false)
		if sendQuit && wasRunning {
			if err := a.writer.Quit(); err == nil {
				select {
				case <-a.readerDone:
				case <-time.After(quitGrace):
				}
			}
		}
		a.cancel()
		a.closeErr = a.session.Close()
		close(a.done)
	})
	return a.closeErr
}

// Close stops the reading flow, sends quit and releases the process.
func (a *Adapter) Close() error {
	err := a.teardown(true)
	<-a.readerDone
	return err
}

func (a *Adapter) Done() <-chan struct{} { return a.done }

func (a *Adapter) Running() bool { return a.running.Load() }

// Err returns the fatal error that ended the session, if any.
func (a *Adapter) Err() error {
	a.errMu.Lock()
	defer a.errMu.Unlock()
	return a.err
}

// WaitUntilReady sends isready and blocks until the matching readyok.
func (a *Adapter) WaitUntilReady(ctx context.Context) error {
	a.issue.Lock()
	defer a.issue.Unlock()
	if !a.running.Load() {
		return ErrClosed
	}
	return a.waitReadyLocked(ctx)
}

func (a *Adapter) waitReadyLocked(ctx context.Context) error {
	sig := a.disp.ready.arm()
	if err := a.writer.IsReady(); err != nil {
		a.disp.ready.retract()
		return fmt.Errorf("send isready: %w", err)
	}
	err := awaitSignal(ctx, sig, a.done, a.cfg.ReadyTimeout, "readyok")
	if errors.Is(err, ErrEngineUnresponsive) {
		a.logger.Warn("uci readyok overdue", zap.Uint64("outstanding", a.disp.ready.outstanding()))
	}
	return err
}

// NewGame resets the engine and the tracked game.
func (a *Adapter) NewGame(ctx context.Context, player string, timeControl time.Duration) error {
	a.issue.Lock()
	defer a.issue.Unlock()
	if !a.running.Load() {
		return ErrClosed
	}
	if _, err := a.abandonSearchLocked(); err != nil {
		return err
	}
	if err := a.writer.NewGame(); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}
	if err := a.waitReadyLocked(ctx); err != nil {
		return err
	}
	a.game.Reset()
	a.disp.setState(Ready)
	name, _ := a.disp.Identity()
	a.collab.Host.StartGame(player, name, timeControl)
	a.logger.Info("uci new game", zap.String("player", player), zap.Duration("time_control", timeControl))
	return nil
}

// PlayUserMove records the opponent's move and asks the engine for its reply.
func (a *Adapter) PlayUserMove(ctx context.Context, move string) error {
	a.issue.Lock()
	defer a.issue.Unlock()
	if !a.running.Load() {
		return ErrClosed
	}
	if err := checkMoveSyntax(move); err != nil {
		return err
	}

	if a.disp.State() == AwaitingBestMove {
		return ErrEngineThinking
	}
	stopped, err := a.abandonSearchLocked()
	if err != nil {
		return err
	}
	if stopped {
		if err := a.waitReadyLocked(ctx); err != nil {
			return err
		}
	}

	if _, _, err := a.game.Append(move); err != nil {
		if errors.Is(err, ErrStateOverflow) {
			a.fail(err)
		}
		return err
	}
	a.collab.Host.RecordLastMove(move)
	return a.searchLocked(ctx)
}

// RequestEngineMove starts a search on the current position, e.g. when the
// engine has the first move.
func (a *Adapter) RequestEngineMove(ctx context.Context) error {
	a.issue.Lock()
	defer a.issue.Unlock()
	if !a.running.Load() {
		return ErrClosed
	}
	if a.disp.State() == AwaitingBestMove {
		return ErrEngineThinking
	}
	if _, err := a.abandonSearchLocked(); err != nil {
		return err
	}
	return a.searchLocked(ctx)
}

// abandonSearchLocked stops a running or ponder search. The dispatcher drops
// the bestmove that answers it.
func (a *Adapter) abandonSearchLocked() (bool, error) {
	stopped, err := a.disp.abandonSearch()
	if err != nil {
		return false, fmt.Errorf("send stop: %w", err)
	}
	return stopped, nil
}

func (a *Adapter) searchLocked(ctx context.Context) error {
	if err := a.waitReadyLocked(ctx); err != nil {
		return err
	}
	if err := a.disp.beginSearch(); err != nil {
		return err
	}
	if err := a.writer.Position(a.game.RenderPosition()); err != nil {
		a.disp.setState(Ready)
		return fmt.Errorf("send position: %w", err)
	}
	clock := a.collab.Clock
	if err := a.writer.Go(clock.RemainingTime(First), clock.RemainingTime(Second)); err != nil {
		a.disp.setState(Ready)
		return fmt.Errorf("send go: %w", err)
	}
	return nil
}

func (a *Adapter) Snapshot() GameSnapshot { return a.game.Snapshot() }

func (a *Adapter) RenderPosition() string { return a.game.RenderPosition() }

func (a *Adapter) State() DispatchState { return a.disp.State() }

func (a *Adapter) EngineName() string {
	name, _ := a.disp.Identity()
	return name
}

func (a *Adapter) EngineAuthor() string {
	_, author := a.disp.Identity()
	return author
}

func (a *Adapter) Options() []EngineOption { return a.disp.Options() }
