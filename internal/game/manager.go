package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-uci/internal/chess/clock"
	"github.com/park285/cheese-uci/internal/chess/uci"
	"github.com/park285/cheese-uci/pkg/enginedto"
)

// Options are the per-game settings.
type Options struct {
	EngineWhite bool
	TimeControl time.Duration
	Increment   time.Duration
}

type ManagerConfig struct {
	Pool     *uci.Pool
	Engine   uci.Config
	Sink     *Sink
	Defaults Options
	// FlagInterval is how often running clocks are checked for flag fall.
	FlagInterval time.Duration
	Now          func() time.Time
	Logger       *zap.Logger
}

// Manager runs one engine game per player on adapters leased from the pool.
type Manager struct {
	cfg    ManagerConfig
	logger *zap.Logger

	mu       sync.Mutex
	closed   bool
	byPlayer map[string]*Session
	byID     map[string]*Session
	wg       sync.WaitGroup
	stop     chan struct{}
}

// Session is a running game.
type Session struct {
	ID      string
	Player  string
	adapter *uci.Adapter
	host    *Host
	clock   *clock.GameClock
}

// Status is a point-in-time view of a session.
type Status struct {
	Game     *enginedto.GameRecord
	Clock    string
	Position string
	State    uci.DispatchState
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Pool == nil {
		return nil, errors.New("game manager: pool required")
	}
	if cfg.Defaults.TimeControl <= 0 {
		cfg.Defaults.TimeControl = 5 * time.Minute
	}
	if cfg.FlagInterval <= 0 {
		cfg.FlagInterval = 200 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		logger:   cfg.Logger,
		byPlayer: make(map[string]*Session),
		byID:     make(map[string]*Session),
		stop:     make(chan struct{}),
	}, nil
}

// NewGame leases an engine and starts a game for player. A zero Options
// value uses the manager defaults.
func (m *Manager) NewGame(ctx context.Context, player string, opts *Options) (*Session, error) {
	player = strings.TrimSpace(player)
	if player == "" {
		return nil, errors.New("player name required")
	}
	o := m.cfg.Defaults
	if opts != nil {
		o = *opts
		if o.TimeControl <= 0 {
			o.TimeControl = m.cfg.Defaults.TimeControl
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, uci.ErrPoolClosed
	}
	if _, busy := m.byPlayer[player]; busy {
		m.mu.Unlock()
		return nil, ErrGameInProgress
	}
	// reserve the player while the engine starts
	m.byPlayer[player] = nil
	m.mu.Unlock()

	s, err := m.start(ctx, player, o)
	m.mu.Lock()
	if err != nil {
		delete(m.byPlayer, player)
		m.mu.Unlock()
		return nil, err
	}
	m.byPlayer[player] = s
	m.byID[s.ID] = s
	m.wg.Add(1)
	m.mu.Unlock()
	go m.watch(s)

	if o.EngineWhite {
		if err := s.adapter.RequestEngineMove(ctx); err != nil {
			s.host.abort("engine did not start")
			return nil, fmt.Errorf("request engine move: %w", err)
		}
	}
	return s, nil
}

func (m *Manager) start(ctx context.Context, player string, o Options) (*Session, error) {
	clk := clock.New(o.TimeControl, o.Increment, clock.WithNow(m.cfg.Now))
	host := newHost(hostConfig{
		Clock:       clk,
		Sink:        m.cfg.Sink,
		EngineWhite: o.EngineWhite,
		Increment:   o.Increment,
		Now:         m.cfg.Now,
		Logger:      m.logger,
	})
	a, err := m.cfg.Pool.Acquire(ctx, m.cfg.Engine, uci.Collaborators{Host: host, Clock: clk, Observer: host})
	if err != nil {
		return nil, fmt.Errorf("acquire engine: %w", err)
	}
	if err := a.NewGame(ctx, player, o.TimeControl); err != nil {
		m.cfg.Pool.Release(a, err)
		return nil, fmt.Errorf("new game: %w", err)
	}
	rec := host.Record()
	return &Session{ID: rec.ID, Player: player, adapter: a, host: host, clock: clk}, nil
}

// watch checks the clock until the game ends, then returns the engine.
func (m *Manager) watch(s *Session) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.FlagInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.host.Done():
			m.release(s)
			return
		case <-ticker.C:
			s.host.checkFlag()
		case <-m.stop:
			s.host.abort("shutdown")
		}
	}
}

func (m *Manager) release(s *Session) {
	m.mu.Lock()
	if cur := m.byPlayer[s.Player]; cur == s {
		delete(m.byPlayer, s.Player)
	}
	delete(m.byID, s.ID)
	m.mu.Unlock()
	m.cfg.Pool.Release(s.adapter, s.host.Err())
}

// Session returns the running game of player.
func (m *Manager) Session(player string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.byPlayer[strings.TrimSpace(player)]
	return s, s != nil
}

func (m *Manager) Move(ctx context.Context, player, text string) (string, error) {
	s, ok := m.Session(player)
	if !ok {
		return "", ErrNoActiveGame
	}
	return s.Move(ctx, text)
}

func (m *Manager) Resign(player string) error {
	s, ok := m.Session(player)
	if !ok {
		return ErrNoActiveGame
	}
	return s.Resign()
}

// ApplyRemote plays a move received from a remote UI.
func (m *Manager) ApplyRemote(ctx context.Context, rm enginedto.RemoteMove) error {
	m.mu.Lock()
	s := m.byID[rm.GameID]
	m.mu.Unlock()
	if s == nil {
		return fmt.Errorf("%w: %s", ErrNoActiveGame, rm.GameID)
	}
	_, err := s.Move(ctx, rm.UCI)
	return err
}

// Active lists the running games ordered by start time.
func (m *Manager) Active() []*enginedto.GameRecord {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.byID))
	for _, s := range m.byID {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()
	out := make([]*enginedto.GameRecord, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.host.Record())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Close aborts running games and waits for their engines to be released.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.stop)
	m.mu.Unlock()
	m.wg.Wait()
}

// Move plays the player's move in SAN or coordinate notation and starts the
// engine's reply. It returns the move in coordinate notation.
func (s *Session) Move(ctx context.Context, text string) (string, error) {
	move, err := s.host.normalize(text)
	if err != nil {
		return "", err
	}
	if err := s.adapter.PlayUserMove(ctx, move); err != nil {
		return "", err
	}
	return move, nil
}

func (s *Session) Resign() error { return s.host.resign() }

func (s *Session) Done() <-chan struct{} { return s.host.Done() }

func (s *Session) Status() Status {
	return Status{
		Game:     s.host.Record(),
		Clock:    s.clock.String(),
		Position: s.adapter.RenderPosition(),
		State:    s.adapter.State(),
	}
}
