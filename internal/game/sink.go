package game

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-uci/pkg/enginedto"
)

// Recorder keeps live game state, e.g. store.Store.
type Recorder interface {
	SaveGame(ctx context.Context, g *enginedto.GameRecord) error
	AppendMove(ctx context.Context, ev enginedto.MoveEvent) error
	ClearPlayer(ctx context.Context, player, id string) error
}

// Archiver stores finished games, e.g. archive.Archiver.
type Archiver interface {
	Archive(ctx context.Context, rec *enginedto.GameRecord) (int64, error)
}

// Publisher relays events to remote listeners.
type Publisher interface {
	Publish(ctx context.Context, ev enginedto.Event) error
}

type SinkConfig struct {
	Recorder  Recorder
	Archiver  Archiver
	Publisher Publisher
	Buffer    int
	Timeout   time.Duration
	Logger    *zap.Logger
}

// Sink persists and relays game events on its own goroutine so adapter
// callbacks never wait on I/O.
type Sink struct {
	rec     Recorder
	arch    Archiver
	pub     Publisher
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan enginedto.Event
	done   chan struct{}
}

func NewSink(cfg SinkConfig) *Sink {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Sink{
		rec:     cfg.Recorder,
		arch:    cfg.Archiver,
		pub:     cfg.Publisher,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		ch:      make(chan enginedto.Event, cfg.Buffer),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Emit queues ev. A full queue drops the event.
func (s *Sink) Emit(ev enginedto.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
		s.logger.Warn("game sink full, event dropped", zap.String("kind", string(ev.Kind)))
	}
}

// Close flushes queued events and stops the worker.
func (s *Sink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *Sink) run() {
	defer close(s.done)
	for ev := range s.ch {
		s.handle(ev)
	}
}

func (s *Sink) handle(ev enginedto.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if s.rec != nil {
		if ev.Move != nil {
			if err := s.rec.AppendMove(ctx, *ev.Move); err != nil {
				s.logger.Warn("game sink: append move failed", zap.String("game", ev.Move.GameID), zap.Error(err))
			}
		}
		if ev.Game != nil {
			if err := s.rec.SaveGame(ctx, ev.Game); err != nil {
				s.logger.Warn("game sink: save game failed", zap.String("game", ev.Game.ID), zap.Error(err))
			}
		}
	}

	if ev.Game != nil && ev.Game.Finished() {
		s.finish(ctx, ev.Game)
	}

	if s.pub != nil {
		if err := s.pub.Publish(ctx, ev); err != nil {
			s.logger.Warn("game sink: publish failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
		}
	}
}

func (s *Sink) finish(ctx context.Context, g *enginedto.GameRecord) {
	if s.arch != nil && g.Status == enginedto.StatusFinished {
		id, err := s.arch.Archive(ctx, g)
		if err != nil {
			s.logger.Warn("game sink: archive failed", zap.String("game", g.ID), zap.Error(err))
		} else {
			g.ArchiveID = id
			if s.rec != nil {
				if err := s.rec.SaveGame(ctx, g); err != nil {
					s.logger.Warn("game sink: save archive id failed", zap.String("game", g.ID), zap.Error(err))
				}
			}
		}
	}
	if s.rec != nil {
		if err := s.rec.ClearPlayer(ctx, g.Player, g.ID); err != nil {
			s.logger.Warn("game sink: clear player failed", zap.String("player", g.Player), zap.Error(err))
		}
	}
}
