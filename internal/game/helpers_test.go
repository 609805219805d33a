package game

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/cheese-uci/internal/archive"
	"github.com/park285/cheese-uci/internal/chess/uci"
	"github.com/park285/cheese-uci/internal/store"
	"github.com/park285/cheese-uci/pkg/enginedto"
)

// scriptedEngine answers "go" with the reply listed for the current move
// history and with "(none)" otherwise.
func scriptedEngine(replies map[string]string) uci.StartFunc {
	return func(ctx context.Context, cfg uci.Config, collab uci.Collaborators) (*uci.Adapter, error) {
		cmdR, cmdW := io.Pipe()
		outR, outW := io.Pipe()
		go serveScript(cmdR, outW, replies)
		cfg.ReadyTimeout = time.Second
		cfg.HandshakeTimeout = time.Second
		return uci.Attach(ctx, uci.NewPipeSession(cmdW, outR, nil), cfg, collab)
	}
}

func serveScript(in *io.PipeReader, out *io.PipeWriter, replies map[string]string) {
	defer out.Close()
	say := func(line string) bool {
		_, err := io.WriteString(out, line+"\n")
		return err == nil
	}
	history := ""
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd := scanner.Text()
		ok := true
		switch {
		case cmd == "uci":
			ok = say("id name Scriptfish") && say("id author tests") && say("uciok")
		case cmd == "isready":
			ok = say("readyok")
		case strings.HasPrefix(cmd, "position "):
			_, history, _ = strings.Cut(cmd, " moves ")
		case strings.HasPrefix(cmd, "go"):
			reply, found := replies[history]
			if !found {
				reply = "(none)"
			}
			ok = say("bestmove " + reply)
		case cmd == "quit":
			return
		}
		if !ok {
			return
		}
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []enginedto.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev enginedto.Event) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Kinds() []enginedto.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]enginedto.EventKind, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

type fixture struct {
	manager  *Manager
	sink     *Sink
	store    *store.Store
	archiver *archive.Archiver
	pub      *recordingPublisher
	now      *fakeNow
}

func newFixture(t *testing.T, replies map[string]string) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		store:    store.New(rdb, time.Hour),
		archiver: archive.NewArchiver(archive.NewMemoryRepository(), nil),
		pub:      &recordingPublisher{},
		now:      &fakeNow{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	f.sink = NewSink(SinkConfig{Recorder: f.store, Archiver: f.archiver, Publisher: f.pub})
	pool := uci.NewPool(uci.PoolConfig{PerConfigCapacity: 2, Start: scriptedEngine(replies)})
	m, err := NewManager(ManagerConfig{
		Pool:         pool,
		Sink:         f.sink,
		Defaults:     Options{TimeControl: 5 * time.Minute},
		FlagInterval: 5 * time.Millisecond,
		Now:          f.now.Now,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	f.manager = m
	t.Cleanup(func() {
		m.Close()
		_ = pool.Close()
		f.sink.Close()
	})
	return f
}

// waitPlies blocks until the game has n moves.
func waitPlies(t *testing.T, s *Session, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(s.Status().Game.MovesUCI) >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("game stuck at %v, want %d plies", s.Status().Game.MovesUCI, n)
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("game did not finish: %+v", s.Status().Game)
	}
}
