package uci

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeFleet struct {
	t *testing.T

	mu      sync.Mutex
	engines []*fakeEngine
}

func (f *fakeFleet) start(ctx context.Context, cfg Config, collab Collaborators) (*Adapter, error) {
	session, engine := newFakeEngine(f.t, handshakeResponder(func(cmd string) []string {
		if len(cmd) > 3 && cmd[:3] == "go " {
			return []string{"bestmove e7e5"}
		}
		return nil
	}))
	f.mu.Lock()
	f.engines = append(f.engines, engine)
	f.mu.Unlock()
	cfg.ReadyTimeout = time.Second
	cfg.HandshakeTimeout = time.Second
	return Attach(ctx, session, cfg, collab)
}

func (f *fakeFleet) started() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}

func newTestPool(t *testing.T, capacity int) (*Pool, *fakeFleet) {
	t.Helper()
	fleet := &fakeFleet{t: t}
	p := NewPool(PoolConfig{PerConfigCapacity: capacity, Start: fleet.start})
	t.Cleanup(func() { _ = p.Close() })
	return p, fleet
}

func TestPoolReusesReleasedAdapter(t *testing.T) {
	p, fleet := newTestPool(t, 2)
	ctx := context.Background()

	a1, err := p.Acquire(ctx, Config{Threads: 1}, Collaborators{})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.Release(a1, nil)

	obs := newRecordingObserver()
	a2, err := p.Acquire(ctx, Config{Threads: 1}, Collaborators{Observer: obs})
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	if a1 != a2 || fleet.started() != 1 {
		t.Fatalf("expected reuse, started=%d", fleet.started())
	}

	if err := a2.NewGame(ctx, "alice", time.Minute); err != nil {
		t.Fatalf("new game: %v", err)
	}
	if err := a2.PlayUserMove(ctx, "e2e4"); err != nil {
		t.Fatalf("user move: %v", err)
	}
	if ev := obs.nextMove(t); ev.Move != "e7e5" {
		t.Fatalf("lease observer got %+v", ev)
	}
	p.Release(a2, nil)
}

func TestPoolSeparatesConfigurations(t *testing.T) {
	p, fleet := newTestPool(t, 1)
	ctx := context.Background()

	weak, err := p.Acquire(ctx, Config{ExtraOptions: map[string]string{"Skill Level": "1"}}, Collaborators{})
	if err != nil {
		t.Fatalf("acquire weak: %v", err)
	}
	strong, err := p.Acquire(ctx, Config{ExtraOptions: map[string]string{"Skill Level": "20"}}, Collaborators{})
	if err != nil {
		t.Fatalf("acquire strong: %v", err)
	}
	if weak == strong || fleet.started() != 2 {
		t.Fatalf("configurations must not share adapters")
	}
	if len(p.Stats()) != 2 {
		t.Fatalf("stats %v", p.Stats())
	}
	p.Release(weak, nil)
	p.Release(strong, nil)
}

func TestPoolCapacityBlocksUntilRelease(t *testing.T) {
	p, _ := newTestPool(t, 1)
	a, err := p.Acquire(context.Background(), Config{}, Collaborators{})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx, Config{}, Collaborators{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline at capacity, got %v", err)
	}

	got := make(chan *Adapter, 1)
	go func() {
		b, err := p.Acquire(context.Background(), Config{}, Collaborators{})
		if err == nil {
			got <- b
		}
	}()
	time.Sleep(20 * time.Millisecond)
	p.Release(a, nil)
	select {
	case b := <-got:
		if b != a {
			t.Fatalf("waiter should receive the released adapter")
		}
		p.Release(b, nil)
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter never acquired")
	}
}

func TestPoolReleaseWithErrorCloses(t *testing.T) {
	p, fleet := newTestPool(t, 1)
	ctx := context.Background()
	a, err := p.Acquire(ctx, Config{}, Collaborators{})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.Release(a, errors.New("game aborted"))
	if a.Running() {
		t.Fatalf("adapter should be closed")
	}
	b, err := p.Acquire(ctx, Config{}, Collaborators{})
	if err != nil {
		t.Fatalf("acquire after discard: %v", err)
	}
	if b == a || fleet.started() != 2 {
		t.Fatalf("expected a fresh adapter")
	}
	p.Release(b, nil)
}

func TestPoolSkipsDeadIdleAdapter(t *testing.T) {
	p, fleet := newTestPool(t, 1)
	ctx := context.Background()
	a, err := p.Acquire(ctx, Config{}, Collaborators{})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.Release(a, nil)

	fleet.mu.Lock()
	_ = fleet.engines[0].out.Close()
	fleet.mu.Unlock()
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("adapter did not notice closed output")
	}

	b, err := p.Acquire(ctx, Config{}, Collaborators{})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if b == a {
		t.Fatalf("dead adapter handed out")
	}
	p.Release(b, nil)
}

func TestPoolClose(t *testing.T) {
	p, _ := newTestPool(t, 1)
	a, err := p.Acquire(context.Background(), Config{}, Collaborators{})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.Release(a, nil)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if a.Running() {
		t.Fatalf("idle adapter should be closed")
	}
	if _, err := p.Acquire(context.Background(), Config{}, Collaborators{}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

func TestConfigKeyIgnoresOptionOrder(t *testing.T) {
	a := configKey(Config{ExtraOptions: map[string]string{"A": "1", "B": "2"}})
	b := configKey(Config{ExtraOptions: map[string]string{"B": "2", "A": "1"}})
	if a != b {
		t.Fatalf("keys differ: %q vs %q", a, b)
	}
}
