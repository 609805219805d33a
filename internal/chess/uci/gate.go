package uci

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	defaultReadyTimeout     = 4 * time.Second
	defaultHandshakeTimeout = 5 * time.Second
)

// readyGate counts isready commands against readyok replies. A waiter is
// released only by the reply to its own isready, so a readyok arriving after
// an earlier wait timed out cannot release a later one.
type readyGate struct {
	mu   sync.Mutex
	sent uint64
	recv uint64
	want uint64
	ch   chan struct{}
}

func (g *readyGate) arm() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent++
	g.want = g.sent
	g.ch = make(chan struct{})
	return g.ch
}

func (g *readyGate) signal() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recv++
	if g.ch != nil && g.recv >= g.want {
		close(g.ch)
		g.ch = nil
	}
}

// retract undoes arm when the isready could not be written.
func (g *readyGate) retract() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sent > g.recv {
		g.sent--
	}
	g.ch = nil
}

// outstanding is the number of isready commands still owed a readyok.
func (g *readyGate) outstanding() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.recv >= g.sent {
		return 0
	}
	return g.sent - g.recv
}

// handshakeGate opens once, on the first uciok.
type handshakeGate struct {
	once sync.Once
	ch   chan struct{}
}

func newHandshakeGate() *handshakeGate {
	return &handshakeGate{ch: make(chan struct{})}
}

// open reports whether this call opened the gate.
func (g *handshakeGate) open() bool {
	opened := false
	g.once.Do(func() {
		close(g.ch)
		opened = true
	})
	return opened
}

// awaitSignal blocks on sig, bounded by timeout, ctx and the session's end.
func awaitSignal(ctx context.Context, sig <-chan struct{}, done <-chan struct{}, timeout time.Duration, what string) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-sig:
		return nil
	case <-done:
		return fmt.Errorf("wait %s: %w", what, ErrClosed)
	case <-ctx.Done():
		return fmt.Errorf("wait %s: %w", what, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("%w: no %s within %s", ErrEngineUnresponsive, what, timeout)
	}
}
