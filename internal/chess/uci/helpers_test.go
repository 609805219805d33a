package uci

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeEngine answers commands written to the session with scripted lines.
type fakeEngine struct {
	t       *testing.T
	in      *io.PipeReader
	out     *io.PipeWriter
	respond func(cmd string) []string

	mu       sync.Mutex
	received []string
	cmds     chan string
}

func newFakeEngine(t *testing.T, respond func(cmd string) []string) (*Session, *fakeEngine) {
	t.Helper()
	cmdR, cmdW := io.Pipe()
	outR, outW := io.Pipe()
	e := &fakeEngine{t: t, in: cmdR, out: outW, respond: respond, cmds: make(chan string, 256)}
	go e.run()
	t.Cleanup(func() {
		cmdR.Close()
		outW.Close()
	})
	return NewPipeSession(cmdW, outR, nil), e
}

func (e *fakeEngine) run() {
	scanner := bufio.NewScanner(e.in)
	for scanner.Scan() {
		cmd := scanner.Text()
		e.mu.Lock()
		e.received = append(e.received, cmd)
		e.mu.Unlock()
		select {
		case e.cmds <- cmd:
		default:
		}
		for _, line := range e.respond(cmd) {
			if _, err := io.WriteString(e.out, line+"\n"); err != nil {
				return
			}
		}
	}
}

func (e *fakeEngine) say(lines ...string) {
	for _, line := range lines {
		if _, err := io.WriteString(e.out, line+"\n"); err != nil {
			e.t.Fatalf("fake engine write: %v", err)
		}
	}
}

func (e *fakeEngine) Received() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.received...)
}

// waitFor blocks until a command with the given prefix arrives.
func (e *fakeEngine) waitFor(prefix string) string {
	e.t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case cmd := <-e.cmds:
			if strings.HasPrefix(cmd, prefix) {
				return cmd
			}
		case <-timeout:
			e.t.Fatalf("timed out waiting for %q; received %v", prefix, e.Received())
			return ""
		}
	}
}

// handshakeResponder is a cooperative engine without search behaviour.
func handshakeResponder(extra func(cmd string) []string) func(string) []string {
	return func(cmd string) []string {
		switch {
		case cmd == "uci":
			return []string{
				"id name Fakefish 1.0",
				"id author The Fakefish developers",
				"option name Hash type spin default 16 min 1 max 33554432",
				"option name Ponder type check default false",
				"option name Skill Level type spin default 20 min 0 max 20",
				"uciok",
			}
		case cmd == "isready":
			return []string{"readyok"}
		}
		if extra != nil {
			return extra(cmd)
		}
		return nil
	}
}

type recordingObserver struct {
	moves  chan EngineMove
	noMove chan struct{}
	failed chan error
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		moves:  make(chan EngineMove, 16),
		noMove: make(chan struct{}, 4),
		failed: make(chan error, 4),
	}
}

func (o *recordingObserver) EngineMove(ev EngineMove) { o.moves <- ev }
func (o *recordingObserver) NoMove()                  { o.noMove <- struct{}{} }
func (o *recordingObserver) EngineFailed(err error)   { o.failed <- err }

func (o *recordingObserver) nextMove(t *testing.T) EngineMove {
	t.Helper()
	select {
	case ev := <-o.moves:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no engine move observed")
		return EngineMove{}
	}
}

type recordingHost struct {
	mu       sync.Mutex
	started  []string
	recorded []string
	decoded  []byte
}

func (h *recordingHost) StartGame(player, engineName string, _ time.Duration) {
	h.mu.Lock()
	h.started = append(h.started, player+"/"+engineName)
	h.mu.Unlock()
}

func (h *recordingHost) RecordLastMove(move string) {
	h.mu.Lock()
	h.recorded = append(h.recorded, move)
	h.mu.Unlock()
}

func (h *recordingHost) DecodePromotionChar(c byte) PieceType {
	h.mu.Lock()
	h.decoded = append(h.decoded, c)
	h.mu.Unlock()
	return DecodePromotion(c)
}

func (h *recordingHost) Recorded() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.recorded...)
}

type recordingClock struct {
	mu     sync.Mutex
	events []string
}

func (c *recordingClock) StartClock(side Side) {
	c.mu.Lock()
	c.events = append(c.events, "start:"+side.String())
	c.mu.Unlock()
}

func (c *recordingClock) SwitchClock(side Side) {
	c.mu.Lock()
	c.events = append(c.events, "switch:"+side.String())
	c.mu.Unlock()
}

func (c *recordingClock) RemainingTime(side Side) time.Duration {
	if side == First {
		return 60 * time.Second
	}
	return 55 * time.Second
}

func (c *recordingClock) Events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}
