package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestHelperProcess is not a real test. It is re-executed by the tests below
// as a tiny engine that speaks enough of the protocol to play one move.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("UCI_WANT_HELPER_PROCESS") != "1" {
		return
	}
	fmt.Fprintln(os.Stderr, "helper engine starting")
	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		cmd := strings.TrimSpace(in.Text())
		switch {
		case cmd == "uci":
			fmt.Println("id name Helperfish")
			fmt.Println("id author test")
			fmt.Println("option name Hash type spin default 16 min 1 max 128")
			fmt.Println("uciok")
		case cmd == "isready":
			fmt.Println("readyok")
		case strings.HasPrefix(cmd, "go wtime"):
			fmt.Println("info depth 1 score cp 0")
			fmt.Println("bestmove c7c5")
		case cmd == "quit":
			os.Exit(0)
		}
	}
	os.Exit(0)
}

func helperSpawnConfig() SpawnConfig {
	return SpawnConfig{
		Path: os.Args[0],
		Args: []string{"-test.run=^TestHelperProcess$"},
		Env:  []string{"UCI_WANT_HELPER_PROCESS=1"},
	}
}

func TestSpawnRejectsEmptyPath(t *testing.T) {
	if _, err := Spawn(context.Background(), SpawnConfig{Path: "  "}, nil); !errors.Is(err, ErrSpawnFailure) {
		t.Fatalf("expected spawn failure, got %v", err)
	}
}

func TestSpawnMissingExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no-such-engine")
	if _, err := Spawn(context.Background(), SpawnConfig{Path: path}, nil); !errors.Is(err, ErrSpawnFailure) {
		t.Fatalf("expected spawn failure, got %v", err)
	}
}

func TestSpawnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Spawn(ctx, helperSpawnConfig(), nil); !errors.Is(err, ErrSpawnFailure) {
		t.Fatalf("expected spawn failure, got %v", err)
	}
}

func TestSessionSendAfterClose(t *testing.T) {
	s, err := Spawn(context.Background(), helperSpawnConfig(), nil)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	err = s.Send("isready")
	if !errors.Is(err, ErrWriteFailure) || !errors.Is(err, ErrClosed) {
		t.Fatalf("expected write failure on closed session, got %v", err)
	}
}

func TestStartAgainstHelperEngine(t *testing.T) {
	events := newRecordingObserver()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a, err := Start(ctx, Config{Spawn: helperSpawnConfig()}, Collaborators{Observer: events})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer a.Close()

	if a.EngineName() != "Helperfish" {
		t.Fatalf("engine name %q", a.EngineName())
	}
	if err := a.NewGame(ctx, "carol", time.Minute); err != nil {
		t.Fatalf("new game: %v", err)
	}
	if err := a.PlayUserMove(ctx, "e2e4"); err != nil {
		t.Fatalf("user move: %v", err)
	}
	ev := events.nextMove(t)
	if ev.Move != "c7c5" {
		t.Fatalf("unexpected move %+v", ev)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if a.Err() != nil {
		t.Fatalf("clean shutdown recorded %v", a.Err())
	}
}
