package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/park285/cheese-uci/internal/msgcat"
	"github.com/park285/cheese-uci/pkg/enginedto"
)

func TestParseTimeControl(t *testing.T) {
	cases := []struct {
		in       string
		tc, inc  time.Duration
		hasError bool
	}{
		{in: "5", tc: 5 * time.Minute},
		{in: "3+2", tc: 3 * time.Minute, inc: 2 * time.Second},
		{in: "90s+500ms", tc: 90 * time.Second, inc: 500 * time.Millisecond},
		{in: "0", hasError: true},
		{in: "fast", hasError: true},
		{in: "5+x", hasError: true},
	}
	for _, c := range cases {
		tc, inc, err := parseTimeControl(c.in)
		if (err != nil) != c.hasError {
			t.Fatalf("%q: err=%v", c.in, err)
		}
		if !c.hasError && (tc != c.tc || inc != c.inc) {
			t.Fatalf("%q: got %s+%s", c.in, tc, inc)
		}
	}
}

func TestConsolePublisherPrintsEngineMoves(t *testing.T) {
	msgs, err := msgcat.New("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	var buf bytes.Buffer
	p := consolePublisher{out: &buf, msgs: msgs}
	ctx := context.Background()
	_ = p.Publish(ctx, enginedto.Event{Kind: enginedto.EventMove, Move: &enginedto.MoveEvent{By: enginedto.MoveByPlayer, SAN: "e4"}})
	_ = p.Publish(ctx, enginedto.Event{Kind: enginedto.EventMove, Move: &enginedto.MoveEvent{By: enginedto.MoveByEngine, SAN: "e5", Ponder: "g1f3"}})
	_ = p.Publish(ctx, enginedto.Event{Kind: enginedto.EventGameOver, Game: &enginedto.GameRecord{Result: "1-0", ResultMethod: "checkmate"}})

	out := buf.String()
	if strings.Contains(out, "e4") {
		t.Fatalf("player moves should not be echoed: %q", out)
	}
	if !strings.Contains(out, "engine: e5 (expects g1f3)") || !strings.Contains(out, "game over: 1-0 (checkmate)") {
		t.Fatalf("output %q", out)
	}
}
