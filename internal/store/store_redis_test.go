package store

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/cheese-uci/pkg/enginedto"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, time.Minute), mr
}

func TestSaveAndLoadGame(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	rec := &enginedto.GameRecord{
		ID:          "g1",
		Status:      enginedto.StatusActive,
		Player:      "alice",
		Engine:      "Fakefish",
		TimeControl: 5 * time.Minute,
		MovesUCI:    []string{"e2e4"},
	}
	if err := s.SaveGame(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.LoadGame(ctx, "g1")
	if err != nil || got == nil {
		t.Fatalf("load: %v", err)
	}
	if got.Player != "alice" || got.TimeControl != 5*time.Minute || len(got.MovesUCI) != 1 {
		t.Fatalf("unexpected record %+v", got)
	}
	if ttl := mr.TTL(s.keyGame("g1")); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %s", ttl)
	}
	id, err := s.ActiveGame(ctx, "alice")
	if err != nil || id != "g1" {
		t.Fatalf("active game %q err=%v", id, err)
	}
}

func TestLoadMissingGame(t *testing.T) {
	s, _ := newTestStore(t)
	got, err := s.LoadGame(context.Background(), "nope")
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", got, err)
	}
}

func TestMovesAreKeptInOrder(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for i, mv := range []string{"e2e4", "c7c5", "g1f3"} {
		ev := enginedto.MoveEvent{GameID: "g2", Ply: uint(i + 2), UCI: mv}
		if err := s.AppendMove(ctx, ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	moves, err := s.Moves(ctx, "g2")
	if err != nil {
		t.Fatalf("moves: %v", err)
	}
	if len(moves) != 3 || moves[0].UCI != "e2e4" || moves[2].UCI != "g1f3" || moves[2].Ply != 4 {
		t.Fatalf("unexpected moves %+v", moves)
	}
}

func TestFinishedGameLeavesActiveSet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	rec := &enginedto.GameRecord{ID: "g3", Status: enginedto.StatusActive, Player: "bob"}
	if err := s.SaveGame(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if list, _ := s.ListActive(ctx); len(list) != 1 {
		t.Fatalf("expected one active game, got %d", len(list))
	}
	rec.Status = enginedto.StatusFinished
	rec.Result = "1-0"
	if err := s.SaveGame(ctx, rec); err != nil {
		t.Fatalf("save finished: %v", err)
	}
	if list, _ := s.ListActive(ctx); len(list) != 0 {
		t.Fatalf("finished game still active: %+v", list)
	}
	if id, _ := s.ActiveGame(ctx, "bob"); id != "" {
		t.Fatalf("finished game still active for player: %q", id)
	}
	if err := s.ClearPlayer(ctx, "bob", "g3"); err != nil {
		t.Fatalf("clear: %v", err)
	}
}

func TestClearPlayerKeepsNewerGame(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_ = s.SaveGame(ctx, &enginedto.GameRecord{ID: "old", Status: enginedto.StatusActive, Player: "carol"})
	_ = s.SaveGame(ctx, &enginedto.GameRecord{ID: "new", Status: enginedto.StatusActive, Player: "carol"})
	if err := s.ClearPlayer(ctx, "carol", "old"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if id, _ := s.ActiveGame(ctx, "carol"); id != "new" {
		t.Fatalf("active game %q, want new", id)
	}
}

func TestGamesExpire(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	_ = s.SaveGame(ctx, &enginedto.GameRecord{ID: "g4", Status: enginedto.StatusActive})
	mr.FastForward(2 * time.Minute)
	if got, _ := s.LoadGame(ctx, "g4"); got != nil {
		t.Fatalf("game should have expired")
	}
}

func TestSaveRejectsMissingID(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.SaveGame(context.Background(), &enginedto.GameRecord{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestListActivePrunesExpiredRecords(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"live", "gone"} {
		rec := &enginedto.GameRecord{ID: id, Status: enginedto.StatusActive, Player: "p-" + id}
		if err := s.SaveGame(ctx, rec); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	mr.Del("uci:game:gone")

	list, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(list) != 1 || list[0].ID != "live" {
		t.Fatalf("active %+v", list)
	}
	if ok, _ := mr.IsMember("uci:active", "gone"); ok {
		t.Fatalf("expired game still in the active set")
	}
	if ok, _ := mr.IsMember("uci:active", "live"); !ok {
		t.Fatalf("live game pruned")
	}
}

func TestListActiveReportsBrokenRecord(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	if _, err := mr.SAdd("uci:active", "bad"); err != nil {
		t.Fatalf("sadd: %v", err)
	}
	if err := mr.Set("uci:game:bad", "{"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := s.ListActive(ctx); err == nil {
		t.Fatalf("undecodable record was swallowed")
	}
}
