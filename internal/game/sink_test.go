package game

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/park285/cheese-uci/pkg/enginedto"
)

type countingArchiver struct {
	mu    sync.Mutex
	games []string
	err   error
}

func (a *countingArchiver) Archive(_ context.Context, rec *enginedto.GameRecord) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return 0, a.err
	}
	a.games = append(a.games, rec.ID)
	return int64(len(a.games)), nil
}

func TestSinkArchivesOnlyFinishedGames(t *testing.T) {
	arch := &countingArchiver{}
	pub := &recordingPublisher{}
	s := NewSink(SinkConfig{Archiver: arch, Publisher: pub})

	s.Emit(enginedto.Event{Kind: enginedto.EventGameStarted, Game: &enginedto.GameRecord{ID: "a", Status: enginedto.StatusActive}})
	s.Emit(enginedto.Event{Kind: enginedto.EventGameOver, Game: &enginedto.GameRecord{ID: "a", Status: enginedto.StatusFinished}})
	s.Emit(enginedto.Event{Kind: enginedto.EventGameOver, Game: &enginedto.GameRecord{ID: "b", Status: enginedto.StatusAborted}})
	s.Close()

	if len(arch.games) != 1 || arch.games[0] != "a" {
		t.Fatalf("archived %v", arch.games)
	}
	if len(pub.Kinds()) != 3 {
		t.Fatalf("published %v", pub.Kinds())
	}
	s.Emit(enginedto.Event{Kind: enginedto.EventMove})
	s.Close()
}

func TestSinkPublishesDespiteArchiveFailure(t *testing.T) {
	arch := &countingArchiver{err: errors.New("db down")}
	pub := &recordingPublisher{}
	s := NewSink(SinkConfig{Archiver: arch, Publisher: pub})
	rec := &enginedto.GameRecord{ID: "c", Status: enginedto.StatusFinished}
	s.Emit(enginedto.Event{Kind: enginedto.EventGameOver, Game: rec})
	s.Close()
	if kinds := pub.Kinds(); len(kinds) != 1 || kinds[0] != enginedto.EventGameOver {
		t.Fatalf("published %v", kinds)
	}
	if rec.ArchiveID != 0 {
		t.Fatalf("archive id set on failure")
	}
}
