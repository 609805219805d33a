package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/cheese-uci/pkg/enginedto"
)

const defaultTTL = time.Hour

// Store keeps live games in Redis: the record under uci:game:<id>, its move
// events as a list and a per-player pointer to the active game.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// Open connects to redisURL and pings it.
func Open(ctx context.Context, redisURL string, ttl time.Duration) (*Store, error) {
	opt, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(rdb, ttl), nil
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) keyGame(id string) string     { return "uci:game:" + strings.TrimSpace(id) }
func (s *Store) keyMoves(id string) string    { return s.keyGame(id) + ":moves" }
func (s *Store) keyPlayer(name string) string { return "uci:player:" + strings.TrimSpace(name) }
func (s *Store) keyActive() string            { return "uci:active" }

func (s *Store) SaveGame(ctx context.Context, g *enginedto.GameRecord) error {
	if g == nil || strings.TrimSpace(g.ID) == "" {
		return errors.New("save game: missing id")
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal game: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.keyGame(g.ID), raw, s.ttl)
	pipe.Expire(ctx, s.keyMoves(g.ID), s.ttl)
	if g.Finished() {
		pipe.SRem(ctx, s.keyActive(), g.ID)
	} else {
		pipe.SAdd(ctx, s.keyActive(), g.ID)
		pipe.Expire(ctx, s.keyActive(), s.ttl)
		if g.Player != "" {
			pipe.Set(ctx, s.keyPlayer(g.Player), g.ID, s.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save game %s: %w", g.ID, err)
	}
	return nil
}

// LoadGame returns nil, nil when the game is unknown or expired.
func (s *Store) LoadGame(ctx context.Context, id string) (*enginedto.GameRecord, error) {
	raw, err := s.rdb.Get(ctx, s.keyGame(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", id, err)
	}
	var g enginedto.GameRecord
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode game %s: %w", id, err)
	}
	return &g, nil
}

func (s *Store) AppendMove(ctx context.Context, ev enginedto.MoveEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal move: %w", err)
	}
	if err := s.rdb.RPush(ctx, s.keyMoves(ev.GameID), raw).Err(); err != nil {
		return fmt.Errorf("append move %s: %w", ev.GameID, err)
	}
	return s.rdb.Expire(ctx, s.keyMoves(ev.GameID), s.ttl).Err()
}

func (s *Store) Moves(ctx context.Context, id string) ([]enginedto.MoveEvent, error) {
	items, err := s.rdb.LRange(ctx, s.keyMoves(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load moves %s: %w", id, err)
	}
	out := make([]enginedto.MoveEvent, 0, len(items))
	for _, item := range items {
		var ev enginedto.MoveEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, fmt.Errorf("decode move %s: %w", id, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// ActiveGame returns the id of the player's running game, or "".
func (s *Store) ActiveGame(ctx context.Context, player string) (string, error) {
	id, err := s.rdb.Get(ctx, s.keyPlayer(player)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("active game of %s: %w", player, err)
	}
	g, err := s.LoadGame(ctx, id)
	if err != nil || g == nil || g.Finished() {
		return "", err
	}
	return id, nil
}

// ClearPlayer drops the player's active-game pointer if it still names id.
func (s *Store) ClearPlayer(ctx context.Context, player, id string) error {
	cur, err := s.rdb.Get(ctx, s.keyPlayer(player)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if cur != id {
		return nil
	}
	return s.rdb.Del(ctx, s.keyPlayer(player)).Err()
}

// ListActive returns the unfinished games and prunes ids whose record expired
// or finished.
func (s *Store) ListActive(ctx context.Context) ([]*enginedto.GameRecord, error) {
	ids, err := s.rdb.SMembers(ctx, s.keyActive()).Result()
	if err != nil {
		return nil, fmt.Errorf("list active: %w", err)
	}
	var out []*enginedto.GameRecord
	var stale []interface{}
	for _, id := range ids {
		g, err := s.LoadGame(ctx, id)
		if err != nil {
			return nil, err
		}
		if g == nil || g.Finished() {
			stale = append(stale, id)
			continue
		}
		out = append(out, g)
	}
	if len(stale) > 0 {
		if err := s.rdb.SRem(ctx, s.keyActive(), stale...).Err(); err != nil {
			return out, fmt.Errorf("prune active: %w", err)
		}
	}
	return out, nil
}
