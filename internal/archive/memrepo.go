package archive

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-uci/internal/domain"
)

// memrepo is the in-memory Repository used when no database is configured.
type memrepo struct {
	mu sync.RWMutex

	nextID int64

	gamesByID     map[int64]*domain.ArchivedGame
	gamesByPlayer map[string][]*domain.ArchivedGame
	gamesByUUID   map[string]*domain.ArchivedGame

	stats map[string]*domain.PlayerStats
}

func NewMemoryRepository() Repository {
	return &memrepo{
		gamesByID:     make(map[int64]*domain.ArchivedGame),
		gamesByPlayer: make(map[string][]*domain.ArchivedGame),
		gamesByUUID:   make(map[string]*domain.ArchivedGame),
		stats:         make(map[string]*domain.PlayerStats),
	}
}

func (m *memrepo) InsertGame(_ context.Context, game *domain.ArchivedGame) (int64, error) {
	if game == nil {
		return 0, ErrDuplicateGame
	}
	key := strings.TrimSpace(game.GameUUID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.gamesByUUID[key]; exists {
		return 0, ErrDuplicateGame
	}
	m.nextID++
	stored := cloneGame(game)
	stored.ID = m.nextID

	m.gamesByID[stored.ID] = stored
	m.gamesByUUID[key] = stored
	m.gamesByPlayer[game.Player] = append(m.gamesByPlayer[game.Player], stored)
	return stored.ID, nil
}

func (m *memrepo) GetRecentGames(_ context.Context, player string, limit int) ([]*domain.ArchivedGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.gamesByPlayer[player]
	items := make([]*domain.ArchivedGame, 0, len(list))
	for _, g := range list {
		items = append(items, cloneGame(g))
	}
	// ended_at desc, then id desc
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memrepo) GetGame(_ context.Context, id int64) (*domain.ArchivedGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g, ok := m.gamesByID[id]; ok {
		return cloneGame(g), nil
	}
	return nil, nil
}

func (m *memrepo) GetGameByUUID(_ context.Context, gameUUID string) (*domain.ArchivedGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g, ok := m.gamesByUUID[strings.TrimSpace(gameUUID)]; ok {
		return cloneGame(g), nil
	}
	return nil, nil
}

func (m *memrepo) GetStats(_ context.Context, player string) (*domain.PlayerStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.stats[player]; ok {
		c := *s
		return &c, nil
	}
	return nil, nil
}

func (m *memrepo) UpsertStats(_ context.Context, stats *domain.PlayerStats) error {
	if stats == nil {
		return nil
	}
	c := *stats
	c.UpdatedAt = time.Now()
	m.mu.Lock()
	m.stats[stats.Player] = &c
	m.mu.Unlock()
	return nil
}

func cloneGame(g *domain.ArchivedGame) *domain.ArchivedGame {
	c := *g
	c.MovesUCI = append([]string(nil), g.MovesUCI...)
	c.MovesSAN = append([]string(nil), g.MovesSAN...)
	return &c
}
