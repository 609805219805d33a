package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-uci/internal/domain"
	"github.com/park285/cheese-uci/pkg/enginedto"
)

// Archiver stores finished games and keeps player stats current.
type Archiver struct {
	repo   Repository
	logger *zap.Logger
}

func NewArchiver(repo Repository, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{repo: repo, logger: logger}
}

// Archive writes rec once. A game archived before returns its existing id.
func (a *Archiver) Archive(ctx context.Context, rec *enginedto.GameRecord) (int64, error) {
	if rec == nil || !rec.Finished() {
		return 0, fmt.Errorf("archive: game is not finished")
	}
	game := FromRecord(rec)
	id, err := a.repo.InsertGame(ctx, game)
	if errors.Is(err, ErrDuplicateGame) {
		prev, lookupErr := a.repo.GetGameByUUID(ctx, rec.ID)
		if lookupErr != nil || prev == nil {
			return 0, err
		}
		return prev.ID, nil
	}
	if err != nil {
		return 0, err
	}

	stats, err := a.repo.GetStats(ctx, game.Player)
	if err != nil {
		a.logger.Warn("archive: load stats failed", zap.String("player", game.Player), zap.Error(err))
		return id, nil
	}
	if stats == nil {
		stats = &domain.PlayerStats{Player: game.Player}
	}
	stats.Apply(game)
	if err := a.repo.UpsertStats(ctx, stats); err != nil {
		a.logger.Warn("archive: upsert stats failed", zap.String("player", game.Player), zap.Error(err))
	}
	a.logger.Info("game archived",
		zap.Int64("id", id),
		zap.String("game", rec.ID),
		zap.String("result", game.Result),
		zap.Int("plies", len(game.MovesUCI)),
	)
	return id, nil
}

func (a *Archiver) Recent(ctx context.Context, player string, limit int) ([]*domain.ArchivedGame, error) {
	return a.repo.GetRecentGames(ctx, player, limit)
}

func (a *Archiver) Stats(ctx context.Context, player string) (*domain.PlayerStats, error) {
	return a.repo.GetStats(ctx, player)
}

// FromRecord converts a finished live record into its archived form.
func FromRecord(rec *enginedto.GameRecord) *domain.ArchivedGame {
	ended := rec.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	duration := ended.Sub(rec.StartedAt)
	if duration < 0 || rec.StartedAt.IsZero() {
		duration = 0
	}
	result := rec.Result
	if result == "" {
		result = "*"
	}
	g := &domain.ArchivedGame{
		GameUUID:     rec.ID,
		Player:       rec.Player,
		EngineName:   rec.Engine,
		EngineWhite:  rec.EngineWhite,
		TimeControl:  rec.TimeControl,
		Increment:    rec.Increment,
		Result:       result,
		ResultMethod: rec.ResultMethod,
		MovesUCI:     append([]string(nil), rec.MovesUCI...),
		MovesSAN:     append([]string(nil), rec.MovesSAN...),
		StartedAt:    rec.StartedAt,
		EndedAt:      ended,
		Duration:     duration,
	}
	g.PGN = BuildPGN(g)
	return g
}

// BuildPGN renders the game with a minimal tag section.
func BuildPGN(g *domain.ArchivedGame) string {
	var b strings.Builder
	white, black := g.Player, g.EngineName
	if g.EngineWhite {
		white, black = black, white
	}
	date := g.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"Engine game\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(white)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(black)))
	if g.TimeControl > 0 {
		b.WriteString(fmt.Sprintf("[TimeControl \"%d+%d\"]\n", int(g.TimeControl.Seconds()), int(g.Increment.Seconds())))
	}
	if strings.TrimSpace(g.ResultMethod) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(g.ResultMethod))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", g.Result))

	for i := 0; i < len(g.MovesSAN); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, strings.TrimSpace(g.MovesSAN[i])))
		if i+1 < len(g.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(g.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(g.Result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
