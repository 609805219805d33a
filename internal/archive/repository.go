package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/cheese-uci/internal/domain"
)

var ErrDuplicateGame = errors.New("archived game already exists")

type Repository interface {
	InsertGame(ctx context.Context, game *domain.ArchivedGame) (int64, error)
	GetRecentGames(ctx context.Context, player string, limit int) ([]*domain.ArchivedGame, error)
	GetGame(ctx context.Context, id int64) (*domain.ArchivedGame, error)
	GetGameByUUID(ctx context.Context, gameUUID string) (*domain.ArchivedGame, error)
	GetStats(ctx context.Context, player string) (*domain.PlayerStats, error)
	UpsertStats(ctx context.Context, stats *domain.PlayerStats) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

const gameColumns = `
			id,
			game_uuid,
			player,
			engine_name,
			engine_white,
			time_control_ms,
			increment_ms,
			result,
			result_method,
			moves_uci,
			moves_san,
			pgn,
			started_at,
			ended_at,
			duration_ms`

func (r *repository) InsertGame(ctx context.Context, game *domain.ArchivedGame) (int64, error) {
	if game == nil {
		return 0, fmt.Errorf("nil archived game payload")
	}
	movesUCI, err := json.Marshal(game.MovesUCI)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(game.MovesSAN)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}

	const query = `
		INSERT INTO engine_games (
			game_uuid,
			player,
			engine_name,
			engine_white,
			time_control_ms,
			increment_ms,
			result,
			result_method,
			moves_uci,
			moves_san,
			pgn,
			started_at,
			ended_at,
			duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10::jsonb, $11, $12, $13, $14)
		ON CONFLICT (game_uuid) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(
		ctx,
		query,
		game.GameUUID,
		game.Player,
		game.EngineName,
		game.EngineWhite,
		game.TimeControl.Milliseconds(),
		game.Increment.Milliseconds(),
		game.Result,
		game.ResultMethod,
		movesUCI,
		movesSAN,
		game.PGN,
		game.StartedAt,
		game.EndedAt,
		game.Duration.Milliseconds(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return 0, ErrDuplicateGame
	}
	if err != nil {
		return 0, fmt.Errorf("insert archived game: %w", err)
	}
	return id.Int64, nil
}

func (r *repository) GetRecentGames(ctx context.Context, player string, limit int) ([]*domain.ArchivedGame, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT` + gameColumns + `
		FROM engine_games
		WHERE player = $1
		ORDER BY ended_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, player, limit)
	if err != nil {
		return nil, fmt.Errorf("select archived games: %w", err)
	}
	defer rows.Close()

	games := make([]*domain.ArchivedGame, 0, limit)
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived games: %w", err)
	}
	return games, nil
}

func (r *repository) GetGame(ctx context.Context, id int64) (*domain.ArchivedGame, error) {
	query := `SELECT` + gameColumns + `
		FROM engine_games
		WHERE id = $1`
	game, err := scanGame(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return game, err
}

func (r *repository) GetGameByUUID(ctx context.Context, gameUUID string) (*domain.ArchivedGame, error) {
	query := `SELECT` + gameColumns + `
		FROM engine_games
		WHERE game_uuid = $1
		LIMIT 1`
	game, err := scanGame(r.db.QueryRowContext(ctx, query, gameUUID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return game, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*domain.ArchivedGame, error) {
	var (
		game          domain.ArchivedGame
		movesUCIJSON  []byte
		movesSANJSON  []byte
		timeControlMS sql.NullInt64
		incrementMS   sql.NullInt64
		durationMS    sql.NullInt64
	)
	err := row.Scan(
		&game.ID,
		&game.GameUUID,
		&game.Player,
		&game.EngineName,
		&game.EngineWhite,
		&timeControlMS,
		&incrementMS,
		&game.Result,
		&game.ResultMethod,
		&movesUCIJSON,
		&movesSANJSON,
		&game.PGN,
		&game.StartedAt,
		&game.EndedAt,
		&durationMS,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan archived game: %w", err)
	}
	game.TimeControl = millis(timeControlMS)
	game.Increment = millis(incrementMS)
	game.Duration = millis(durationMS)
	if err := json.Unmarshal(movesUCIJSON, &game.MovesUCI); err != nil {
		return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
	}
	if err := json.Unmarshal(movesSANJSON, &game.MovesSAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	return &game, nil
}

func millis(v sql.NullInt64) time.Duration {
	if !v.Valid {
		return 0
	}
	return time.Duration(v.Int64) * time.Millisecond
}

func (r *repository) GetStats(ctx context.Context, player string) (*domain.PlayerStats, error) {
	const query = `
		SELECT
			player,
			games_played,
			wins,
			losses,
			draws,
			last_engine,
			last_played_at,
			updated_at
		FROM engine_player_stats
		WHERE player = $1`

	var stats domain.PlayerStats
	err := r.db.QueryRowContext(ctx, query, player).Scan(
		&stats.Player,
		&stats.GamesPlayed,
		&stats.Wins,
		&stats.Losses,
		&stats.Draws,
		&stats.LastEngine,
		&stats.LastPlayedAt,
		&stats.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select player stats: %w", err)
	}
	return &stats, nil
}

func (r *repository) UpsertStats(ctx context.Context, stats *domain.PlayerStats) error {
	if stats == nil {
		return fmt.Errorf("nil player stats payload")
	}
	const query = `
		INSERT INTO engine_player_stats (
			player,
			games_played,
			wins,
			losses,
			draws,
			last_engine,
			last_played_at,
			updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (player)
		DO UPDATE SET
			games_played = EXCLUDED.games_played,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			draws = EXCLUDED.draws,
			last_engine = EXCLUDED.last_engine,
			last_played_at = EXCLUDED.last_played_at,
			updated_at = NOW()`

	_, err := r.db.ExecContext(
		ctx,
		query,
		stats.Player,
		stats.GamesPlayed,
		stats.Wins,
		stats.Losses,
		stats.Draws,
		stats.LastEngine,
		stats.LastPlayedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert player stats: %w", err)
	}
	return nil
}
