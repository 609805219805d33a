package archive

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS engine_games (
	id              BIGSERIAL PRIMARY KEY,
	game_uuid       TEXT NOT NULL UNIQUE,
	player          TEXT NOT NULL,
	engine_name     TEXT NOT NULL DEFAULT '',
	engine_white    BOOLEAN NOT NULL DEFAULT FALSE,
	time_control_ms BIGINT,
	increment_ms    BIGINT,
	result          TEXT NOT NULL,
	result_method   TEXT NOT NULL DEFAULT '',
	moves_uci       JSONB NOT NULL,
	moves_san       JSONB NOT NULL,
	pgn             TEXT NOT NULL DEFAULT '',
	started_at      TIMESTAMPTZ NOT NULL,
	ended_at        TIMESTAMPTZ NOT NULL,
	duration_ms     BIGINT
);
CREATE INDEX IF NOT EXISTS engine_games_player_ended_idx ON engine_games (player, ended_at DESC);

CREATE TABLE IF NOT EXISTS engine_player_stats (
	player         TEXT PRIMARY KEY,
	games_played   INTEGER NOT NULL DEFAULT 0,
	wins           INTEGER NOT NULL DEFAULT 0,
	losses         INTEGER NOT NULL DEFAULT 0,
	draws          INTEGER NOT NULL DEFAULT 0,
	last_engine    TEXT NOT NULL DEFAULT '',
	last_played_at TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// Migrate creates the archive tables when they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate archive schema: %w", err)
	}
	return nil
}
