package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"UCI_CONFIG_FILE", "UCI_ENGINE_PATH", "UCI_ENGINE_ARGS", "UCI_ENGINE_THREADS",
		"UCI_ENGINE_HASH_MB", "UCI_ENGINE_PONDER", "UCI_ENGINE_OPTIONS", "UCI_ENGINE_PRESET",
		"UCI_POOL_CAPACITY", "UCI_MAX_HISTORY_BYTES", "UCI_READY_TIMEOUT", "UCI_HANDSHAKE_TIMEOUT",
		"GAME_TIME_CONTROL", "GAME_INCREMENT", "GAME_TTL", "GAME_PLAYER", "GAME_ENGINE_WHITE",
		"REDIS_URL", "DATABASE_URL", "RELAY_WEBHOOK_URL", "RELAY_FEED_URL", "RELAY_TOKEN",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadRequiresEnginePath(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without engine path")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("UCI_ENGINE_PATH", "/usr/games/stockfish")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.EngineThreads != 1 || cfg.EngineHashMB != 16 || !cfg.EnginePonder {
		t.Fatalf("unexpected engine defaults %+v", cfg)
	}
	if cfg.ReadyTimeout != 4*time.Second || cfg.MaxHistoryBytes != 8192 || cfg.TimeControl != 5*time.Minute {
		t.Fatalf("unexpected timing defaults %+v", cfg)
	}
}

func TestLoadYAMLOverlayThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "uci.yaml")
	body := `
engine:
  path: /opt/engines/stockfish
  args: ["--quiet"]
  threads: 4
  hash_mb: 256
  ponder: false
  options:
    Skill Level: "12"
  ready_timeout: 2s
game:
  player: alice
  time_control: 180
  increment: 2s
storage:
  redis_url: redis://localhost:6379/1
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("UCI_CONFIG_FILE", path)
	t.Setenv("UCI_ENGINE_THREADS", "8")
	t.Setenv("UCI_ENGINE_OPTIONS", "Contempt=10, Skill Level = 3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.EnginePath != "/opt/engines/stockfish" || len(cfg.EngineArgs) != 1 {
		t.Fatalf("engine path/args %q %v", cfg.EnginePath, cfg.EngineArgs)
	}
	if cfg.EngineThreads != 8 || cfg.EngineHashMB != 256 || cfg.EnginePonder {
		t.Fatalf("engine settings %+v", cfg)
	}
	if cfg.EngineOptions["Skill Level"] != "3" || cfg.EngineOptions["Contempt"] != "10" {
		t.Fatalf("engine options %v", cfg.EngineOptions)
	}
	if cfg.ReadyTimeout != 2*time.Second || cfg.TimeControl != 3*time.Minute || cfg.Increment != 2*time.Second {
		t.Fatalf("durations %+v", cfg)
	}
	if cfg.PlayerName != "alice" || cfg.RedisURL != "redis://localhost:6379/1" {
		t.Fatalf("game/storage %+v", cfg)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("UCI_ENGINE_PATH", "stockfish")
	t.Setenv("GAME_TIME_CONTROL", "five minutes")
	if _, err := Load(); err == nil {
		t.Fatalf("expected duration error")
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("UCI_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
