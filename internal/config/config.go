package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	EnginePath    string
	EngineArgs    []string
	EngineThreads int
	EngineHashMB  int
	EnginePonder  bool
	EngineOptions map[string]string
	EnginePreset  string
	PoolCapacity  int

	ReadyTimeout     time.Duration
	HandshakeTimeout time.Duration
	MaxHistoryBytes  int

	PlayerName  string
	EngineWhite bool
	TimeControl time.Duration
	Increment   time.Duration

	RedisURL    string
	DatabaseURL string
	GameTTL     time.Duration

	RelayWebhookURL string
	RelayFeedURL    string
	RelayToken      string
}

// fileConfig is the YAML overlay. Unset keys keep the defaults.
type fileConfig struct {
	Engine struct {
		Path             string            `yaml:"path"`
		Args             []string          `yaml:"args"`
		Threads          int               `yaml:"threads"`
		HashMB           int               `yaml:"hash_mb"`
		Ponder           *bool             `yaml:"ponder"`
		Options          map[string]string `yaml:"options"`
		Preset           string            `yaml:"preset"`
		PoolCapacity     int               `yaml:"pool_capacity"`
		ReadyTimeout     string            `yaml:"ready_timeout"`
		HandshakeTimeout string            `yaml:"handshake_timeout"`
		MaxHistoryBytes  int               `yaml:"max_history_bytes"`
	} `yaml:"engine"`
	Game struct {
		Player      string `yaml:"player"`
		EngineWhite *bool  `yaml:"engine_white"`
		TimeControl string `yaml:"time_control"`
		Increment   string `yaml:"increment"`
		TTL         string `yaml:"ttl"`
	} `yaml:"game"`
	Storage struct {
		RedisURL    string `yaml:"redis_url"`
		DatabaseURL string `yaml:"database_url"`
	} `yaml:"storage"`
	Relay struct {
		WebhookURL string `yaml:"webhook_url"`
		FeedURL    string `yaml:"feed_url"`
		Token      string `yaml:"token"`
	} `yaml:"relay"`
}

func defaults() *AppConfig {
	return &AppConfig{
		EngineThreads:    1,
		EngineHashMB:     16,
		EnginePonder:     true,
		EngineOptions:    map[string]string{},
		PoolCapacity:     2,
		ReadyTimeout:     4 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		MaxHistoryBytes:  8192,
		PlayerName:       "player",
		TimeControl:      5 * time.Minute,
		GameTTL:          time.Hour,
	}
}

// Load builds the config from defaults, the UCI_CONFIG_FILE overlay and the
// environment, in that order.
func Load() (*AppConfig, error) {
	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("UCI_CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := cfg.applyYAML(data); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) applyYAML(data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}
	e := fc.Engine
	setString(&c.EnginePath, e.Path)
	if len(e.Args) > 0 {
		c.EngineArgs = append([]string(nil), e.Args...)
	}
	setPositive(&c.EngineThreads, e.Threads)
	setPositive(&c.EngineHashMB, e.HashMB)
	if e.Ponder != nil {
		c.EnginePonder = *e.Ponder
	}
	for k, v := range e.Options {
		c.EngineOptions[k] = v
	}
	setString(&c.EnginePreset, e.Preset)
	setPositive(&c.PoolCapacity, e.PoolCapacity)
	setPositive(&c.MaxHistoryBytes, e.MaxHistoryBytes)

	durations := []struct {
		dst *time.Duration
		raw string
		key string
	}{
		{&c.ReadyTimeout, e.ReadyTimeout, "engine.ready_timeout"},
		{&c.HandshakeTimeout, e.HandshakeTimeout, "engine.handshake_timeout"},
		{&c.TimeControl, fc.Game.TimeControl, "game.time_control"},
		{&c.Increment, fc.Game.Increment, "game.increment"},
		{&c.GameTTL, fc.Game.TTL, "game.ttl"},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.raw, d.key); err != nil {
			return err
		}
	}

	setString(&c.PlayerName, fc.Game.Player)
	if fc.Game.EngineWhite != nil {
		c.EngineWhite = *fc.Game.EngineWhite
	}
	setString(&c.RedisURL, fc.Storage.RedisURL)
	setString(&c.DatabaseURL, fc.Storage.DatabaseURL)
	setString(&c.RelayWebhookURL, fc.Relay.WebhookURL)
	setString(&c.RelayFeedURL, fc.Relay.FeedURL)
	setString(&c.RelayToken, fc.Relay.Token)
	return nil
}

func (c *AppConfig) applyEnv() error {
	setString(&c.EnginePath, os.Getenv("UCI_ENGINE_PATH"))
	if v := strings.TrimSpace(os.Getenv("UCI_ENGINE_ARGS")); v != "" {
		c.EngineArgs = strings.Fields(v)
	}
	if v := strings.TrimSpace(os.Getenv("UCI_ENGINE_THREADS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.EngineThreads = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("UCI_ENGINE_HASH_MB")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.EngineHashMB = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("UCI_ENGINE_PONDER")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.EnginePonder = b
		}
	}
	// UCI_ENGINE_OPTIONS="Skill Level=5,Contempt=0"
	if v := strings.TrimSpace(os.Getenv("UCI_ENGINE_OPTIONS")); v != "" {
		for _, part := range strings.Split(v, ",") {
			name, value, ok := strings.Cut(part, "=")
			name = strings.TrimSpace(name)
			if !ok || name == "" {
				continue
			}
			c.EngineOptions[name] = strings.TrimSpace(value)
		}
	}
	setString(&c.EnginePreset, os.Getenv("UCI_ENGINE_PRESET"))
	if v := strings.TrimSpace(os.Getenv("UCI_POOL_CAPACITY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.PoolCapacity = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("UCI_MAX_HISTORY_BYTES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxHistoryBytes = n
		}
	}

	for key, dst := range map[string]*time.Duration{
		"UCI_READY_TIMEOUT":     &c.ReadyTimeout,
		"UCI_HANDSHAKE_TIMEOUT": &c.HandshakeTimeout,
		"GAME_TIME_CONTROL":     &c.TimeControl,
		"GAME_INCREMENT":        &c.Increment,
		"GAME_TTL":              &c.GameTTL,
	} {
		if err := setDuration(dst, os.Getenv(key), key); err != nil {
			return err
		}
	}

	setString(&c.PlayerName, os.Getenv("GAME_PLAYER"))
	if v := strings.TrimSpace(os.Getenv("GAME_ENGINE_WHITE")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.EngineWhite = b
		}
	}
	setString(&c.RedisURL, os.Getenv("REDIS_URL"))
	setString(&c.DatabaseURL, os.Getenv("DATABASE_URL"))
	setString(&c.RelayWebhookURL, os.Getenv("RELAY_WEBHOOK_URL"))
	setString(&c.RelayFeedURL, os.Getenv("RELAY_FEED_URL"))
	setString(&c.RelayToken, os.Getenv("RELAY_TOKEN"))
	return nil
}

func (c *AppConfig) Validate() error {
	if c.EnginePath == "" {
		return errors.New("UCI_ENGINE_PATH is required")
	}
	if c.TimeControl <= 0 {
		return errors.New("time control must be positive")
	}
	if c.Increment < 0 {
		return errors.New("increment must not be negative")
	}
	return nil
}

func setString(dst *string, v string) {
	if s := strings.TrimSpace(v); s != "" {
		*dst = s
	}
}

func setPositive(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// setDuration accepts Go durations ("90s") or a bare number of seconds.
func setDuration(dst *time.Duration, raw, key string) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		*dst = time.Duration(n) * time.Second
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	*dst = d
	return nil
}
