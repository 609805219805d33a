package chessbuilder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-uci/internal/archive"
	corechess "github.com/park285/cheese-uci/internal/chess"
	"github.com/park285/cheese-uci/internal/chess/uci"
	"github.com/park285/cheese-uci/internal/config"
	"github.com/park285/cheese-uci/internal/game"
	"github.com/park285/cheese-uci/internal/relay"
	"github.com/park285/cheese-uci/internal/store"
	"github.com/park285/cheese-uci/pkg/enginedto"
)

// Deps is the wired application. Store, Feed and the database are optional.
type Deps struct {
	Engine   uci.Config
	Pool     *uci.Pool
	Manager  *game.Manager
	Sink     *game.Sink
	Archiver *archive.Archiver
	Store    *store.Store
	Feed     *relay.Feed

	db     *sql.DB
	logger *zap.Logger
}

// EngineConfig maps the app config and its strength preset to adapter settings.
func EngineConfig(cfg *config.AppConfig, logger *zap.Logger) (uci.Config, error) {
	ec := uci.Config{
		Spawn:            uci.SpawnConfig{Path: cfg.EnginePath, Args: append([]string(nil), cfg.EngineArgs...)},
		Threads:          cfg.EngineThreads,
		HashMB:           cfg.EngineHashMB,
		DisablePonder:    !cfg.EnginePonder,
		ExtraOptions:     map[string]string{},
		ReadyTimeout:     cfg.ReadyTimeout,
		HandshakeTimeout: cfg.HandshakeTimeout,
		MaxHistoryBytes:  cfg.MaxHistoryBytes,
		Logger:           logger,
	}
	for k, v := range cfg.EngineOptions {
		ec.ExtraOptions[k] = v
	}
	if strings.TrimSpace(cfg.EnginePreset) != "" {
		preset, err := corechess.GetPreset(cfg.EnginePreset)
		if err != nil {
			return uci.Config{}, err
		}
		preset.Apply(&ec)
	}
	return ec, nil
}

// New wires the application. Extra publishers receive every game event next to
// the configured relay.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, extra ...relay.Publisher) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	engineCfg, err := EngineConfig(cfg, logger.Named("uci"))
	if err != nil {
		return nil, err
	}
	d := &Deps{Engine: engineCfg, logger: logger}

	// Live state (Redis optional)
	var recorder game.Recorder
	if strings.TrimSpace(cfg.RedisURL) != "" {
		st, err := store.Open(ctx, cfg.RedisURL, cfg.GameTTL)
		if err != nil {
			return nil, err
		}
		d.Store = st
		recorder = st
	}

	// Archive: Postgres when configured, in-process otherwise
	repo := archive.NewMemoryRepository()
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := archive.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			d.closeStorage()
			return nil, err
		}
		if err := archive.Migrate(ctx, db); err != nil {
			_ = db.Close()
			d.closeStorage()
			return nil, err
		}
		d.db = db
		repo = archive.NewRepository(db)
	}
	d.Archiver = archive.NewArchiver(repo, logger.Named("archive"))

	// Relay
	var client *relay.Client
	if strings.TrimSpace(cfg.RelayWebhookURL) != "" {
		client = relay.NewClient(cfg.RelayWebhookURL, relay.WithToken(cfg.RelayToken))
	}
	if strings.TrimSpace(cfg.RelayFeedURL) != "" {
		token := cfg.RelayToken
		d.Feed = relay.NewFeed(cfg.RelayFeedURL,
			relay.WithFeedLogger(logger.Named("relay")),
			relay.WithFeedHeaders(func() map[string]string {
				if token == "" {
					return nil
				}
				return map[string]string{"Authorization": "Bearer " + token}
			}),
		)
	}

	d.Sink = game.NewSink(game.SinkConfig{
		Recorder:  recorder,
		Archiver:  d.Archiver,
		Publisher: relay.Multi(append([]relay.Publisher{relay.NewPublisher("auto", client, d.Feed, logger.Named("relay"))}, extra...)...),
		Logger:    logger.Named("sink"),
	})
	d.Pool = uci.NewPool(uci.PoolConfig{PerConfigCapacity: cfg.PoolCapacity})
	d.Manager, err = game.NewManager(game.ManagerConfig{
		Pool:   d.Pool,
		Engine: engineCfg,
		Sink:   d.Sink,
		Defaults: game.Options{
			EngineWhite: cfg.EngineWhite,
			TimeControl: cfg.TimeControl,
			Increment:   cfg.Increment,
		},
		Logger: logger.Named("game"),
	})
	if err != nil {
		_ = d.Close(ctx)
		return nil, err
	}

	if d.Store != nil {
		if err := d.abortStale(ctx); err != nil {
			logger.Warn("abort stale games failed", zap.Error(err))
		}
	}
	if d.Feed != nil {
		d.Feed.OnMove(func(rm enginedto.RemoteMove) {
			// keep the feed's read loop free
			go func() {
				mctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := d.Manager.ApplyRemote(mctx, rm); err != nil {
					logger.Warn("remote move rejected", zap.String("game", rm.GameID), zap.String("move", rm.UCI), zap.Error(err))
				}
			}()
		})
		if err := d.Feed.Connect(ctx); err != nil {
			logger.Warn("relay feed connect failed, retrying in background", zap.Error(err))
		}
	}
	return d, nil
}

// abortStale closes games left active by a previous process; their engines
// are gone and cannot resume.
func (d *Deps) abortStale(ctx context.Context) error {
	games, err := d.Store.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, g := range games {
		g.Status = enginedto.StatusAborted
		g.Result = "*"
		g.ResultMethod = "restart"
		g.EndedAt = time.Now()
		if err := d.Store.SaveGame(ctx, g); err != nil {
			return err
		}
		if err := d.Store.ClearPlayer(ctx, g.Player, g.ID); err != nil {
			return err
		}
		d.logger.Info("stale game aborted", zap.String("game", g.ID), zap.String("player", g.Player))
	}
	return nil
}

// Close stops games first so their final events reach storage.
func (d *Deps) Close(ctx context.Context) error {
	var errs []error
	if d.Manager != nil {
		d.Manager.Close()
	}
	if d.Pool != nil {
		errs = append(errs, d.Pool.Close())
	}
	if d.Sink != nil {
		d.Sink.Close()
	}
	if d.Feed != nil {
		errs = append(errs, d.Feed.Close(ctx))
	}
	errs = append(errs, d.closeStorage())
	return errors.Join(errs...)
}

func (d *Deps) closeStorage() error {
	var errs []error
	if d.db != nil {
		errs = append(errs, d.db.Close())
	}
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	return errors.Join(errs...)
}
