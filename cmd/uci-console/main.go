package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	corechess "github.com/park285/cheese-uci/internal/chess"
	"github.com/park285/cheese-uci/internal/chessbuilder"
	"github.com/park285/cheese-uci/internal/config"
	"github.com/park285/cheese-uci/internal/game"
	"github.com/park285/cheese-uci/internal/msgcat"
	"github.com/park285/cheese-uci/internal/obslog"
	"github.com/park285/cheese-uci/pkg/enginedto"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = obslog.Sync() }()
	logger := obslog.L()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	msgs, err := msgcat.New(os.Getenv("CONSOLE_MESSAGES_DIR"))
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := chessbuilder.New(ctx, cfg, logger, consolePublisher{out: os.Stdout, msgs: msgs})
	if err != nil {
		log.Fatalf("init error: %v", err)
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := deps.Close(cctx); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	c := &console{cfg: cfg, deps: deps, msgs: msgs, out: os.Stdout, player: cfg.PlayerName}
	c.say("console.help", nil)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || !c.handle(ctx, line) {
				return
			}
		}
	}
}

type console struct {
	cfg    *config.AppConfig
	deps   *chessbuilder.Deps
	msgs   *msgcat.Catalog
	out    io.Writer
	player string
}

// handle runs one command line and reports whether to keep reading.
func (c *console) handle(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]
	switch cmd {
	case "quit", "exit":
		return false
	case "help":
		c.say("console.help", nil)
	case "new":
		c.newGame(ctx, args)
	case "resign":
		c.report(c.deps.Manager.Resign(c.player))
	case "status":
		c.status()
	case "history":
		c.history(ctx)
	case "stats":
		c.stats(ctx)
	case "presets":
		fmt.Fprintln(c.out, strings.Join(corechess.PresetNames(), ", "))
	case "move":
		if len(args) != 1 {
			c.say("console.move_usage", nil)
			return true
		}
		c.move(ctx, args[0])
	default:
		// bare move
		c.move(ctx, parts[0])
	}
	return true
}

func (c *console) newGame(ctx context.Context, args []string) {
	opts := game.Options{EngineWhite: c.cfg.EngineWhite, TimeControl: c.cfg.TimeControl, Increment: c.cfg.Increment}
	for _, a := range args {
		switch strings.ToLower(a) {
		case "white", "w":
			opts.EngineWhite = false
		case "black", "b":
			opts.EngineWhite = true
		default:
			tc, inc, err := parseTimeControl(a)
			if err != nil {
				fmt.Fprintln(c.out, err)
				return
			}
			opts.TimeControl, opts.Increment = tc, inc
		}
	}
	s, err := c.deps.Manager.NewGame(ctx, c.player, &opts)
	if err != nil {
		c.report(err)
		return
	}
	color := "white"
	if opts.EngineWhite {
		color = "black"
	}
	c.say("console.started", map[string]string{"ID": s.ID, "Color": color})
}

func (c *console) move(ctx context.Context, text string) {
	mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := c.deps.Manager.Move(mctx, c.player, text)
	c.report(err)
}

func (c *console) status() {
	s, ok := c.deps.Manager.Session(c.player)
	if !ok {
		c.say("console.no_game", nil)
		return
	}
	st := s.Status()
	c.say("console.status", map[string]any{"FEN": st.Game.FEN, "Clock": st.Clock, "State": st.State})
	fmt.Fprintln(c.out, st.Position)
}

func (c *console) history(ctx context.Context) {
	games, err := c.deps.Archiver.Recent(ctx, c.player, 10)
	if err != nil {
		c.report(err)
		return
	}
	if len(games) == 0 {
		c.say("archive.empty", nil)
		return
	}
	for _, g := range games {
		c.say("archive.line", map[string]any{
			"ID":     g.ID,
			"Ended":  g.EndedAt.Format(time.DateTime),
			"Result": g.Result,
			"Method": g.ResultMethod,
			"Plies":  len(g.MovesUCI),
			"Engine": g.EngineName,
		})
	}
}

func (c *console) stats(ctx context.Context) {
	st, err := c.deps.Archiver.Stats(ctx, c.player)
	if err != nil {
		c.report(err)
		return
	}
	if st == nil {
		c.say("archive.no_stats", nil)
		return
	}
	c.say("archive.stats", map[string]any{
		"Player": st.Player, "Games": st.GamesPlayed, "Wins": st.Wins, "Losses": st.Losses, "Draws": st.Draws,
	})
}

func (c *console) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, game.ErrIllegalMove), errors.Is(err, game.ErrNotYourTurn),
		errors.Is(err, game.ErrNoActiveGame), errors.Is(err, game.ErrGameOver),
		errors.Is(err, game.ErrGameInProgress):
		fmt.Fprintln(c.out, err)
	default:
		c.say("console.error", map[string]any{"Err": err})
	}
}

func (c *console) say(key string, data any) {
	fmt.Fprintln(c.out, c.msgs.Text(key, data))
}

// parseTimeControl reads "5", "5+3" or "90s+2s"; bare numbers are minutes
// and seconds.
func parseTimeControl(s string) (time.Duration, time.Duration, error) {
	base, inc, _ := strings.Cut(s, "+")
	tc, err := parsePart(base, time.Minute)
	if err != nil || tc <= 0 {
		return 0, 0, fmt.Errorf("invalid time control %q", s)
	}
	var incr time.Duration
	if inc != "" {
		if incr, err = parsePart(inc, time.Second); err != nil || incr < 0 {
			return 0, 0, fmt.Errorf("invalid increment %q", s)
		}
	}
	return tc, incr, nil
}

func parsePart(s string, unit time.Duration) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * unit, nil
	}
	return time.ParseDuration(s)
}

type consolePublisher struct {
	out  io.Writer
	msgs *msgcat.Catalog
}

func (p consolePublisher) Publish(_ context.Context, ev enginedto.Event) error {
	var line string
	switch ev.Kind {
	case enginedto.EventMove:
		if ev.Move.By != enginedto.MoveByEngine {
			return nil
		}
		line = p.msgs.Text("game.engine_move", map[string]string{"SAN": ev.Move.SAN, "Ponder": ev.Move.Ponder})
	case enginedto.EventGameOver:
		line = p.msgs.Text("game.over", map[string]string{"Result": ev.Game.Result, "Method": ev.Game.ResultMethod})
	case enginedto.EventEngineFailed:
		line = p.msgs.Text("game.engine_failed", map[string]string{"Err": ev.Error})
	default:
		return nil
	}
	fmt.Fprintln(p.out, line)
	return nil
}
