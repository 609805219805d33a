package uci

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	cmdUCI        = "uci"
	cmdIsReady    = "isready"
	cmdNewGame    = "ucinewgame"
	cmdGoPonder   = "go ponder"
	cmdStop       = "stop"
	cmdQuit       = "quit"
	cmdSetOption  = "setoption name %s value %s"
	minClockMilli = 0
)

type sender interface {
	Send(command string) error
}

// commandWriter formats outbound commands and hands them to the session.
type commandWriter struct {
	out    sender
	logger *zap.Logger
}

func (w *commandWriter) send(cmd string) error {
	w.logger.Debug("uci >>", zap.String("cmd", cmd))
	if err := w.out.Send(cmd); err != nil {
		w.logger.Warn("uci send failed", zap.String("cmd", cmd), zap.Error(err))
		return err
	}
	return nil
}

func (w *commandWriter) UCI() error     { return w.send(cmdUCI) }
func (w *commandWriter) IsReady() error { return w.send(cmdIsReady) }
func (w *commandWriter) NewGame() error { return w.send(cmdNewGame) }
func (w *commandWriter) Stop() error    { return w.send(cmdStop) }
func (w *commandWriter) Quit() error    { return w.send(cmdQuit) }

func (w *commandWriter) SetOption(name, value string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("setoption: empty option name")
	}
	return w.send(fmt.Sprintf(cmdSetOption, name, strings.TrimSpace(value)))
}

func (w *commandWriter) Position(position string) error {
	return w.send(position)
}

func (w *commandWriter) Go(whiteTime, blackTime time.Duration) error {
	return w.send(formatGo(whiteTime, blackTime))
}

func (w *commandWriter) GoPonder() error { return w.send(cmdGoPonder) }

func formatGo(whiteTime, blackTime time.Duration) string {
	return strings.Join([]string{
		"go",
		"wtime", strconv.FormatInt(clampMillis(whiteTime), 10),
		"btime", strconv.FormatInt(clampMillis(blackTime), 10),
	}, " ")
}

func clampMillis(d time.Duration) int64 {
	ms := d.Milliseconds()
	if ms < minClockMilli {
		return minClockMilli
	}
	return ms
}
