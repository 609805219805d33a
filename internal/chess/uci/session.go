package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// SpawnConfig locates the engine executable. Discovery is up to the caller.
type SpawnConfig struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

// Session owns the engine process and its three streams.
type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
	logger *zap.Logger

	mu        sync.Mutex
	closed    bool
	closeErr  error
	closeOnce sync.Once
	diagDone  chan struct{}
}

func Spawn(ctx context.Context, cfg SpawnConfig, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("%w: empty engine path", ErrSpawnFailure)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailure, err)
	}

	// The process outlives ctx; teardown goes through Close.
	cmd := exec.Command(cfg.Path, cfg.Args...)
	if len(cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), cfg.Env...)
	}
	cmd.Dir = cfg.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: create stdin pipe: %v", ErrSpawnFailure, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("%w: create stdout pipe: %v", ErrSpawnFailure, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("%w: create stderr pipe: %v", ErrSpawnFailure, err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("%w: start engine %s: %v", ErrSpawnFailure, cfg.Path, err)
	}

	s := &Session{
		cmd:      cmd,
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
		logger:   logger,
		diagDone: make(chan struct{}),
	}
	go s.drainDiagnostics()
	logger.Info("uci engine spawned", zap.String("path", cfg.Path), zap.Int("pid", cmd.Process.Pid))
	return s, nil
}

// NewPipeSession wraps already-connected streams. There is no process to reap.
func NewPipeSession(stdin io.WriteCloser, stdout io.ReadCloser, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{stdin: stdin, stdout: stdout, logger: logger}
}

// Output is the engine's response stream.
func (s *Session) Output() io.Reader { return s.stdout }

// Send writes one command line. The terminator is appended when missing.
func (s *Session) Send(command string) error {
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: %w", ErrWriteFailure, ErrClosed)
	}
	if _, err := io.WriteString(s.stdin, command); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	return nil
}

// Close closes every stream, then kills and reaps the process.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		var errs []error
		if s.stdin != nil {
			if err := s.stdin.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
				errs = append(errs, fmt.Errorf("close stdin: %w", err))
			}
		}
		if s.stdout != nil {
			_ = s.stdout.Close()
		}
		if s.cmd != nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
			// stderr must be fully read before Wait closes it.
			<-s.diagDone
			if err := s.cmd.Wait(); err != nil && !isExitError(err) {
				errs = append(errs, fmt.Errorf("wait engine: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func (s *Session) drainDiagnostics() {
	defer close(s.diagDone)
	scanner := bufio.NewScanner(s.stderr)
	for scanner.Scan() {
		s.logger.Debug("uci engine stderr", zap.String("line", scanner.Text()))
	}
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
