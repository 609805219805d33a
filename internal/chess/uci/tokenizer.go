package uci

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
)

const (
	readChunkSize   = 4096
	maxLineLength   = 64 * 1024
	stallBackoffMin = time.Millisecond
	stallBackoffMax = 50 * time.Millisecond
)

// Tokenizer turns the engine's output stream into tokens. It keeps partial
// lines across reads, so Next can be called again after any error other than
// end of stream.
type Tokenizer struct {
	r       io.Reader
	logger  *zap.Logger
	scratch []byte
	partial []byte
	pending []Token
	eof     bool
	termErr error

	// discarding is set while skipping the rest of an overlong line.
	discarding bool

	sleep func(ctx context.Context, d time.Duration) error
}

func NewTokenizer(r io.Reader, logger *zap.Logger) *Tokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tokenizer{
		r:       r,
		logger:  logger,
		scratch: make([]byte, readChunkSize),
		sleep:   sleepWithContext,
	}
}

// Next returns the next token. After the stream ends it keeps returning an
// EndOfStream token together with the terminal read error (nil for io.EOF).
func (t *Tokenizer) Next(ctx context.Context) (Token, error) {
	backoff := stallBackoffMin
	for {
		if len(t.pending) > 0 {
			tok := t.pending[0]
			t.pending = t.pending[1:]
			return tok, nil
		}
		if t.eof {
			return Token{Kind: EndOfStream}, t.termErr
		}
		if err := ctx.Err(); err != nil {
			return Token{Kind: EndOfStream}, err
		}

		n, err := t.r.Read(t.scratch)
		if n > 0 {
			t.feed(t.scratch[:n])
			backoff = stallBackoffMin
		}
		if err != nil {
			// Buffered tokens are delivered first; the error surfaces with EndOfStream.
			t.flushPartial()
			t.eof = true
			if !errors.Is(err, io.EOF) {
				t.termErr = err
			}
			continue
		}
		if n <= 0 {
			t.logger.Debug("uci stream stall", zap.Duration("backoff", backoff), zap.Error(ErrStreamStall))
			if serr := t.sleep(ctx, backoff); serr != nil {
				return Token{Kind: EndOfStream}, serr
			}
			backoff *= 2
			if backoff > stallBackoffMax {
				backoff = stallBackoffMax
			}
		}
	}
}

func (t *Tokenizer) feed(chunk []byte) {
	for len(chunk) > 0 {
		idx := bytes.IndexByte(chunk, '\n')
		if idx < 0 {
			t.appendPartial(chunk)
			return
		}
		t.appendPartial(chunk[:idx])
		t.emitLine()
		chunk = chunk[idx+1:]
	}
}

func (t *Tokenizer) appendPartial(b []byte) {
	if t.discarding {
		return
	}
	if len(t.partial)+len(b) > maxLineLength {
		t.logger.Warn("uci line too long, discarding",
			zap.Int("limit", maxLineLength),
			zap.Error(mismatch(string(t.partial[:min(len(t.partial), 64)]), "line exceeds limit")))
		t.partial = t.partial[:0]
		t.discarding = true
		return
	}
	t.partial = append(t.partial, b...)
}

func (t *Tokenizer) emitLine() {
	if t.discarding {
		t.discarding = false
		t.partial = t.partial[:0]
		return
	}
	line := string(bytes.TrimSuffix(t.partial, []byte{'\r'}))
	t.partial = t.partial[:0]
	t.pending = append(t.pending, Classify(line))
}

func (t *Tokenizer) flushPartial() {
	if len(t.partial) == 0 || t.discarding {
		t.partial = t.partial[:0]
		t.discarding = false
		return
	}
	t.emitLine()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
