package uci

import (
	"errors"
	"fmt"
)

var (
	ErrSpawnFailure       = errors.New("uci engine spawn failed")
	ErrWriteFailure       = errors.New("uci command write failed")
	ErrStreamStall        = errors.New("uci stream stalled")
	ErrProtocolMismatch   = errors.New("uci protocol mismatch")
	ErrStateOverflow      = errors.New("uci move history overflow")
	ErrEngineUnresponsive = errors.New("uci engine unresponsive")
	ErrEngineThinking     = errors.New("uci engine is searching")
	ErrClosed             = errors.New("uci session closed")
)

// ProtocolError describes a line that looked like a known response but failed its grammar.
type ProtocolError struct {
	Line   string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("uci protocol mismatch: %s (line=%q)", e.Reason, e.Line)
}

func (e *ProtocolError) Unwrap() error { return ErrProtocolMismatch }

func mismatch(line, reason string) error {
	return &ProtocolError{Line: line, Reason: reason}
}
