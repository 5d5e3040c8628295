package redis

import (
	"log"
	"os"
)

/*
Leveled logging

Neither the RESP wire format nor any single Go redis client in common use
pulls in a structured logging framework just to report "connection X
dropped, reconnecting in Y" — the teacher (redkit) threads a bare
*log.Logger through its Server instead. This package follows the same
shape, but borrows the Level enum from centrifugo's lib/logging so
that Connection/Factory/SentinelClient/Subscriber can all gate their
Printf calls on a single configured verbosity instead of scattering
if s.Debug checks.
*/

// Level controls which log lines a Logger actually writes.
type Level int

const (
	// LevelNone silences all output.
	LevelNone Level = iota
	// LevelError logs only Errorf output.
	LevelError
	// LevelWarn additionally logs recoverable anomalies (a failed dial, a
	// lost or torn-down connection, a failed Sentinel rediscovery, a
	// watch failure).
	LevelWarn
	// LevelInfo additionally logs lifecycle events (a connection
	// established after its handshake, a Sentinel-observed master change).
	LevelInfo
	// LevelDebug additionally logs each transaction's EXEC/DISCARD with
	// its queued-command count.
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	default:
		return "none"
	}
}

// Logger wraps a standard library logger with a minimum level.
type Logger struct {
	level Level
	out   *log.Logger
}

// NewLogger builds a Logger that writes to the given *log.Logger,
// suppressing anything below level.
func NewLogger(level Level, out *log.Logger) *Logger {
	if out == nil {
		out = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Logger{level: level, out: out}
}

// NopLogger discards everything; it is the default when Options.Logger is
// left nil.
var NopLogger = &Logger{level: LevelNone, out: log.New(os.Stderr, "", 0)}

func (l *Logger) enabled(level Level) bool {
	return l != nil && level <= l.level && level != LevelNone
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.enabled(LevelError) {
		l.out.Printf("[redis] ERROR "+format, args...)
	}
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	if l.enabled(LevelWarn) {
		l.out.Printf("[redis] WARN "+format, args...)
	}
}

func (l *Logger) Infof(format string, args ...interface{}) {
	if l.enabled(LevelInfo) {
		l.out.Printf("[redis] INFO "+format, args...)
	}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.enabled(LevelDebug) {
		l.out.Printf("[redis] DEBUG "+format, args...)
	}
}
