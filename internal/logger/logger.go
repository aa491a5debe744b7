package logger

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	// atomicLevel implements slog.Leveler and can be changed at runtime.
	atomicLevel = &dynamicLevel{v: int64(slog.LevelInfo)}
	// global logger instance
	global   *slog.Logger
	initOnce sync.Once
)

// dynamicLevel is an atomic Leveler.
type dynamicLevel struct{ v int64 }

func (d *dynamicLevel) Level() slog.Level { return slog.Level(atomic.LoadInt64(&d.v)) }
func (d *dynamicLevel) set(l slog.Level)  { atomic.StoreInt64(&d.v, int64(l)) }

// Init initializes the global logger at the default level (info). It is safe
// to call multiple times; the first call wins. Unlike a standalone program,
// this library never reads os.Args or the environment for its level — a host
// program drives the level explicitly through SetLevel.
func Init() {
	initOnce.Do(func() {
		global = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: atomicLevel}))
	})
}

// parseLevel converts string to slog.Level.
func parseLevel(s string) (slog.Level, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error", "err":
		return slog.LevelError, true
	}
	return 0, false
}

// SetLevel changes the runtime log level. Host programs call this explicitly;
// the library never infers a level from flags or environment variables.
func SetLevel(level string) error {
	Init()
	lvl, ok := parseLevel(level)
	if !ok {
		return errors.New("invalid log level: " + level)
	}
	atomicLevel.set(lvl)
	return nil
}

// Level returns the current runtime level as string.
func Level() string {
	Init()
	return atomicLevel.Level().String()
}

// UseWriter swaps the output writer (intended for tests, or a host program
// that wants structured logs routed somewhere other than stdout). Retains
// the current level.
func UseWriter(w io.Writer) {
	Init()
	global = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: atomicLevel}))
}

// Logger returns the global logger (ensures Init was called).
func Logger() *slog.Logger { Init(); return global }

// Convenience top-level logging functions.
func Debug(msg string, args ...any) { Logger().Debug(msg, args...) }
func Info(msg string, args ...any)  { Logger().Info(msg, args...) }
func Warn(msg string, args ...any)  { Logger().Warn(msg, args...) }
func Error(msg string, args ...any) { Logger().Error(msg, args...) }

// WithConn attaches the connection identity fields for one physical TLS
// stream to a device (instance id, peer address).
func WithConn(l *slog.Logger, connID, peerAddr string) *slog.Logger {
	return l.With("conn_id", connID, "peer_addr", peerAddr)
}

// WithNamespace attaches the channel namespace a message belongs to, e.g.
// "urn:x-cast:com.google.cast.tp.heartbeat".
func WithNamespace(l *slog.Logger, namespace string) *slog.Logger {
	return l.With("namespace", namespace)
}

// WithRequestID attaches the correlation id used to match a request to its
// out-of-order response.
func WithRequestID(l *slog.Logger, requestID uint32) *slog.Logger {
	return l.With("request_id", requestID)
}

// WithEndpoints attaches the source and destination platform identifiers
// carried by an envelope (e.g. "sender-0", "receiver-0", an app transport id).
func WithEndpoints(l *slog.Logger, source, destination string) *slog.Logger {
	return l.With("source", source, "destination", destination)
}
