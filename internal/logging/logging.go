// Package logging builds the structured loggers used across tmconn and
// defines the attribute vocabulary they share, so that a peer session
// logs under the same keys whether the line comes from the handshake,
// the frame layer, or the CLI.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects the handler built by New.
type Options struct {
	Level  string    // debug, info, warn, error; empty means info
	Format string    // text or json; empty means text
	Writer io.Writer // nil means os.Stderr
}

// New builds a structured logger from the given options.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// ParseLevel maps a configuration level name onto slog's scale. Unknown
// names fall back to info, so a node with a misspelled log level still
// comes up; the fallback is not reported.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything. Components constructed
// without a logger default to it.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// WithComponent tags a child logger with the subsystem it serves.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(KeyComponent, component)
}

// SessionLogger derives the logger a peer session carries: every line it
// emits identifies the authenticated peer, the transport the session
// runs over, and the protocol variant it was established with.
func SessionLogger(logger *slog.Logger, peerID, transport, protocol string) *slog.Logger {
	return logger.With(
		KeyPeer, peerID,
		KeyTransport, transport,
		KeyProtocol, protocol,
	)
}

// Attribute keys shared across the codebase.
const (
	KeyComponent = "component"
	KeyErr       = "err"
	KeyPeer      = "peer"
	KeyTransport = "transport"
	KeyProtocol  = "protocol"
	KeyAddr      = "addr"
	KeyRemote    = "remote"
	KeyLocal     = "local"
	KeyElapsed   = "elapsed"
	KeyBytes     = "bytes"
	KeyFrames    = "frames"
)
