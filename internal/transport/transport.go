// Package transport provides the reliable byte streams the secret
// connection layer runs over. Each transport yields plain net.Conn
// values: one connection, one ordered full-duplex stream, no
// multiplexing.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// Type identifies the transport protocol.
type Type string

const (
	TypeTCP       Type = "tcp"
	TypeWebSocket Type = "ws"
	TypeQUIC      Type = "quic"
)

// ALPNProtocol is the ALPN identifier offered on TLS-framed transports.
const ALPNProtocol = "tmconn/1"

// Transport creates and accepts peer byte streams.
type Transport interface {
	// Dial connects to a remote peer.
	Dial(ctx context.Context, addr string, opts DialOptions) (net.Conn, error)

	// Listen creates a listener for incoming connections.
	Listen(addr string, opts ListenOptions) (Listener, error)

	// Type returns the transport type identifier.
	Type() Type

	// Close shuts down the transport.
	Close() error
}

// Listener accepts incoming peer byte streams.
type Listener interface {
	// Accept waits for and returns the next connection.
	Accept(ctx context.Context) (net.Conn, error)

	// Addr returns the listener's network address.
	Addr() net.Addr

	// Close stops the listener.
	Close() error
}

// DialOptions contains options for dialing a peer.
type DialOptions struct {
	// Timeout is the connection timeout.
	Timeout time.Duration

	// TLSConfig is the TLS configuration for TLS-framed transports.
	// If nil, a config that skips certificate verification is used:
	// peer authentication happens in the secret connection layer.
	TLSConfig *tls.Config
}

// ListenOptions contains options for creating a listener.
type ListenOptions struct {
	// TLSConfig is the TLS configuration for TLS-framed transports.
	// If nil, the QUIC transport generates a self-signed certificate and
	// the WebSocket transport serves plain ws without TLS.
	TLSConfig *tls.Config

	// Path is the HTTP path for the WebSocket transport.
	Path string
}

// DefaultDialOptions returns DialOptions with sensible defaults.
func DefaultDialOptions() DialOptions {
	return DialOptions{
		Timeout: 30 * time.Second,
	}
}

// New returns the transport implementation for the given type.
func New(t Type) (Transport, error) {
	switch t {
	case TypeTCP:
		return NewTCPTransport(), nil
	case TypeWebSocket:
		return NewWebSocketTransport(), nil
	case TypeQUIC:
		return NewQUICTransport(), nil
	default:
		return nil, fmt.Errorf("unknown transport type %q", t)
	}
}
