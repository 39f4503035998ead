package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/postalsys/tmconn/internal/certutil"
)

const quicKeepAlive = 15 * time.Second

// QUICTransport implements Transport over QUIC. One QUIC connection
// carries a single bidirectional stream: the secret connection layer
// does its own framing and authentication, so the stream is treated as
// an opaque ordered byte pipe.
type QUICTransport struct {
	mu        sync.Mutex
	listeners []*quicListener
	closed    bool
}

// NewQUICTransport creates a new QUIC transport.
func NewQUICTransport() *QUICTransport {
	return &QUICTransport{}
}

// Type returns the transport type.
func (t *QUICTransport) Type() Type {
	return TypeQUIC
}

// Dial connects to a remote peer over QUIC and opens the session stream.
func (t *QUICTransport) Dial(ctx context.Context, addr string, opts DialOptions) (net.Conn, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport closed")
	}
	t.mu.Unlock()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	tlsConfig := opts.TLSConfig
	if tlsConfig == nil {
		// Peer authentication happens in the secret connection layer.
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	} else {
		tlsConfig = tlsConfig.Clone()
	}
	tlsConfig.NextProtos = []string{ALPNProtocol}

	conn, err := quic.DialAddr(ctx, addr, tlsConfig, &quic.Config{
		KeepAlivePeriod: quicKeepAlive,
	})
	if err != nil {
		return nil, fmt.Errorf("QUIC dial %s: %w", addr, err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "stream open failed")
		return nil, fmt.Errorf("QUIC open stream: %w", err)
	}

	return &quicStreamConn{conn: conn, stream: stream}, nil
}

// Listen creates a QUIC listener. A self-signed certificate is generated
// when no TLS config is supplied.
func (t *QUICTransport) Listen(addr string, opts ListenOptions) (Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("transport closed")
	}

	tlsConfig := opts.TLSConfig
	if tlsConfig == nil {
		var err error
		tlsConfig, err = certutil.SelfSignedTLSConfig("tmconn", []string{ALPNProtocol})
		if err != nil {
			return nil, err
		}
	} else {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.NextProtos = []string{ALPNProtocol}
	}

	ln, err := quic.ListenAddr(addr, tlsConfig, &quic.Config{
		KeepAlivePeriod: quicKeepAlive,
	})
	if err != nil {
		return nil, fmt.Errorf("QUIC listen %s: %w", addr, err)
	}

	l := &quicListener{ln: ln}
	t.listeners = append(t.listeners, l)
	return l, nil
}

// Close shuts down the transport and all its listeners.
func (t *QUICTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, l := range t.listeners {
		l.Close()
	}
	t.listeners = nil
	return nil
}

type quicListener struct {
	ln *quic.Listener
}

// Accept waits for the next QUIC connection and its session stream.
func (l *quicListener) Accept(ctx context.Context) (net.Conn, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		conn.CloseWithError(0, "stream accept failed")
		return nil, fmt.Errorf("QUIC accept stream: %w", err)
	}

	return &quicStreamConn{conn: conn, stream: stream}, nil
}

func (l *quicListener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *quicListener) Close() error {
	return l.ln.Close()
}

// quicStreamConn adapts a QUIC connection plus its single stream to
// net.Conn.
type quicStreamConn struct {
	conn   quic.Connection
	stream quic.Stream
}

func (c *quicStreamConn) Read(b []byte) (int, error)  { return c.stream.Read(b) }
func (c *quicStreamConn) Write(b []byte) (int, error) { return c.stream.Write(b) }

func (c *quicStreamConn) Close() error {
	c.stream.CancelRead(0)
	_ = c.stream.Close()
	return c.conn.CloseWithError(0, "closed")
}

func (c *quicStreamConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *quicStreamConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *quicStreamConn) SetDeadline(t time.Time) error      { return c.stream.SetDeadline(t) }
func (c *quicStreamConn) SetReadDeadline(t time.Time) error  { return c.stream.SetReadDeadline(t) }
func (c *quicStreamConn) SetWriteDeadline(t time.Time) error { return c.stream.SetWriteDeadline(t) }
