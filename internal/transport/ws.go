package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// WebSocket transport constants.
const (
	wsDefaultPath   = "/tmconn"
	wsSubprotocol   = "tmconn/1"
	wsReadLimit     = 1 << 20 // generous: frames are 1044 bytes
	wsCloseTimeout  = 5 * time.Second
	wsAcceptBacklog = 16
)

// WebSocketTransport implements Transport over WebSocket binary
// messages. Each WebSocket connection carries exactly one secret
// connection; websocket.NetConn adapts the message stream to the
// net.Conn byte-stream the core consumes.
type WebSocketTransport struct {
	mu        sync.Mutex
	listeners []*wsListener
	closed    bool
}

// NewWebSocketTransport creates a new WebSocket transport.
func NewWebSocketTransport() *WebSocketTransport {
	return &WebSocketTransport{}
}

// Type returns the transport type.
func (t *WebSocketTransport) Type() Type {
	return TypeWebSocket
}

// Dial connects to a remote peer over WebSocket.
func (t *WebSocketTransport) Dial(ctx context.Context, addr string, opts DialOptions) (net.Conn, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport closed")
	}
	t.mu.Unlock()

	wsURL := normalizeWebSocketURL(addr)

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	tlsConfig := opts.TLSConfig
	if tlsConfig == nil {
		// Peer authentication happens in the secret connection layer.
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	dialOpts := &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocol},
		HTTPClient: &http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		},
	}

	conn, _, err := websocket.Dial(ctx, wsURL, dialOpts)
	if err != nil {
		return nil, fmt.Errorf("WebSocket dial %s: %w", wsURL, err)
	}
	conn.SetReadLimit(wsReadLimit)

	return websocket.NetConn(context.Background(), conn, websocket.MessageBinary), nil
}

// Listen creates a WebSocket listener backed by an HTTP server.
func (t *WebSocketTransport) Listen(addr string, opts ListenOptions) (Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("transport closed")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("WebSocket listen %s: %w", addr, err)
	}
	if opts.TLSConfig != nil {
		ln = tls.NewListener(ln, opts.TLSConfig)
	}

	path := opts.Path
	if path == "" {
		path = wsDefaultPath
	}

	l := &wsListener{
		ln:     ln,
		accept: make(chan net.Conn, wsAcceptBacklog),
		done:   make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handleUpgrade)
	l.server = &http.Server{Handler: mux}

	go func() {
		// Serve returns on Close; nothing useful to do with the error.
		_ = l.server.Serve(ln)
	}()

	t.listeners = append(t.listeners, l)
	return l, nil
}

// Close shuts down the transport and all its listeners.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, l := range t.listeners {
		l.Close()
	}
	t.listeners = nil
	return nil
}

type wsListener struct {
	ln        net.Listener
	server    *http.Server
	accept    chan net.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func (l *wsListener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{wsSubprotocol},
	})
	if err != nil {
		return
	}
	conn.SetReadLimit(wsReadLimit)

	netConn := websocket.NetConn(context.Background(), conn, websocket.MessageBinary)
	select {
	case l.accept <- netConn:
	case <-l.done:
		netConn.Close()
	}
}

// Accept waits for the next upgraded connection.
func (l *wsListener) Accept(ctx context.Context) (net.Conn, error) {
	select {
	case conn := <-l.accept:
		return conn, nil
	case <-l.done:
		return nil, fmt.Errorf("listener closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *wsListener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *wsListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		ctx, cancel := context.WithTimeout(context.Background(), wsCloseTimeout)
		defer cancel()
		_ = l.server.Shutdown(ctx)
	})
	return nil
}

// normalizeWebSocketURL accepts "host:port" shorthand as well as full
// ws:// and wss:// URLs.
func normalizeWebSocketURL(addr string) string {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return addr
	}
	return "ws://" + addr + wsDefaultPath
}
