// Package peer manages authenticated peer sessions: a transport
// connection wrapped in a secret connection, with identity verification
// and lifecycle tracking.
package peer

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/postalsys/tmconn/internal/identity"
	"github.com/postalsys/tmconn/internal/logging"
	"github.com/postalsys/tmconn/internal/metrics"
	"github.com/postalsys/tmconn/internal/secretconn"
	"github.com/postalsys/tmconn/internal/transport"
)

// State represents the state of a peer session.
type State int32

const (
	StateDisconnected State = iota
	StateHandshaking
	StateConnected
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Peer is an authenticated session with a single remote node. Read and
// Write may be used concurrently by one reader and one writer; the
// underlying secret connection partitions its send and receive state.
type Peer struct {
	localID  identity.PeerID
	remoteID identity.PeerID

	conn          net.Conn
	sc            *secretconn.SecretConnection
	transportType transport.Type
	isDialer      bool

	state         atomic.Int32
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
	establishedAt time.Time

	logger  *slog.Logger
	metrics *metrics.Metrics

	closeOnce sync.Once
	closeErr  error
}

// Config contains everything needed to establish a peer session.
type Config struct {
	// Keypair is the local node's long-term identity.
	Keypair *identity.Keypair

	// Version selects the secret connection protocol variant.
	Version secretconn.Version

	// ExpectedPeerID, when non-zero, is verified against the identity
	// the remote proves during the handshake.
	ExpectedPeerID identity.PeerID

	// HandshakeTimeout bounds the whole handshake. Zero means the
	// default of 10 seconds.
	HandshakeTimeout time.Duration

	// Logger receives structured session logs. Nil means no logging.
	Logger *slog.Logger

	// Metrics receives session counters. Nil means the shared default.
	Metrics *metrics.Metrics
}

func (cfg *Config) withDefaults() Config {
	out := *cfg
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = 10 * time.Second
	}
	if out.Logger == nil {
		out.Logger = logging.Discard()
	}
	if out.Metrics == nil {
		out.Metrics = metrics.Default()
	}
	return out
}

// RemoteID returns the authenticated identity of the remote peer.
func (p *Peer) RemoteID() identity.PeerID {
	return p.remoteID
}

// LocalID returns the local identity.
func (p *Peer) LocalID() identity.PeerID {
	return p.localID
}

// State returns the current session state.
func (p *Peer) State() State {
	return State(p.state.Load())
}

// IsDialer reports whether this side initiated the connection.
func (p *Peer) IsDialer() bool {
	return p.isDialer
}

// TransportType returns the transport the session runs over.
func (p *Peer) TransportType() transport.Type {
	return p.transportType
}

// LocalAddr returns the local transport address.
func (p *Peer) LocalAddr() net.Addr {
	return p.conn.LocalAddr()
}

// RemoteAddr returns the remote transport address.
func (p *Peer) RemoteAddr() net.Addr {
	return p.conn.RemoteAddr()
}

// BytesSent returns the plaintext bytes written so far.
func (p *Peer) BytesSent() uint64 {
	return p.bytesSent.Load()
}

// BytesReceived returns the plaintext bytes read so far.
func (p *Peer) BytesReceived() uint64 {
	return p.bytesReceived.Load()
}

// Uptime returns how long the session has been established.
func (p *Peer) Uptime() time.Duration {
	if p.establishedAt.IsZero() {
		return 0
	}
	return time.Since(p.establishedAt)
}

// Read reads decrypted payload from the session.
func (p *Peer) Read(b []byte) (int, error) {
	framesBefore := p.sc.FramesReceived()
	n, err := p.sc.Read(b)
	p.bytesReceived.Add(uint64(n))
	p.metrics.BytesReceived.WithLabelValues(string(p.transportType)).Add(float64(n))
	if opened := p.sc.FramesReceived() - framesBefore; opened > 0 {
		p.metrics.FramesOpened.Add(float64(opened))
	}
	return n, err
}

// Write encrypts and writes payload to the session.
func (p *Peer) Write(b []byte) (int, error) {
	framesBefore := p.sc.FramesSent()
	n, err := p.sc.Write(b)
	p.bytesSent.Add(uint64(n))
	p.metrics.BytesSent.WithLabelValues(string(p.transportType)).Add(float64(n))
	if sealed := p.sc.FramesSent() - framesBefore; sealed > 0 {
		p.metrics.FramesSealed.Add(float64(sealed))
	}
	return n, err
}

// Close terminates the session. Closing the transport is the only
// termination mechanism the protocol has.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		if p.State() == StateConnected {
			p.metrics.PeersConnected.Dec()
		}
		p.state.Store(int32(StateDisconnected))
		p.closeErr = p.conn.Close()
		p.logger.Debug("peer session closed")
	})
	return p.closeErr
}
