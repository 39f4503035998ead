package peer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/postalsys/tmconn/internal/identity"
	"github.com/postalsys/tmconn/internal/logging"
	"github.com/postalsys/tmconn/internal/secretconn"
	"github.com/postalsys/tmconn/internal/transport"
)

// ErrPeerIDMismatch is returned when the remote proves an identity other
// than the expected one.
var ErrPeerIDMismatch = errors.New("peer ID mismatch")

// Dial connects to addr over the given transport and establishes an
// authenticated session.
func Dial(ctx context.Context, tr transport.Transport, addr string, opts transport.DialOptions, cfg Config) (*Peer, error) {
	conn, err := tr.Dial(ctx, addr, opts)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	p, err := newPeer(conn, true, tr.Type(), cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

// Accept establishes an authenticated session over an already-accepted
// transport connection.
func Accept(conn net.Conn, transportType transport.Type, cfg Config) (*Peer, error) {
	p, err := newPeer(conn, false, transportType, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

// newPeer runs the secret connection handshake on conn and verifies the
// resulting identity against the expectation, if any.
func newPeer(conn net.Conn, isDialer bool, transportType transport.Type, cfg Config) (*Peer, error) {
	cfg = cfg.withDefaults()
	if cfg.Keypair == nil {
		return nil, errors.New("peer config requires a local identity keypair")
	}

	p := &Peer{
		localID:       cfg.Keypair.ID(),
		conn:          conn,
		transportType: transportType,
		isDialer:      isDialer,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}
	p.state.Store(int32(StateHandshaking))

	// Bound the whole handshake with a transport deadline; there are no
	// internal timers below this layer.
	if err := conn.SetDeadline(time.Now().Add(cfg.HandshakeTimeout)); err != nil {
		return nil, fmt.Errorf("set handshake deadline: %w", err)
	}

	start := time.Now()
	sc, err := secretconn.New(conn, cfg.Keypair.PrivateKey, cfg.Version)
	if err != nil {
		cfg.Metrics.HandshakesTotal.WithLabelValues(cfg.Version.String(), "error").Inc()
		if errors.Is(err, secretconn.ErrCrypto) || errors.Is(err, secretconn.ErrInvalidKey) {
			cfg.Metrics.CryptoFailures.Inc()
		}
		cfg.Logger.Warn("secret connection handshake failed",
			logging.KeyTransport, string(transportType),
			logging.KeyRemote, conn.RemoteAddr().String(),
			logging.KeyErr, err)
		return nil, fmt.Errorf("secret connection handshake: %w", err)
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("clear handshake deadline: %w", err)
	}

	p.sc = sc
	p.remoteID = identity.FromPublicKey(sc.RemotePubKey())

	if !cfg.ExpectedPeerID.IsZero() && p.remoteID != cfg.ExpectedPeerID {
		cfg.Metrics.HandshakesTotal.WithLabelValues(cfg.Version.String(), "id_mismatch").Inc()
		return nil, fmt.Errorf("%w: expected %s, got %s",
			ErrPeerIDMismatch, cfg.ExpectedPeerID.ShortString(), p.remoteID.ShortString())
	}

	p.establishedAt = time.Now()
	p.state.Store(int32(StateConnected))
	cfg.Metrics.HandshakesTotal.WithLabelValues(cfg.Version.String(), "ok").Inc()
	cfg.Metrics.HandshakeDuration.Observe(time.Since(start).Seconds())
	cfg.Metrics.PeersConnected.Inc()

	// All session logs from here on identify the authenticated peer.
	p.logger = logging.SessionLogger(cfg.Logger,
		p.remoteID.ShortString(), string(transportType), cfg.Version.String())
	p.logger.Info("peer session established",
		logging.KeyRemote, conn.RemoteAddr().String(),
		logging.KeyElapsed, time.Since(start))

	return p, nil
}
