package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/postalsys/tmconn/internal/config"
	"github.com/postalsys/tmconn/internal/identity"
	"github.com/postalsys/tmconn/internal/logging"
	"github.com/postalsys/tmconn/internal/metrics"
	"github.com/postalsys/tmconn/internal/peer"
	"github.com/postalsys/tmconn/internal/transport"
)

func runCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the node: accept peers and echo their payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger := logging.New(logging.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
			})

			kp, created, err := identity.LoadOrCreate(cfg.Node.DataDir)
			if err != nil {
				return fmt.Errorf("load identity: %w", err)
			}
			if created {
				logger.Info("generated new node identity", logging.KeyPeer, kp.ID().String())
			}
			logger.Info("node starting",
				logging.KeyPeer, kp.ID().String(),
				logging.KeyProtocol, cfg.Node.ProtocolVersion)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			registry := peer.NewRegistry()
			defer registry.CloseAll()

			m := metrics.Default()
			if cfg.Metrics.Enabled {
				go serveMetrics(ctx, cfg.Metrics.Address, registry, logging.WithComponent(logger, "metrics"))
			}

			peerCfg := peer.Config{
				Keypair:          kp,
				Version:          cfg.Version(),
				HandshakeTimeout: cfg.Node.HandshakeTimeout,
				Logger:           logger,
				Metrics:          m,
			}

			var transports []transport.Transport
			defer func() {
				for _, tr := range transports {
					tr.Close()
				}
			}()

			for _, lc := range cfg.Listeners {
				tr, err := transport.New(transport.Type(lc.Transport))
				if err != nil {
					return err
				}
				transports = append(transports, tr)

				ln, err := tr.Listen(lc.Address, transport.ListenOptions{Path: lc.Path})
				if err != nil {
					return err
				}
				logger.Info("listening",
					logging.KeyTransport, lc.Transport,
					logging.KeyAddr, ln.Addr().String())

				go acceptLoop(ctx, ln, tr.Type(), peerCfg, registry, logger)
			}

			redialer := peer.NewRedialer(peer.DefaultReconnectConfig())
			for _, pc := range cfg.Peers {
				go maintainPeer(ctx, pc, peerCfg, registry, redialer, logger)
			}

			<-ctx.Done()
			logger.Info("node shutting down")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "configuration file")
	return cmd
}

// acceptLoop accepts transport connections and serves each peer until
// the context is cancelled.
func acceptLoop(ctx context.Context, ln transport.Listener, tt transport.Type, cfg peer.Config, registry *peer.Registry, logger *slog.Logger) {
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("accept failed", logging.KeyErr, err)
			continue
		}

		go func() {
			p, err := peer.Accept(conn, tt, cfg)
			if err != nil {
				logger.Warn("peer rejected", logging.KeyErr, err)
				return
			}
			servePeer(ctx, p, registry, logger)
		}()
	}
}

// maintainPeer dials a configured peer and redials it at once when the
// session drops. Failed dials are retried with jittered exponential
// backoff.
func maintainPeer(ctx context.Context, pc config.PeerConfig, cfg peer.Config, registry *peer.Registry, redialer *peer.Redialer, logger *slog.Logger) {
	if pc.ExpectedID != "" {
		id, err := identity.ParsePeerID(pc.ExpectedID)
		if err == nil {
			cfg.ExpectedPeerID = id
		}
	}

	tr, err := transport.New(transport.Type(pc.Transport))
	if err != nil {
		logger.Warn("bad peer transport", logging.KeyErr, err)
		return
	}
	defer tr.Close()

	for ctx.Err() == nil {
		if redialer.IsPaused() {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		p, err := peer.Dial(ctx, tr, pc.Address, transport.DefaultDialOptions(), cfg)
		if err != nil {
			delay, ok := redialer.NextDelay(pc.Address)
			if !ok {
				logger.Warn("giving up on peer",
					logging.KeyAddr, pc.Address,
					logging.KeyErr, err)
				return
			}
			logger.Warn("peer dial failed",
				logging.KeyAddr, pc.Address,
				"attempt", redialer.Attempts(pc.Address),
				"retry_in", delay,
				logging.KeyErr, err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}
		redialer.Reset(pc.Address)
		servePeer(ctx, p, registry, logger)
	}
}

// servePeer registers the session and echoes everything the peer sends
// back to it.
func servePeer(ctx context.Context, p *peer.Peer, registry *peer.Registry, logger *slog.Logger) {
	defer p.Close()

	if previous := registry.Add(p); previous != nil {
		// A fresh session to the same identity supersedes the old one.
		previous.Close()
	}
	defer registry.Remove(p)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := io.Copy(p, p); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Info("peer session ended",
				logging.KeyPeer, p.RemoteID().ShortString(),
				logging.KeyErr, err)
			return
		}
		logger.Info("peer session ended", logging.KeyPeer, p.RemoteID().ShortString())
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
}

// serveMetrics exposes the Prometheus endpoint and the JSON peer listing
// until the context ends.
func serveMetrics(ctx context.Context, addr string, registry *peer.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/peers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(registry.Snapshot())
	})
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("status endpoint listening", logging.KeyAddr, addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("status endpoint failed", logging.KeyErr, err)
	}
}
