package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/postalsys/tmconn/internal/identity"
	"github.com/postalsys/tmconn/internal/logging"
	"github.com/postalsys/tmconn/internal/peer"
	"github.com/postalsys/tmconn/internal/secretconn"
	"github.com/postalsys/tmconn/internal/transport"
)

func dialCmd() *cobra.Command {
	var (
		transportName string
		versionName   string
		dataDir       string
		expectedID    string
		message       string
		timeout       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "dial <address>",
		Short: "Connect to a node, send a message, and print the echo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := args[0]

			version, err := secretconn.ParseVersion(versionName)
			if err != nil {
				return err
			}

			kp, _, err := identity.LoadOrCreate(dataDir)
			if err != nil {
				return fmt.Errorf("load identity: %w", err)
			}

			cfg := peer.Config{
				Keypair:          kp,
				Version:          version,
				HandshakeTimeout: timeout,
				Logger:           logging.Discard(),
			}
			if expectedID != "" {
				id, err := identity.ParsePeerID(expectedID)
				if err != nil {
					return err
				}
				cfg.ExpectedPeerID = id
			}

			tr, err := transport.New(transport.Type(transportName))
			if err != nil {
				return err
			}
			defer tr.Close()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			start := time.Now()
			p, err := peer.Dial(ctx, tr, addr, transport.DefaultDialOptions(), cfg)
			if err != nil {
				fmt.Println(renderErr("Handshake failed"))
				return err
			}
			defer p.Close()
			handshakeTime := time.Since(start)

			payload := []byte(message)
			start = time.Now()
			if _, err := p.Write(payload); err != nil {
				return fmt.Errorf("write: %w", err)
			}

			echo := make([]byte, len(payload))
			if _, err := io.ReadFull(p, echo); err != nil {
				return fmt.Errorf("read echo: %w", err)
			}
			rtt := time.Since(start)

			if string(echo) != message {
				fmt.Println(renderErr("Echo mismatch"))
				return fmt.Errorf("echo payload does not match")
			}

			fmt.Println(renderOK("Connected and authenticated"))
			fmt.Println(renderKV("remote peer", p.RemoteID().String()))
			fmt.Println(renderKV("transport", string(p.TransportType())))
			fmt.Println(renderKV("protocol", version.String()))
			fmt.Println(renderKV("handshake", handshakeTime.Round(time.Microsecond).String()))
			fmt.Println(renderKV("echo rtt", rtt.Round(time.Microsecond).String()))
			fmt.Println(renderKV("payload", humanize.Bytes(uint64(len(payload)))))
			return nil
		},
	}

	cmd.Flags().StringVarP(&transportName, "transport", "t", "tcp", "transport type: tcp, ws, quic")
	cmd.Flags().StringVar(&versionName, "protocol-version", "v0.34", "secret connection protocol version")
	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "directory for the identity key")
	cmd.Flags().StringVar(&expectedID, "expect", "", "expected remote peer ID (hex)")
	cmd.Flags().StringVarP(&message, "message", "m", "The Queen's Gambit", "payload to send")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "dial and handshake timeout")
	return cmd
}
