// Package main provides the CLI entry point for the tmconn node.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time via ldflags.
	Version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tmconn",
		Short: "tmconn - authenticated encrypted peer transport node",
		Long: `tmconn runs nodes that speak the Tendermint secret connection
protocol: an authenticated, encrypted framing layer over TCP,
WebSocket or QUIC byte streams.

Each node holds a long-term Ed25519 identity. Connections perform an
ephemeral X25519 handshake, mutually authenticate by signing a
challenge bound to the key exchange, and then exchange fixed-size
ChaCha20-Poly1305 sealed frames.`,
		Version: Version,
	}

	rootCmd.AddGroup(&cobra.Group{ID: "start", Title: "Getting Started:"})
	rootCmd.AddGroup(&cobra.Group{ID: "ops", Title: "Operations:"})

	for _, c := range []*cobra.Command{initCmd(), setupCmd(), runCmd()} {
		c.GroupID = "start"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{dialCmd(), benchCmd(), rpcCmd()} {
		c.GroupID = "ops"
		rootCmd.AddCommand(c)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
