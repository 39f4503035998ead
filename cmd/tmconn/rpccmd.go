package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/postalsys/tmconn/internal/rpc"
)

func rpcCmd() *cobra.Command {
	var (
		endpoint string
		proxyURL string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "rpc",
		Short: "Query a Tendermint-style JSON-RPC endpoint",
	}
	cmd.PersistentFlags().StringVar(&endpoint, "endpoint", "http://127.0.0.1:26657", "RPC endpoint URL")
	cmd.PersistentFlags().StringVar(&proxyURL, "proxy", "", "HTTP(S) or SOCKS5 proxy URL")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")

	newClient := func() (*rpc.Client, error) {
		if proxyURL != "" {
			return rpc.NewWithProxy(endpoint, proxyURL)
		}
		return rpc.New(endpoint)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print node status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			status, err := client.Status(ctx)
			if err != nil {
				return err
			}
			return printJSON(status)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check node health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			if err := client.Health(ctx); err != nil {
				fmt.Println(renderErr("Node is unhealthy"))
				return err
			}
			fmt.Println(renderOK("Node is healthy"))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "net-info",
		Short: "Print network information",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			info, err := client.NetInfo(ctx)
			if err != nil {
				return err
			}
			return printJSON(info)
		},
	})

	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
