package main

import (
	"fmt"
	"net"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/postalsys/tmconn/internal/config"
	"github.com/postalsys/tmconn/internal/identity"
)

func setupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Interactive configuration wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				dataDir         = "./data"
				protocolVersion = "v0.34"
				listenTransport = "tcp"
				listenAddress   = "0.0.0.0:26656"
				logLevel        = "info"
				metricsEnabled  = false
				metricsAddress  = "127.0.0.1:9090"
			)

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Data directory").
						Description("Where the node identity key is stored.").
						Value(&dataDir),
					huh.NewSelect[string]().
						Title("Protocol version").
						Description("v0.34 signs the transcript MAC; v0.33 is the pre-transcript wire format.").
						Options(huh.NewOptions("v0.34", "v0.33")...).
						Value(&protocolVersion),
				),
				huh.NewGroup(
					huh.NewSelect[string]().
						Title("Listener transport").
						Options(huh.NewOptions("tcp", "ws", "quic")...).
						Value(&listenTransport),
					huh.NewInput().
						Title("Listen address").
						Validate(func(s string) error {
							_, _, err := net.SplitHostPort(s)
							return err
						}).
						Value(&listenAddress),
				),
				huh.NewGroup(
					huh.NewSelect[string]().
						Title("Log level").
						Options(huh.NewOptions("debug", "info", "warn", "error")...).
						Value(&logLevel),
					huh.NewConfirm().
						Title("Expose Prometheus metrics?").
						Value(&metricsEnabled),
				),
			)

			if err := form.Run(); err != nil {
				return fmt.Errorf("setup aborted: %w", err)
			}

			cfg := config.Default()
			cfg.Node.DataDir = dataDir
			cfg.Node.ProtocolVersion = protocolVersion
			cfg.Listeners = []config.ListenerConfig{
				{Transport: listenTransport, Address: listenAddress},
			}
			cfg.Logging.Level = logLevel
			cfg.Metrics.Enabled = metricsEnabled
			cfg.Metrics.Address = metricsAddress

			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(configPath); err != nil {
				return err
			}

			kp, _, err := identity.LoadOrCreate(dataDir)
			if err != nil {
				return fmt.Errorf("initialize identity: %w", err)
			}

			fmt.Println(renderOK("Configuration written"))
			fmt.Println(renderKV("config", configPath))
			fmt.Println(renderKV("peer ID", kp.ID().String()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "configuration file to write")
	return cmd
}
