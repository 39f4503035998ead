package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/postalsys/tmconn/internal/config"
	"github.com/postalsys/tmconn/internal/identity"
)

func initCmd() *cobra.Command {
	var dataDir string
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a node identity and a default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, created, err := identity.LoadOrCreate(dataDir)
			if err != nil {
				return fmt.Errorf("initialize identity: %w", err)
			}

			if created {
				fmt.Println(renderOK("Generated new node identity"))
			} else {
				fmt.Println("Using existing node identity")
			}
			fmt.Println(renderKV("peer ID", kp.ID().String()))
			fmt.Println(renderKV("data dir", dataDir))

			if _, err := os.Stat(configPath); err == nil {
				fmt.Println(renderKV("config", configPath+" (kept)"))
				return nil
			}

			cfg := config.Default()
			cfg.Node.DataDir = dataDir
			cfg.Listeners = []config.ListenerConfig{
				{Transport: "tcp", Address: "0.0.0.0:26656"},
			}
			if err := cfg.Save(configPath); err != nil {
				return err
			}
			fmt.Println(renderKV("config", configPath+" (created)"))
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "directory for the identity key")
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "configuration file to create")
	return cmd
}
