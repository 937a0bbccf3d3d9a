package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/quantumflow/aichat/pkg/config"
	"github.com/quantumflow/aichat/pkg/gateway"
	"github.com/quantumflow/aichat/pkg/logging"
	"github.com/quantumflow/aichat/pkg/server"
)

func newServeCmd() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay and HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return errors.Wrap(err, "load config")
			}
			logging.Setup(cfg.Log.Level)

			gw := gateway.NewOpenAIClient(gateway.Config{
				BaseURL: cfg.LLM.BaseURL,
				APIKey:  cfg.LLM.APIKey,
			})

			ctx := context.Background()
			srv, err := server.New(ctx, gw, server.Options{
				Addr:          cfg.Server.Addr(),
				IdleWindow:    time.Duration(cfg.Relay.IdleWindowSeconds) * time.Second,
				EvictInterval: time.Duration(cfg.Relay.EvictIntervalSeconds) * time.Second,
			})
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&configDir, "config-dir", "", "directory containing config.yaml")
	return cmd
}
