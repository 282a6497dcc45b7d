package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/BradenHooton/farmguard/internal/app"
	"github.com/BradenHooton/farmguard/internal/config"
)

var application *app.App

var rootCmd = &cobra.Command{
	Use:   "farmguardctl",
	Short: "Administer the farmguard security core",
	Long: `farmguardctl runs maintenance tasks against the farmguard database:
migrations, manual account unlocks, event resolution and the expiry sweep.
It reads the same environment as the API server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		logger := app.NewLogger(cfg.Server.LogLevel)
		slog.SetDefault(logger)

		application, err = app.New(cmd.Context(), cfg, logger)
		return err
	},
}

func Execute() {
	err := rootCmd.ExecuteContext(context.Background())
	if application != nil {
		application.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
