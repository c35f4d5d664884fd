package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/keepmind9/groupmebot/internal/core"
	"github.com/keepmind9/groupmebot/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile        string
	envFile           string
	serveValidateOnly bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		Long: `Load the configuration, register every bot at its callback path,
start the job scheduler and serve until SIGINT or SIGTERM.`,
		RunE: runServe,
	}
)

func runServe(cmd *cobra.Command, args []string) error {
	if err := core.LoadEnvFile(envFile); err != nil {
		return err
	}

	config, err := core.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if serveValidateOnly {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration is valid: %s\n", configFile)
		return nil
	}

	if err := logger.InitLogger(config.LoggerConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"config_file": configFile,
		"log_level":   config.Logging.Level,
		"log_file":    config.Logging.File,
		"bots":        len(config.Bots),
	}).Info("logger-initialized")

	app, err := core.BuildApplication(config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "groupmebot listening on %s (%d bots)\n", config.Address(), len(config.Bots))
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

	if err := app.ListenAndServe(ctx, config.Address()); err != nil {
		logger.WithField("error", err).Error("server-error")
		return err
	}

	logger.Info("groupmebot-stopped")
	return nil
}

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "Configuration file path")
	serveCmd.Flags().StringVar(&envFile, "env-file", "", "Load environment variables from this file (default: ./.env when present)")
	serveCmd.Flags().BoolVar(&serveValidateOnly, "validate", false, "Validate configuration and exit")
}
