package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sipeed/picobot/cmd/picobot/internal"
	"github.com/sipeed/picobot/pkg/config"
	"github.com/sipeed/picobot/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func NewRunCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"gateway", "g"},
		Short:   "Run the bot in the foreground",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if debug {
				cfg.Log.Level = "debug"
			}
			return runBot(cmd, cfg)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func setupLogging(cfg *config.Config) error {
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.RegisterSecret(cfg.Telegram.Token)
	if cfg.Log.File != "" {
		if err := logger.EnableFileLogging(cfg.Log.File); err != nil {
			return fmt.Errorf("enable file logging: %w", err)
		}
	}
	return nil
}

func runBot(cmd *cobra.Command, cfg *config.Config) error {
	if err := setupLogging(cfg); err != nil {
		return err
	}
	defer logger.DisableFileLogging()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := newRunner(ctx, cfg, true)
	if err != nil {
		return err
	}

	runErr := r.run(ctx, cmd.OutOrStdout())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	r.stop(shutdownCtx)

	fmt.Fprintln(cmd.OutOrStdout(), "✓ Bot stopped")
	return runErr
}
