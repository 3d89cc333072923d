package configcmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sipeed/picobot/cmd/picobot/internal"
	"github.com/sipeed/picobot/pkg/config"
	"github.com/sipeed/picobot/pkg/redaction"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(
		newInitCommand(),
		newPathCommand(),
		newShowCommand(),
	)
	return cmd
}

func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd.OutOrStdout(), internal.GetConfigPath(), force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config file")
	return cmd
}

func initConfig(w io.Writer, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}
	if err := config.SaveConfig(path, config.DefaultConfig()); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(w, "✓ Config written to %s\n", path)
	fmt.Fprintln(w, "  Set telegram.token (or PICOBOT_TELEGRAM_TOKEN) before running.")
	return nil
}

func newPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), internal.GetConfigPath())
		},
	}
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective config with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return err
			}
			return showConfig(cmd.OutOrStdout(), cfg)
		},
	}
}

func showConfig(w io.Writer, cfg *config.Config) error {
	cfg.RLock()
	data, err := json.MarshalIndent(cfg, "", "  ")
	cfg.RUnlock()
	if err != nil {
		return err
	}
	r := redaction.NewRedactor(redaction.DefaultConfig())
	r.AddSecret(cfg.Telegram.Token)
	r.AddSecret(cfg.Telegram.Proxy)
	_, err = fmt.Fprintln(w, r.Redact(string(data)))
	return err
}
