// PicoBot - Command-driven chat bot
// Based on PicoClaw: https://github.com/sipeed/picoclaw
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sipeed/picobot/cmd/picobot/internal"
	"github.com/sipeed/picobot/cmd/picobot/internal/configcmd"
	"github.com/sipeed/picobot/cmd/picobot/internal/run"
	"github.com/sipeed/picobot/cmd/picobot/internal/version"
)

func NewPicobotCommand() *cobra.Command {
	short := fmt.Sprintf("%s picobot - Command-driven chat bot v%s", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "picobot",
		Short:   short,
		Example: "picobot run\npicobot config init",
	}

	cmd.AddCommand(
		run.NewRunCommand(),
		configcmd.NewConfigCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewPicobotCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
