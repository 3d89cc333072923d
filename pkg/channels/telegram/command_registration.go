package telegram

import (
	"context"
	"regexp"
	"time"

	"github.com/mymmrac/telego"

	"github.com/sipeed/picobot/pkg/commands"
	"github.com/sipeed/picobot/pkg/logger"
)

var commandRegistrationBackoff = []time.Duration{
	5 * time.Second,
	15 * time.Second,
	60 * time.Second,
	5 * time.Minute,
	10 * time.Minute,
}

var botCommandName = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)

func botCommands(defs []commands.Definition) []telego.BotCommand {
	out := make([]telego.BotCommand, 0, len(defs))
	for _, def := range defs {
		if def.Description == "" || !botCommandName.MatchString(def.Name) {
			continue
		}
		out = append(out, telego.BotCommand{
			Command:     def.Name,
			Description: def.Description,
		})
	}
	return out
}

// RegisterCommands publishes the command menu.
func (c *TelegramChannel) RegisterCommands(ctx context.Context, defs []commands.Definition) error {
	return c.api.SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: botCommands(defs),
	})
}

func (c *TelegramChannel) startCommandRegistration(ctx context.Context, defs []commands.Definition) {
	if len(defs) == 0 {
		return
	}

	register := c.registerFunc
	if register == nil {
		register = c.RegisterCommands
	}

	regCtx, cancel := context.WithCancel(ctx)
	c.commandRegCancel = cancel

	go func() {
		attempt := 0
		for {
			err := register(regCtx, defs)
			if err == nil {
				logger.InfoCF("telegram", "Telegram commands registered", map[string]any{
					"count": len(defs),
				})
				return
			}

			delay := commandRegistrationBackoff[min(attempt, len(commandRegistrationBackoff)-1)]
			logger.WarnCF("telegram", "Telegram command registration failed; will retry", map[string]any{
				"error":       err.Error(),
				"retry_after": delay.String(),
			})
			attempt++

			select {
			case <-regCtx.Done():
				return
			case <-time.After(delay):
			}
		}
	}()
}
