package config

import (
	"github.com/sipeed/picobot/pkg/commands"
	"github.com/sipeed/picobot/pkg/files"
	"github.com/sipeed/picobot/pkg/ratelimit"
)

func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			AllowFrom:        FlexibleStringSlice{},
			RegisterCommands: true,
		},
		Storage: StorageConfig{
			Driver: StorageSQLite,
			Path:   "~/.picobot/picobot.db",
		},
		Files: FilesConfig{
			PageSize:  files.DefaultPageSize,
			NameWidth: files.DefaultNameWidth,
			Labels:    files.DefaultLabels(),
			Prompts:   files.DefaultPrompts(),
		},
		Gateway: GatewayConfig{
			Workers:             4,
			QueueSize:           100,
			EventTimeoutSeconds: 30,
		},
		RateLimits: ratelimit.DefaultConfig(),
		Maintenance: MaintenanceConfig{
			Schedule:          "*/10 * * * *",
			PendingTTLMinutes: 24 * 60,
		},
		Bot: BotConfig{
			Greeting: "Hi! Send /help to see what I can do.",
		},
		Speech: commands.DefaultSpeech(),
		Log: LogConfig{
			Level: "info",
		},
	}
}
