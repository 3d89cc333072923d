package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/sipeed/picobot/pkg/commands"
	"github.com/sipeed/picobot/pkg/files"
	"github.com/sipeed/picobot/pkg/ratelimit"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type TelegramConfig struct {
	Token     string              `json:"token" label:"Bot Token" env:"PICOBOT_TELEGRAM_TOKEN"`
	Proxy     string              `json:"proxy" label:"Proxy" env:"PICOBOT_TELEGRAM_PROXY"`
	AllowFrom FlexibleStringSlice `json:"allow_from" label:"Allow From" env:"PICOBOT_TELEGRAM_ALLOW_FROM"`
	// RegisterCommands publishes the command menu on start.
	RegisterCommands bool `json:"register_commands" label:"Register Commands" env:"PICOBOT_TELEGRAM_REGISTER_COMMANDS"`
}

const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

type StorageConfig struct {
	Driver string `json:"driver" label:"Driver" env:"PICOBOT_STORAGE_DRIVER"`
	Path   string `json:"path" label:"Database Path" env:"PICOBOT_STORAGE_PATH"`
}

type FilesConfig struct {
	PageSize  int           `json:"page_size" label:"Page Size" env:"PICOBOT_FILES_PAGE_SIZE"`
	NameWidth int           `json:"name_width" label:"Name Width" env:"PICOBOT_FILES_NAME_WIDTH"`
	Labels    files.Labels  `json:"labels" label:"Button Labels"`
	Prompts   files.Prompts `json:"prompts" label:"Prompts"`
}

type GatewayConfig struct {
	Workers             int `json:"workers" label:"Workers" env:"PICOBOT_GATEWAY_WORKERS"`
	QueueSize           int `json:"queue_size" label:"Queue Size" env:"PICOBOT_GATEWAY_QUEUE_SIZE"`
	EventTimeoutSeconds int `json:"event_timeout_seconds" label:"Event Timeout" env:"PICOBOT_GATEWAY_EVENT_TIMEOUT_SECONDS"`
}

func (g GatewayConfig) EventTimeout() time.Duration {
	return time.Duration(g.EventTimeoutSeconds) * time.Second
}

type MaintenanceConfig struct {
	// Schedule is a cron expression for the pending-continuation sweep.
	Schedule          string `json:"schedule" label:"Schedule" env:"PICOBOT_MAINTENANCE_SCHEDULE"`
	PendingTTLMinutes int    `json:"pending_ttl_minutes" label:"Pending TTL" env:"PICOBOT_MAINTENANCE_PENDING_TTL_MINUTES"`
}

func (m MaintenanceConfig) PendingTTL() time.Duration {
	return time.Duration(m.PendingTTLMinutes) * time.Minute
}

type LogConfig struct {
	Level string `json:"level" label:"Level" env:"PICOBOT_LOG_LEVEL"`
	File  string `json:"file" label:"File" env:"PICOBOT_LOG_FILE"`
}

type BotConfig struct {
	Greeting string `json:"greeting" label:"Greeting" env:"PICOBOT_BOT_GREETING"`
	Timezone string `json:"timezone" label:"Timezone" env:"PICOBOT_BOT_TIMEZONE"`
}

// Location resolves Timezone, falling back to the local zone.
func (b BotConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(b.Timezone) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", b.Timezone, err)
	}
	return loc, nil
}

type Config struct {
	Telegram    TelegramConfig    `json:"telegram" label:"Telegram"`
	Storage     StorageConfig     `json:"storage" label:"Storage"`
	Files       FilesConfig       `json:"files" label:"Files"`
	Gateway     GatewayConfig     `json:"gateway" label:"Gateway"`
	RateLimits  ratelimit.Config  `json:"rate_limits" label:"Rate Limits"`
	Maintenance MaintenanceConfig `json:"maintenance" label:"Maintenance"`
	Bot         BotConfig         `json:"bot" label:"Bot"`
	Speech      commands.Speech   `json:"speech" label:"Speech"`
	Log         LogConfig         `json:"log" label:"Log"`
	mu          sync.RWMutex
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, cfg.Validate()
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

// Validate rejects settings the runtime cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory:
	case StorageSQLite:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Files.PageSize <= 0 {
		return fmt.Errorf("files.page_size must be positive")
	}
	if c.Files.NameWidth <= 0 {
		return fmt.Errorf("files.name_width must be positive")
	}
	if c.Gateway.Workers <= 0 {
		return fmt.Errorf("gateway.workers must be positive")
	}
	return nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) RLock()   { c.mu.RLock() }
func (c *Config) RUnlock() { c.mu.RUnlock() }

// DatabasePath is Storage.Path with ~ expanded.
func (c *Config) DatabasePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Storage.Path)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
