package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_Valid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestDefaultConfig_Files(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Files.PageSize != 10 {
		t.Errorf("PageSize = %d, want 10", cfg.Files.PageSize)
	}
	if cfg.Files.NameWidth != 30 {
		t.Errorf("NameWidth = %d, want 30", cfg.Files.NameWidth)
	}
	if cfg.Files.Labels.AddFile == "" {
		t.Error("AddFile label should not be empty")
	}
}

func TestLoadConfig_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Gateway.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Gateway.Workers)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"telegram": {"token": "123:abc", "allow_from": [42, "@alice"]},
		"storage": {"driver": "memory"},
		"files": {"page_size": 5, "labels": {"folder": "[dir]"}},
		"gateway": {"event_timeout_seconds": 3}
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("Token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.AllowFrom) != 2 || cfg.Telegram.AllowFrom[0] != "42" {
		t.Errorf("AllowFrom = %v", cfg.Telegram.AllowFrom)
	}
	if cfg.Storage.Driver != StorageMemory {
		t.Errorf("Driver = %q", cfg.Storage.Driver)
	}
	if cfg.Files.PageSize != 5 {
		t.Errorf("PageSize = %d, want 5", cfg.Files.PageSize)
	}
	if cfg.Files.Labels.Folder != "[dir]" {
		t.Errorf("Folder label = %q", cfg.Files.Labels.Folder)
	}
	if cfg.Files.Labels.Refresh == "" {
		t.Error("unset labels should keep their defaults")
	}
	if cfg.Gateway.EventTimeout() != 3*time.Second {
		t.Errorf("EventTimeout = %v", cfg.Gateway.EventTimeout())
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"telegram": {"token": "from-file"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PICOBOT_TELEGRAM_TOKEN", "from-env")
	t.Setenv("PICOBOT_GATEWAY_WORKERS", "9")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Errorf("Token = %q, want from-env", cfg.Telegram.Token)
	}
	if cfg.Gateway.Workers != 9 {
		t.Errorf("Workers = %d, want 9", cfg.Gateway.Workers)
	}
}

func TestLoadConfig_RejectsUnknownDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"storage": {"driver": "postgres"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Telegram.Token = "t"

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]any
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("saved config is not JSON: %v", err)
	}
	if _, ok := back["maintenance"]; !ok {
		t.Error("maintenance section missing")
	}
}

func TestBotConfig_Location(t *testing.T) {
	loc, err := BotConfig{Timezone: "UTC"}.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("Location = %v, %v", loc, err)
	}
	if _, err := (BotConfig{Timezone: "Nowhere/City"}).Location(); err == nil {
		t.Error("expected error for unknown zone")
	}
}
