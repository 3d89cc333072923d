package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	EnvPicoBotConfig = "PICOBOT_CONFIG"
	EnvPicoBotHome   = "PICOBOT_HOME"
)

type RuntimePaths struct {
	HomeDir    string
	ConfigPath string
}

func ResolveRuntimePaths() RuntimePaths {
	if configPath := expandHome(strings.TrimSpace(os.Getenv(EnvPicoBotConfig))); configPath != "" {
		return RuntimePaths{HomeDir: filepath.Dir(configPath), ConfigPath: configPath}
	}

	homeDir := expandHome(strings.TrimSpace(os.Getenv(EnvPicoBotHome)))
	if homeDir == "" {
		homeDir = defaultPicoBotHome()
	}

	return RuntimePaths{HomeDir: homeDir, ConfigPath: filepath.Join(homeDir, "config.json")}
}

func defaultPicoBotHome() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".picobot"
	}
	return filepath.Join(home, ".picobot")
}
