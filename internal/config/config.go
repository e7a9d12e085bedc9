package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Environment string `json:"environment"`
	Server      struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	} `json:"server"`
	MongoDB struct {
		URI      string `json:"uri"`
		Database string `json:"database"`
	} `json:"mongodb"`
	Frontend struct {
		URL string `json:"url"`
	} `json:"frontend"`
	Game GameConfig `json:"game"`
}

// GameConfig carries the pacing knobs of the room state machine. All
// durations are milliseconds. Zero values are filled with the
// documented defaults, so a config file only needs the overrides.
type GameConfig struct {
	MainTimeMs           int64   `json:"mainTimeMs"`
	BidDurationMs        int64   `json:"bidDurationMs"`
	ChoiceDurationMs     int64   `json:"choiceDurationMs"`
	StartConfirmMs       int64   `json:"startConfirmMs"`
	DisconnectGraceMs    int64   `json:"disconnectGraceMs"`
	DisconnectTimeoutMs  int64   `json:"disconnectTimeoutMs"`
	RoomMaxAgeMs         int64   `json:"roomMaxAgeMs"`
	RematchWindowMs      int64   `json:"rematchWindowMs"`
	RematchWindowShortMs int64   `json:"rematchWindowShortMs"`
	TimeControls         []int64 `json:"timeControls"`
	DisconnectMarksMover bool    `json:"disconnectMarksMover"`
}

func Load(env string) (*Config, error) {
	configDir := os.Getenv("CONFIG_DIR")
	if configDir == "" {
		// Default to configs directory relative to working directory
		configDir = "configs"
	}

	filename := fmt.Sprintf("config.%s.json", env)
	configPath := filepath.Join(configDir, filename)

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Replace environment variables in the config
	configStr := string(data)
	configStr = expandEnvVars(configStr)

	var cfg Config
	if err := json.Unmarshal([]byte(configStr), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Environment = env
	cfg.Game.applyDefaults()
	return &cfg, nil
}

func (g *GameConfig) applyDefaults() {
	setDefault(&g.MainTimeMs, 300000)
	setDefault(&g.BidDurationMs, 60000)
	setDefault(&g.ChoiceDurationMs, 30000)
	setDefault(&g.StartConfirmMs, 60000)
	setDefault(&g.DisconnectGraceMs, 10000)
	setDefault(&g.DisconnectTimeoutMs, 45000)
	setDefault(&g.RoomMaxAgeMs, 300000)
	setDefault(&g.RematchWindowMs, 60000)
	setDefault(&g.RematchWindowShortMs, 10000)
	if len(g.TimeControls) == 0 {
		g.TimeControls = []int64{300000, 600000, 900000}
	}
}

func setDefault(v *int64, def int64) {
	if *v <= 0 {
		*v = def
	}
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func GetEnv() string {
	env := os.Getenv("CHESS_ENV")
	if env == "" {
		return "dev"
	}
	return env
}
