// Package config loads and edits the JSON configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/user/cascada/internal/playback"
	"github.com/user/cascada/internal/scheduler"
)

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	Playback struct {
		Speed         float64 `json:"speed"`
		Seed          int64   `json:"seed"`
		MaxConcurrent int     `json:"max_concurrent"`
		Scenario      string  `json:"scenario"`
	} `json:"playback"`
	HTTP struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen"`
	} `json:"http"`
	Demo struct {
		Schedule string `json:"schedule"`
	} `json:"demo"`
	Telegram struct {
		Token   string  `json:"token" secret:"true"`
		ChatIDs []int64 `json:"chat_ids"`
	} `json:"telegram"`
}

// EnvFile is the dotenv file read by Load, relative to the working directory.
var EnvFile = ".env"

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".cascada"),
		LogLevel: "info",
	}
	cfg.Playback.Speed = 1
	cfg.HTTP.Enabled = true
	cfg.HTTP.Listen = "127.0.0.1:8787"
	return cfg
}

// Load reads the config at path, writing defaults when the file is missing,
// then applies the dotenv file and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// godotenv never overrides variables already set in the environment.
	if err := godotenv.Load(EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load env file", "path", EnvFile, "error", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("CASCADA_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("CASCADA_SPEED"); v != "" {
		speed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse CASCADA_SPEED: %w", err)
		}
		cfg.Playback.Speed = speed
	}
	if v := os.Getenv("CASCADA_LISTEN"); v != "" {
		cfg.HTTP.Listen = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	return nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q: want debug, info, warn or error", c.LogLevel)
	}
	if !playback.ValidSpeed(c.Playback.Speed) {
		return fmt.Errorf("playback.speed must be a positive finite number, got %v", c.Playback.Speed)
	}
	if c.Playback.MaxConcurrent < 0 {
		return fmt.Errorf("playback.max_concurrent must not be negative, got %d", c.Playback.MaxConcurrent)
	}
	if c.HTTP.Enabled && c.HTTP.Listen == "" {
		return errors.New("http.listen is required when http.enabled is set")
	}
	if c.Demo.Schedule != "" {
		if err := scheduler.Validate(c.Demo.Schedule); err != nil {
			return fmt.Errorf("demo.schedule: %w", err)
		}
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Save writes cfg to path atomically, creating the parent directory.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ListValues returns cfg as dotted keys, optionally with secrets masked.
func ListValues(cfg *Config, mask bool) map[string]any {
	flat := Flatten(cfg)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat
}

// GetValue loads the config at path and returns the value of a dotted key.
func GetValue(path, key string) (any, error) {
	if _, ok := lookupField(key); !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Flatten(cfg)[key], nil
}

// SetValue sets a dotted key in the existing config file at path. The value
// is parsed as the key's type; keys outside Config are rejected.
func SetValue(path, key, value string) error {
	f, ok := lookupField(key)
	if !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}
	parsed, err := parseValue(f, value)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if m == nil {
		m = make(map[string]any)
	}

	setPath(m, strings.Split(key, "."), parsed)
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, out)
}
