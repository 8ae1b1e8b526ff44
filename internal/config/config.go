// Package config holds the per-user client settings stored in
// ~/.misl/config.json.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

type Config struct {
	// Server is the base URL the client talks to, usually the cache proxy.
	Server string `json:"server,omitempty"`

	// AccessCode is the list selected with `misl use`.
	AccessCode string `json:"accessCode,omitempty"`

	// StateDir holds the client snapshot database. Empty means ConfigDir.
	StateDir string `json:"stateDir,omitempty"`
}

func Dir() (string, error) {
	// Test/advanced override (keeps unit tests from touching ~/.misl).
	if v := strings.TrimSpace(os.Getenv("MISL_CONFIG_DIR")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".misl"), nil
}

func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// StatePath is where the client keeps its bbolt snapshot file.
func (c *Config) StatePath() (string, error) {
	dir := strings.TrimSpace(c.StateDir)
	if dir == "" {
		d, err := Dir()
		if err != nil {
			return "", err
		}
		dir = d
	}
	return filepath.Join(dir, "state.db"), nil
}

// Load returns an empty Config when no file exists yet.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	// Concurrent CLI and TUI processes may both write; readers never see a
	// partial file.
	if err := atomic.WriteFile(path, strings.NewReader(string(b))); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}
