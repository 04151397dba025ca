// Package config provides configuration loading and structs for bertlib.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug  bool         `yaml:"debug"`
	Worker WorkerConfig `yaml:"worker"`
	Server ServerConfig `yaml:"server"`
	Cache  CacheConfig  `yaml:"cache"`
}

// WorkerConfig describes the embedding worker process.
type WorkerConfig struct {
	Path string   `yaml:"path"`
	Args []string `yaml:"args"`
	// Env entries (KEY=VALUE) are added to the inherited environment.
	Env             []string      `yaml:"env"`
	Dir             string        `yaml:"dir"`
	Policy          string        `yaml:"policy"`
	EmbeddingLength int           `yaml:"embedding_length"`
	EncodeTimeout   time.Duration `yaml:"encode_timeout"`
	ShutdownGrace   time.Duration `yaml:"shutdown_grace"`
	// Watch restarts the worker when its executable changes on disk.
	Watch bool `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// CacheConfig holds embedding cache settings. An empty DatabasePath disables the disk tier.
type CacheConfig struct {
	Size         int    `yaml:"size"`
	DatabasePath string `yaml:"database_path"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Worker.Path = expandPath(cfg.Worker.Path, configDir)
	cfg.Worker.Dir = expandPath(cfg.Worker.Dir, configDir)
	cfg.Cache.DatabasePath = expandPath(cfg.Cache.DatabasePath, configDir)

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects settings that defaults cannot repair.
func Validate(cfg *Config) error {
	switch cfg.Worker.Policy {
	case "replace", "reject":
	default:
		return fmt.Errorf("invalid worker.policy %q: want replace or reject", cfg.Worker.Policy)
	}
	if cfg.Worker.EmbeddingLength < 0 {
		return fmt.Errorf("invalid worker.embedding_length %d", cfg.Worker.EmbeddingLength)
	}
	if cfg.Worker.EncodeTimeout < 0 {
		return fmt.Errorf("invalid worker.encode_timeout %s", cfg.Worker.EncodeTimeout)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
