package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Worker.Policy == "" {
		cfg.Worker.Policy = "replace"
	}
	if cfg.Worker.EmbeddingLength == 0 {
		cfg.Worker.EmbeddingLength = 384
	}
	if cfg.Worker.ShutdownGrace == 0 {
		cfg.Worker.ShutdownGrace = 2 * time.Second
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8484
	}
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = 10000
	}
}
