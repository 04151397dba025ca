package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
worker:
  path: "/opt/bert/worker"
  args: ["--model", "minilm"]
  encode_timeout: 30s
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Worker.Path != "/opt/bert/worker" {
		t.Errorf("worker path = %s", cfg.Worker.Path)
	}
	if len(cfg.Worker.Args) != 2 || cfg.Worker.Args[1] != "minilm" {
		t.Errorf("worker args = %v", cfg.Worker.Args)
	}
	if cfg.Worker.EncodeTimeout != 30*time.Second {
		t.Errorf("encode_timeout = %s, want 30s", cfg.Worker.EncodeTimeout)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.Cache.DatabasePath != "" {
		t.Error("disk cache should stay disabled when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
worker:
  path: "/opt/bert/worker"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
worker:
  path: "./bin/worker"
cache:
  database_path: "./data/cache.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "bin", "worker"); cfg.Worker.Path != want {
		t.Errorf("worker.path = %s, want %s", cfg.Worker.Path, want)
	}
	if want := filepath.Join(dir, "data", "cache.db"); cfg.Cache.DatabasePath != want {
		t.Errorf("cache.database_path = %s, want %s", cfg.Cache.DatabasePath, want)
	}
}

func TestLoad_invalidPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("worker:\n  policy: sometimes\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid policy")
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Worker.Policy != "replace" {
		t.Errorf("default policy: got %s", cfg.Worker.Policy)
	}
	if cfg.Worker.EmbeddingLength != 384 {
		t.Errorf("default embedding_length: got %d", cfg.Worker.EmbeddingLength)
	}
	if cfg.Worker.ShutdownGrace != 2*time.Second {
		t.Errorf("default shutdown_grace: got %s", cfg.Worker.ShutdownGrace)
	}
	if cfg.Worker.EncodeTimeout != 0 {
		t.Errorf("encode_timeout should default to unbounded, got %s", cfg.Worker.EncodeTimeout)
	}
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8484 {
		t.Errorf("default server: got %+v", cfg.Server)
	}
	if cfg.Cache.Size != 10000 {
		t.Errorf("default cache size: got %d", cfg.Cache.Size)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := &Config{Worker: WorkerConfig{Path: "/usr/bin/worker", Policy: "reject", Watch: true}}
	ApplyDefaults(cfg)
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Worker.Policy != "reject" || !got.Worker.Watch {
		t.Errorf("round trip lost worker settings: %+v", got.Worker)
	}
}
