package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/willingning/minote-sync/pkg/config"
)

func TestDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig_OverridesAndExpandsEnv(t *testing.T) {
	t.Setenv("MINOTE_COOKIE", "serviceToken=abc")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
app:
  log_level: -4
sync:
  root: /tmp/vault
  concurrency: 2
  dry_run: true
attachments:
  fan_out: 2
  max_retries: 1
  audio_id_min_length: 25
  audio_id_prefixes: ["rec_"]
remote:
  base_url: https://example.com
  cookie: ${MINOTE_COOKIE}
  timeout_seconds: 30
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := config.Load(path, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.App.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v", cfg.App.LogLevel)
	}
	if cfg.Sync.Root != "/tmp/vault" || cfg.Sync.Concurrency != 2 || !cfg.Sync.DryRun {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.Attachments.AudioIDMinLength != 25 || len(cfg.Attachments.AudioIDPrefixes) != 1 {
		t.Errorf("attachments = %+v", cfg.Attachments)
	}
	if cfg.Remote.Cookie != "serviceToken=abc" {
		t.Errorf("cookie = %q, want env expansion", cfg.Remote.Cookie)
	}
	if cfg.Remote.BaseURL != "https://example.com" {
		t.Errorf("base_url = %q", cfg.Remote.BaseURL)
	}
}

func TestLoadConfig_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
sync:
  root: /tmp/vault
  concurrency: 100
attachments:
  fan_out: 2
  audio_id_min_length: 25
remote:
  base_url: https://example.com
  timeout_seconds: 30
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := config.Load(path, cfg); err == nil {
		t.Fatal("want validation error for concurrency above limit")
	}
}

func TestLoadIfExists_MissingFileKeepsDefaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := config.LoadIfExists(filepath.Join(t.TempDir(), "absent.yaml"), cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Sync.Concurrency != 8 {
		t.Errorf("concurrency = %d", cfg.Sync.Concurrency)
	}
}
