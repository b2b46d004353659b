package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sync.ListTimeout != 15*time.Second || cfg.Sync.LinkTimeout != 20*time.Second {
		t.Fatalf("unexpected timeouts: %+v", cfg.Sync)
	}
	if cfg.Sync.MaxAttempts != 3 || cfg.Sync.BackoffStep != time.Second {
		t.Fatalf("unexpected retry policy: %+v", cfg.Sync)
	}
	if cfg.Sync.LinkCacheTTL != 50*time.Minute || cfg.Sync.SignedURLTTL != time.Hour {
		t.Fatalf("unexpected link ttl: %+v", cfg.Sync)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := chdirTemp(t)
	if err := os.Mkdir(filepath.Join(dir, "configs"), 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := []byte("server:\n  port: 9090\nsync:\n  max_attempts: 5\n")
	if err := os.WriteFile(filepath.Join(dir, "configs", "config.yaml"), yaml, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DB_HOST", "db.internal")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Sync.MaxAttempts != 5 {
		t.Errorf("expected 5 attempts, got %d", cfg.Sync.MaxAttempts)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("expected env override, got %q", cfg.Database.Host)
	}
}

func TestValidate_LinkCacheMustExpireFirst(t *testing.T) {
	cfg := Config{Sync: SyncConfig{MaxAttempts: 3, LinkCacheTTL: time.Hour, SignedURLTTL: time.Hour}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when cache ttl equals link expiry")
	}
}
