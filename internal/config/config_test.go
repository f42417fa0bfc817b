package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_ADDR", "")
	os.Unsetenv("API_ADDR")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8787" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.DefaultStyle != "vancouver" || !cfg.Annotate {
		t.Fatalf("style defaults = %q %v", cfg.DefaultStyle, cfg.Annotate)
	}
	if cfg.CacheTTL != 24*time.Hour {
		t.Fatalf("CacheTTL = %v", cfg.CacheTTL)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("FOLIO_DEFAULT_STYLE", "apa")
	t.Setenv("FOLIO_CACHE_TTL", "90s")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("REDIS_URL", "  redis://localhost:6379/1 ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DefaultStyle != "apa" || cfg.CacheTTL != 90*time.Second || !cfg.MinioUseSSL {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.RedisURL != "redis://localhost:6379/1" {
		t.Fatalf("RedisURL = %q", cfg.RedisURL)
	}
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	content := "FOLIO_REPOS_DIR=/srv/drafts\nLOG_LEVEL=debug\n"
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("FOLIO_REPOS_DIR", "")
	os.Unsetenv("FOLIO_REPOS_DIR")
	t.Cleanup(func() { os.Unsetenv("FOLIO_REPOS_DIR") })

	cfg, err := Load(file, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ReposDir != "/srv/drafts" {
		t.Fatalf("ReposDir = %q", cfg.ReposDir)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("FOLIO_CACHE_TTL", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}
