package config_test

import (
	"testing"
	"time"

	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Store.Timeout != 2*time.Second {
		t.Fatalf("unexpected store timeout: %s", cfg.Store.Timeout)
	}
	if cfg.Store.MaxAttempts != 3 {
		t.Fatalf("unexpected max attempts: %d", cfg.Store.MaxAttempts)
	}
	if cfg.Artifact.BaseURL == "" {
		t.Fatal("missing artifact base URL")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9090")
	t.Setenv("SESSION_STORE_PATH", "/var/lib/chat-mrpt/sessions.db")
	t.Setenv("SESSION_TTL_SECONDS", "3600")
	t.Setenv("STORE_TIMEOUT_SECONDS", "3")
	t.Setenv("STORE_MAX_ATTEMPTS", "5")
	t.Setenv("STORE_RETRY_BASE_MS", "250")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:9090" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Store.Path != "/var/lib/chat-mrpt/sessions.db" {
		t.Fatalf("unexpected path: %s", cfg.Store.Path)
	}
	if cfg.Store.TTL != time.Hour {
		t.Fatalf("unexpected ttl: %s", cfg.Store.TTL)
	}
	if cfg.Store.Timeout != 3*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.Store.Timeout)
	}
	if cfg.Store.MaxAttempts != 5 {
		t.Fatalf("unexpected attempts: %d", cfg.Store.MaxAttempts)
	}
	if cfg.Store.RetryBaseDelay != 250*time.Millisecond {
		t.Fatalf("unexpected retry base: %s", cfg.Store.RetryBaseDelay)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("SESSION_TTL_SECONDS", "-1")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for negative ttl")
	}

	t.Setenv("SESSION_TTL_SECONDS", "")
	t.Setenv("STORE_MAX_ATTEMPTS", "zero")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for non-numeric attempts")
	}
}
