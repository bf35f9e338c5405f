package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/seqfetch/internal/protocol/session"
	"github.com/danmuck/seqfetch/internal/testutil/testlog"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seqfetch.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadTemplateMatchesDefaults(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "seqfetch.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if cfg.Session != session.DefaultConfig() {
		t.Fatalf("template drifted from defaults:\n got=%+v\nwant=%+v", cfg.Session, session.DefaultConfig())
	}
	if cfg.Output != "output.json" || cfg.MetricsAddr != "" {
		t.Fatalf("unexpected settings: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
host = "feed.internal"
port = 4100
output = "/tmp/feed.json"
metrics_addr = "127.0.0.1:9108"
idle_timeout = "0s"
max_resend_rounds = 1
duplicate_policy = "Reject"
allow_partial = true

[backoff]
initial_delay = "10ms"
jitter = false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	s := cfg.Session
	if s.Host != "feed.internal" || s.Port != 4100 || s.Address() != "feed.internal:4100" {
		t.Fatalf("unexpected endpoint: %+v", s)
	}
	if cfg.Output != "/tmp/feed.json" || cfg.MetricsAddr != "127.0.0.1:9108" {
		t.Fatalf("unexpected settings: %+v", cfg)
	}
	if s.IdleTimeout != 0 || s.MaxResendRounds != 1 || !s.AllowPartial {
		t.Fatalf("unexpected limits: %+v", s)
	}
	if s.DuplicatePolicy != session.DuplicateReject {
		t.Fatalf("unexpected duplicate policy=%q", s.DuplicatePolicy)
	}
	if s.Backoff.InitialDelay != 10*time.Millisecond || s.Backoff.Jitter {
		t.Fatalf("unexpected backoff: %+v", s.Backoff)
	}
	if s.Backoff.MaxDelay != 5*time.Second || s.Backoff.Multiplier != 2.0 {
		t.Fatalf("unset backoff keys must keep defaults: %+v", s.Backoff)
	}
	if s.ConnectTimeout != 5*time.Second {
		t.Fatalf("unset connect_timeout must keep default: %v", s.ConnectTimeout)
	}
}

func TestLoadBadDuration(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `idle_timeout = "abc"`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "idle_timeout") {
		t.Fatalf("expected idle_timeout parse error, got %v", err)
	}
}

func TestLoadUnknownKey(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `hots = "typo"`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestLoadInvalidPolicy(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `duplicate_policy = "first-wins"`)
	if _, err := Load(path); !errors.Is(err, session.ErrInvalidDuplicatePolicy) {
		t.Fatalf("expected ErrInvalidDuplicatePolicy, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	testlog.Start(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected load error")
	}
}

func TestWriteTemplateRefusesOverwrite(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `port = 1`)
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected existing config to be kept")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("forced overwrite: %v", err)
	}
}
