package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Root != "static" {
		t.Errorf("default root: got %q", cfg.Root)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("default listen addr: got %q", cfg.ListenAddr)
	}
	if cfg.Watch.Mode != "auto" {
		t.Errorf("default watch mode: got %q", cfg.Watch.Mode)
	}
	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("default debounce: got %v", cfg.Watch.Debounce)
	}
	if cfg.Marker != ".description" {
		t.Errorf("default marker: got %q", cfg.Marker)
	}
	if len(cfg.Checksums.Algorithms) != 2 {
		t.Errorf("default algorithms: got %v", cfg.Checksums.Algorithms)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
root: /srv/files
listen_addr: ":9999"
watch:
  mode: poll
  poll_interval: 2s
  debounce: 100ms
checksums:
  algorithms: [sha256]
marker: README.desc
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Root != "/srv/files" || cfg.ListenAddr != ":9999" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Watch.Mode != "poll" || cfg.Watch.PollInterval != 2*time.Second {
		t.Errorf("watch config not applied: %+v", cfg.Watch)
	}
	if len(cfg.Checksums.Algorithms) != 1 || cfg.Checksums.Algorithms[0] != "sha256" {
		t.Errorf("algorithms not applied: %v", cfg.Checksums.Algorithms)
	}
	if cfg.Marker != "README.desc" {
		t.Errorf("marker not applied: %q", cfg.Marker)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("STATIC_SERVER_LISTEN_ADDR", ":7777")
	t.Setenv("STATIC_SERVER_WATCH_MODE", "poll")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":7777" {
		t.Errorf("env override not applied: %q", cfg.ListenAddr)
	}
	if cfg.Watch.Mode != "poll" {
		t.Errorf("nested env override not applied: %q", cfg.Watch.Mode)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("", nil)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		return cfg
	}

	cfg := base()
	cfg.Watch.Mode = "telepathy"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid watch mode")
	}

	cfg = base()
	cfg.Checksums.Algorithms = []string{"crc32"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unsupported algorithm")
	}

	cfg = base()
	cfg.Watch.Debounce = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero debounce")
	}

	cfg = base()
	cfg.Marker = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty marker")
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
