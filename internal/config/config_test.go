package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestDelay != time.Second {
		t.Fatalf("RequestDelay = %v, want 1s", cfg.RequestDelay)
	}
	if cfg.AuthorName == "" || cfg.LedgerDir == "" {
		t.Fatalf("missing defaults: %+v", cfg)
	}
}

func TestLoadAppliesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
scraping:
  user_agent: "test-agent"
version_history:
  request_delay_seconds: 0.5
git:
  repo_dir: "/tmp/ledgers"
  author_name: "File Author"
openai:
  model: "gpt-test"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RULESYNC_AUTHOR_NAME", "Env Author")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.UserAgent != "test-agent" {
		t.Fatalf("UserAgent = %q", cfg.UserAgent)
	}
	if cfg.RequestDelay != 500*time.Millisecond {
		t.Fatalf("RequestDelay = %v", cfg.RequestDelay)
	}
	if cfg.LedgerDir != "/tmp/ledgers" {
		t.Fatalf("LedgerDir = %q", cfg.LedgerDir)
	}
	if cfg.AuthorName != "Env Author" {
		t.Fatalf("env override lost: AuthorName = %q", cfg.AuthorName)
	}
	if cfg.OpenAIModel != "gpt-test" {
		t.Fatalf("OpenAIModel = %q", cfg.OpenAIModel)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("git: ["), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
