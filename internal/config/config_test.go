package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Sources.Feeds) == 0 {
		t.Error("expected feeds to be populated")
	}

	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected provider 'ollama', got %q", cfg.LLM.Provider)
	}

	if cfg.LLM.Model != "llava:13b" {
		t.Errorf("expected model 'llava:13b', got %q", cfg.LLM.Model)
	}

	if cfg.LLM.CheapModel == "" {
		t.Error("expected cheap_model to be set")
	}

	if cfg.Server.Port != 8787 {
		t.Errorf("expected port 8787, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
llm:
  provider: openai
  openai_model: gpt-4o
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", cfg.LLM.Provider)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.LLM.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama_url, got %q", cfg.LLM.OllamaURL)
	}
	if cfg.LLM.OpenAICheapModel != "gpt-4o-mini" {
		t.Errorf("expected default openai_cheap_model, got %q", cfg.LLM.OpenAICheapModel)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Sources.Feeds) == 0 {
		t.Error("expected feeds to be populated from file")
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}

func TestSessionSecretFallsBackToHash(t *testing.T) {
	cfg := &Config{}
	cfg.Server.SessionSecretEnv = "MEMESTASH_TEST_SECRET_UNSET"
	cfg.Server.PasswordHash = "$2a$10$hash"

	if string(cfg.SessionSecret()) != "$2a$10$hash" {
		t.Error("expected fallback to password hash")
	}

	t.Setenv("MEMESTASH_TEST_SECRET_UNSET", "topsecret")
	if string(cfg.SessionSecret()) != "topsecret" {
		t.Error("expected secret from environment")
	}
}
