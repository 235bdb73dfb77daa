package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources Sources `yaml:"sources"`
	LLM     LLM     `yaml:"llm"`
	Server  Server  `yaml:"server"`
	Output  Output  `yaml:"output"`
	Logging Logging `yaml:"logging"`
}

type Sources struct {
	Feeds []Feed `yaml:"feeds"`
}

type Feed struct {
	URL      string `yaml:"url"`
	Name     string `yaml:"name"`
	Platform string `yaml:"platform"`
}

// LLM configures the model provider. Model is the main multimodal tier used
// for analysis and caption generation; CheapModel is the low-cost text-only
// tier used for image shortlisting.
type LLM struct {
	Provider         string `yaml:"provider"`
	Model            string `yaml:"model"`
	CheapModel       string `yaml:"cheap_model"`
	OllamaURL        string `yaml:"ollama_url"`
	OpenAIModel      string `yaml:"openai_model"`
	OpenAICheapModel string `yaml:"openai_cheap_model"`
	APIKeyEnv        string `yaml:"api_key_env"`
	MaxTokens        int    `yaml:"max_tokens"`
}

type Server struct {
	Port             int    `yaml:"port"`
	PasswordHash     string `yaml:"password_hash"`
	CollectToken     string `yaml:"collect_token"`
	SessionSecretEnv string `yaml:"session_secret_env"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for memestash.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "memestash")
}

// DataDir returns the XDG data directory for memestash.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "memestash")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/memestash/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'memestash init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		LLM: LLM{
			Provider:         "ollama",
			Model:            "llava:13b",
			CheapModel:       "qwen2.5:3b",
			OllamaURL:        "http://localhost:11434",
			OpenAIModel:      "gpt-4o",
			OpenAICheapModel: "gpt-4o-mini",
			APIKeyEnv:        "OPENAI_API_KEY",
			MaxTokens:        1024,
		},
		Server: Server{
			Port:             8787,
			SessionSecretEnv: "MEMESTASH_SESSION_SECRET",
		},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// SessionSecret returns the cookie-signing secret from the configured
// environment variable, falling back to the password hash so a bare setup
// still gets deterministic sessions.
func (c *Config) SessionSecret() []byte {
	if c.Server.SessionSecretEnv != "" {
		if v := os.Getenv(c.Server.SessionSecretEnv); v != "" {
			return []byte(v)
		}
	}
	return []byte(c.Server.PasswordHash)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
