// Package config provides configuration loading from a YAML file,
// keyring secrets, and environment variables. Environment variables
// take precedence for dev flexibility.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

const (
	// KeyringService is the keyring service name for inkling secrets.
	KeyringService = "inkling"

	// Keyring account names for each secret.
	KeyAnthropicAPIKey = "anthropic-api-key"
	KeyOpenAIAPIKey    = "openai-api-key"
)

// Config holds the full application configuration, assembled from
// YAML + keyring + env.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Trigger TriggerConfig `yaml:"trigger"`
	Draw    DrawConfig    `yaml:"draw"`
	Prompt  string        `yaml:"prompt"`
}

// EngineConfig selects and authenticates the reasoning backend.
type EngineConfig struct {
	Name     string `yaml:"name"` // empty means guess from model
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	TimeoutS int    `yaml:"timeout_seconds"`
	APIKey   string `yaml:"-"` // secret, not in YAML
}

// TriggerConfig tunes the activation gesture.
type TriggerConfig struct {
	Corner        string `yaml:"corner"`
	ZoneSize      int    `yaml:"zone_size"`
	DebounceMs    int    `yaml:"debounce_ms"`
	MoveTolerance int    `yaml:"move_tolerance"`
}

// DrawConfig tunes output rendering and pacing.
type DrawConfig struct {
	TextMode        string  `yaml:"text_mode"` // keyboard or pen
	MaxRunLen       int     `yaml:"max_run_len"`
	EventIntervalMs int     `yaml:"event_interval_ms"`
	FontPath        string  `yaml:"font_path"`
	FontSize        float64 `yaml:"font_size"`
}

// defaultPrompt is used when neither config nor flags supply one.
const defaultPrompt = "You are a helpful assistant living inside an " +
	"e-ink tablet. Look at the handwritten page in the image and respond " +
	"to it using the drawing tools. Keep output small and place it near " +
	"the relevant content."

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "inkling")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	if p := os.Getenv("INKLING_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load assembles configuration from YAML file + keyring + environment
// variables. Environment variables always take precedence. Returns a
// usable Config even if some sources are missing.
func Load() (*Config, error) {
	cfg := &Config{}

	configPath := DefaultConfigPath()
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}

	cfg.applyDefaults()

	// The engine choice has to settle before secrets resolve, since it
	// selects which key to look up.
	if v := os.Getenv("INKLING_ENGINE"); v != "" {
		cfg.Engine.Name = v
	}

	// Layer in keyring secrets (ignore errors - the keyring may not be
	// populated, or may not exist at all on the device).
	account := KeyAnthropicAPIKey
	if cfg.Engine.Name == "openai" {
		account = KeyOpenAIAPIKey
	}
	if key, err := keyring.Get(KeyringService, account); err == nil {
		cfg.Engine.APIKey = key
	}

	// Environment variables override everything.
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && cfg.Engine.Name != "openai" {
		cfg.Engine.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Engine.Name == "openai" {
		cfg.Engine.APIKey = v
	}
	if v := os.Getenv("INKLING_MODEL"); v != "" {
		cfg.Engine.Model = v
	}
	if v := os.Getenv("INKLING_BASE_URL"); v != "" {
		cfg.Engine.BaseURL = v
	}
	if v := os.Getenv("INKLING_TRIGGER_CORNER"); v != "" {
		cfg.Trigger.Corner = v
	}
	if v := os.Getenv("INKLING_TEXT_MODE"); v != "" {
		cfg.Draw.TextMode = v
	}
	if v := os.Getenv("INKLING_MAX_RUN_LEN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Draw.MaxRunLen = n
		}
	}

	return cfg, nil
}

// applyDefaults fills zero values with working defaults.
func (c *Config) applyDefaults() {
	if c.Engine.Model == "" {
		c.Engine.Model = "claude-sonnet-4-0"
	}
	if c.Trigger.Corner == "" {
		c.Trigger.Corner = "upper-right"
	}
	if c.Trigger.ZoneSize == 0 {
		c.Trigger.ZoneSize = 120
	}
	if c.Trigger.DebounceMs == 0 {
		c.Trigger.DebounceMs = 500
	}
	if c.Trigger.MoveTolerance == 0 {
		c.Trigger.MoveTolerance = 15
	}
	if c.Draw.TextMode == "" {
		c.Draw.TextMode = "keyboard"
	}
	if c.Draw.MaxRunLen == 0 {
		c.Draw.MaxRunLen = 120
	}
	if c.Draw.EventIntervalMs == 0 {
		c.Draw.EventIntervalMs = 2
	}
	if c.Draw.FontSize == 0 {
		c.Draw.FontSize = 24
	}
	if c.Prompt == "" {
		c.Prompt = defaultPrompt
	}
}

// WriteConfigFile writes the non-secret portion of config to the YAML
// file.
func WriteConfigFile(cfg *Config) error {
	dir := filepath.Dir(DefaultConfigPath())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(DefaultConfigPath(), data, 0o644)
}

// SetKeyringSecret stores a secret in the system keyring.
func SetKeyringSecret(account, value string) error {
	// Delete first to avoid "already exists" errors on update
	_ = keyring.Delete(KeyringService, account)
	return keyring.Set(KeyringService, account, value)
}

// GetKeyringSecret retrieves a secret from the system keyring.
func GetKeyringSecret(account string) (string, error) {
	return keyring.Get(KeyringService, account)
}
