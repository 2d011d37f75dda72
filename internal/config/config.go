package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models ledgerline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret         string `yaml:"jwt_secret"`
		AllowLegacyHeader bool   `yaml:"allow_legacy_header"`
	} `yaml:"auth"`
	Billing struct {
		Currency string `yaml:"currency"`
	} `yaml:"billing"`
	DevMode  bool      `yaml:"dev_mode"`
	Webhooks []Webhook `yaml:"webhooks"`
}

type Webhook struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with ll config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Billing.Currency == "" {
		return fmt.Errorf("config.billing.currency is required")
	}
	for i, wh := range c.Webhooks {
		if wh.Name == "" {
			return fmt.Errorf("webhook %d has no name", i)
		}
		if wh.URL == "" {
			return fmt.Errorf("webhook %s has no url", wh.Name)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "ledgerline.yml")
}

// Default returns the built-in default configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: ":8080"
  base_path: /api/v1

auth:
  jwt_secret: ""
  allow_legacy_header: false

billing:
  currency: USD

dev_mode: false

webhooks: []
`
