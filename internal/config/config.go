package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models peopleops.yml.
type Config struct {
	Claims struct {
		CFO []string `yaml:"cfo" json:"cfo"`
		Ops []string `yaml:"ops" json:"ops"`
	} `yaml:"claims" json:"claims"`
	Training struct {
		PassingScore int `yaml:"passing_score" json:"passing_score"`
	} `yaml:"training" json:"training"`
	Notifications struct {
		Limit     int `yaml:"limit" json:"limit"`
		TaskLimit int `yaml:"task_limit" json:"task_limit"`
	} `yaml:"notifications" json:"notifications"`
	Locale   string          `yaml:"locale" json:"locale"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
}

// WebhookConfig forwards committed events to an HTTP endpoint.
type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Secret         string   `yaml:"secret" json:"-"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
}

const (
	DefaultPassingScore      = 80
	DefaultNotificationLimit = 10
	DefaultTaskLimit         = 6
	DefaultLocale            = "en"

	// The digest never grows past these caps; config may only lower them.
	MaxNotificationLimit = DefaultNotificationLimit
	MaxTaskLimit         = DefaultTaskLimit
)

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with peopleops config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "peopleops.yml")
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses, fills defaults and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Claims.CFO = normalizeClaims(cfg.Claims.CFO)
	cfg.Claims.Ops = normalizeClaims(cfg.Claims.Ops)
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

func (c *Config) applyDefaults() {
	if c.Training.PassingScore == 0 {
		c.Training.PassingScore = DefaultPassingScore
	}
	if c.Notifications.Limit == 0 {
		c.Notifications.Limit = DefaultNotificationLimit
	}
	if c.Notifications.TaskLimit == 0 {
		c.Notifications.TaskLimit = DefaultTaskLimit
	}
	if c.Locale == "" {
		c.Locale = DefaultLocale
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Training.PassingScore < 1 || c.Training.PassingScore > 100 {
		return fmt.Errorf("config.training.passing_score must be between 1 and 100")
	}
	if c.Notifications.Limit < 1 || c.Notifications.Limit > MaxNotificationLimit {
		return fmt.Errorf("config.notifications.limit must be between 1 and %d", MaxNotificationLimit)
	}
	if c.Notifications.TaskLimit < 1 || c.Notifications.TaskLimit > MaxTaskLimit {
		return fmt.Errorf("config.notifications.task_limit must be between 1 and %d", MaxTaskLimit)
	}
	for _, group := range []struct {
		name    string
		entries []string
	}{{"cfo", c.Claims.CFO}, {"ops", c.Claims.Ops}} {
		for _, entry := range group.entries {
			if strings.TrimSpace(entry) == "" {
				return fmt.Errorf("config.claims.%s contains an empty entry", group.name)
			}
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

func normalizeClaims(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(v)))
	}
	return out
}

const defaultTemplate = `# Role claims grant approval scope by exact (trimmed, case-insensitive) name or email.
claims:
  cfo: []
  ops: []

training:
  passing_score: 80

# Caps may be lowered, never raised (limit <= 10, task_limit <= 6).
notifications:
  limit: 10
  task_limit: 6

locale: en

# webhooks:
#   - url: https://hooks.example.com/peopleops
#     events: [approval.decided]
`
