package intention

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the YAML-loadable deployment configuration: per-provider rate
// limits, per-scope budgets and per-template freshness/retry bounds. Provider
// credentials are not configured here; adapters read them from the
// environment (a .env file is loaded when present).
type Config struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Scopes    map[string]ScopeConfig    `yaml:"scopes"`
	Templates map[string]TemplateConfig `yaml:"templates"`
	Defaults  DefaultsConfig            `yaml:"defaults"`
}

// ProviderConfig holds the token bucket parameters for one provider.
type ProviderConfig struct {
	Capacity     float64 `yaml:"capacity"`
	RefillPerSec float64 `yaml:"refill_rate"`
}

// ScopeConfig holds the budget for one scope.
type ScopeConfig struct {
	BudgetLimit float64  `yaml:"budget_limit"`
	Period      Duration `yaml:"period"`
}

// TemplateConfig holds per-template overrides applied on top of registered
// templates.
type TemplateConfig struct {
	TTL        Duration `yaml:"ttl"`
	MaxRetries int      `yaml:"max_retries"`
}

// DefaultsConfig holds fallbacks used when no specific entry matches.
type DefaultsConfig struct {
	TTL            Duration `yaml:"ttl"`
	MaxRetries     int      `yaml:"max_retries"`
	BudgetLimit    float64  `yaml:"budget_limit"`
	BudgetPeriod   Duration `yaml:"budget_period"`
	InitialBackoff Duration `yaml:"initial_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff"`
}

// LoadConfig reads a YAML configuration file. A .env file alongside the
// process, if any, is loaded first so adapters can resolve credentials.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	for id, pc := range cfg.Providers {
		if pc.Capacity <= 0 {
			return nil, fmt.Errorf("provider %q: capacity must be positive", id)
		}
		if pc.RefillPerSec <= 0 {
			return nil, fmt.Errorf("provider %q: refill_rate must be positive", id)
		}
	}
	for scope, sc := range cfg.Scopes {
		if sc.BudgetLimit < 0 {
			return nil, fmt.Errorf("scope %q: budget_limit must be non-negative", scope)
		}
	}

	return &cfg, nil
}

// Options converts the configuration into coordinator options. Template
// overrides apply only to templates registered as *PromptTemplate; other
// implementations carry their own advisers.
func (cfg *Config) Options() []Option {
	var opts []Option

	if cfg.Defaults.BudgetLimit > 0 {
		opts = append(opts, WithDefaultBudget(cfg.Defaults.BudgetLimit, time.Duration(cfg.Defaults.BudgetPeriod)))
	}
	if cfg.Defaults.TTL > 0 {
		opts = append(opts, WithDefaultTTL(time.Duration(cfg.Defaults.TTL)))
	}
	if cfg.Defaults.MaxRetries > 0 {
		opts = append(opts, WithMaxRetries(cfg.Defaults.MaxRetries))
	}
	if cfg.Defaults.InitialBackoff > 0 && cfg.Defaults.MaxBackoff > 0 {
		opts = append(opts, WithBackoff(time.Duration(cfg.Defaults.InitialBackoff), time.Duration(cfg.Defaults.MaxBackoff), 2.0, 0.1))
	}

	for id, pc := range cfg.Providers {
		opts = append(opts, WithRateLimit(id, pc.Capacity, pc.RefillPerSec))
	}
	for scope, sc := range cfg.Scopes {
		opts = append(opts, WithBudget(scope, sc.BudgetLimit, time.Duration(sc.Period)))
	}
	if len(cfg.Templates) > 0 {
		overrides := cfg.Templates
		opts = append(opts, func(c *Coordinator) {
			for name, tc := range overrides {
				t, ok := c.templates.Get(name)
				if !ok {
					continue
				}
				if pt, ok := t.(*PromptTemplate); ok {
					if tc.TTL > 0 {
						pt.TTL = time.Duration(tc.TTL)
					}
					if tc.MaxRetries > 0 {
						pt.Retries = tc.MaxRetries
					}
				}
			}
		})
	}

	return opts
}
