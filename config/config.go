package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	verrors "github.com/bondalen/vuege/errors"
	"github.com/bondalen/vuege/gateway"
	"github.com/bondalen/vuege/pkg/cache"
	"github.com/bondalen/vuege/resilience"
)

// Default provider endpoints, overridable for testing against mocks.
const (
	defaultOpenCageBaseURL       = "https://api.opencagedata.com"
	defaultAbstractBaseURL       = "https://emailvalidation.abstractapi.com"
	defaultOpenCorporatesBaseURL = "https://api.opencorporates.com"
)

// ProviderConfig holds the connection settings for one external API.
type ProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// ProvidersConfig groups the three upstream providers.
type ProvidersConfig struct {
	OpenCage       ProviderConfig `yaml:"opencage"`
	Abstract       ProviderConfig `yaml:"abstract"`
	OpenCorporates ProviderConfig `yaml:"opencorporates"`
}

// MonitoringConfig controls the scheduled health probes.
type MonitoringConfig struct {
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config represents the complete application configuration.
type Config struct {
	Providers  ProvidersConfig   `yaml:"providers"`
	Resilience resilience.Config `yaml:"resilience"`
	Cache      cache.Config      `yaml:"cache"`
	Monitoring MonitoringConfig  `yaml:"monitoring"`
	Server     gateway.Config    `yaml:"server"`
	Logging    LoggingConfig     `yaml:"logging"`
}

// Default returns the configuration used when no file value is set.
func Default() *Config {
	return &Config{
		Providers: ProvidersConfig{
			OpenCage:       ProviderConfig{BaseURL: defaultOpenCageBaseURL},
			Abstract:       ProviderConfig{BaseURL: defaultAbstractBaseURL},
			OpenCorporates: ProviderConfig{BaseURL: defaultOpenCorporatesBaseURL},
		},
		Resilience: resilience.DefaultConfig(),
		Cache:      cache.DefaultConfig(),
		Monitoring: MonitoringConfig{ProbeInterval: 5 * time.Minute},
		Server:     gateway.DefaultConfig(),
		Logging:    LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads the YAML file at path, applies environment overrides, and
// validates the result. Fields absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, verrors.WrapInvalid(err, "config", "Load", "read config file")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, verrors.WrapInvalid(err, "config", "Load", "parse YAML")
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets environment variables win over file values for
// secrets and deployment-specific settings.
func (c *Config) applyEnvOverrides() {
	overrideString(&c.Providers.OpenCage.APIKey, "VUEGE_OPENCAGE_API_KEY")
	overrideString(&c.Providers.OpenCage.BaseURL, "VUEGE_OPENCAGE_BASE_URL")
	overrideString(&c.Providers.Abstract.APIKey, "VUEGE_ABSTRACT_API_KEY")
	overrideString(&c.Providers.Abstract.BaseURL, "VUEGE_ABSTRACT_BASE_URL")
	overrideString(&c.Providers.OpenCorporates.APIKey, "VUEGE_OPENCORPORATES_API_KEY")
	overrideString(&c.Providers.OpenCorporates.BaseURL, "VUEGE_OPENCORPORATES_BASE_URL")

	if port, ok := envInt("VUEGE_SERVER_PORT"); ok {
		c.Server.Port = port
	}
}

// Validate checks the whole configuration tree and applies defaults for
// unset nested fields.
func (c *Config) Validate() error {
	providers := []struct {
		name string
		cfg  *ProviderConfig
	}{
		{"opencage", &c.Providers.OpenCage},
		{"abstract", &c.Providers.Abstract},
		{"opencorporates", &c.Providers.OpenCorporates},
	}
	for _, p := range providers {
		if p.cfg.BaseURL == "" {
			return verrors.WrapInvalid(verrors.ErrMissingConfig, "config", "Validate",
				fmt.Sprintf("providers.%s.base_url is required", p.name))
		}
	}

	if err := c.Resilience.Validate(); err != nil {
		return verrors.WrapInvalid(err, "config", "Validate", "resilience section")
	}
	if err := c.Cache.Validate(); err != nil {
		return verrors.WrapInvalid(err, "config", "Validate", "cache section")
	}
	if err := c.Server.Validate(); err != nil {
		return verrors.WrapInvalid(err, "config", "Validate", "server section")
	}

	if c.Monitoring.ProbeInterval < 0 {
		return verrors.WrapInvalid(verrors.ErrInvalidConfig, "config", "Validate",
			"monitoring.probe_interval cannot be negative")
	}
	if c.Monitoring.ProbeInterval == 0 {
		c.Monitoring.ProbeInterval = 5 * time.Minute
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return verrors.WrapInvalid(verrors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return verrors.WrapInvalid(verrors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("logging.format %q is not one of json, text", c.Logging.Format))
	}

	return nil
}

func overrideString(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

func envInt(key string) (int, bool) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}
