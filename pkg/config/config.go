package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/hostfacts/pkg/telemetry"
)

// Default locations used when the configuration file names none.
const (
	DefaultPluginPath = "/etc/hostfacts/plugins"
	DefaultHintPath   = "/etc/hostfacts/hints"
)

// Plugin languages.
const (
	LanguageStarlark = "starlark"
	LanguageLua      = "lua"
)

// Config is the configuration of one engine instance. The engine copies it
// on construction and never reads it from global state.
type Config struct {
	// PluginPath lists plugin roots in search order; the first match wins.
	PluginPath []string `yaml:"plugin_path" validate:"min=1,dive,required"`

	// PluginLanguage selects which plugin files are discovered.
	PluginLanguage string `yaml:"plugin_language" validate:"oneof=starlark lua"`

	// BuiltinCollectors registers the collectors compiled into the binary
	// behind the plugin roots.
	BuiltinCollectors bool `yaml:"builtin_collectors"`

	// DisabledPlugins lists identifiers that must never execute.
	DisabledPlugins []string `yaml:"disabled_plugins" validate:"dive,required"`

	// HintPath lists directories holding <name>.json hint files.
	HintPath []string `yaml:"hint_path" validate:"dive,required"`

	// PolicyPath lists Rego policy files or directories for the check command.
	PolicyPath []string `yaml:"policy_path" validate:"dive,required"`

	// DisabledPolicies lists policy names that are not evaluated.
	DisabledPolicies []string `yaml:"disabled_policies" validate:"dive,required"`

	// Telemetry configures logging, metrics and tracing.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Default returns a configuration with the stock locations.
func Default() *Config {
	return &Config{
		PluginPath:        []string{DefaultPluginPath},
		PluginLanguage:    LanguageStarlark,
		BuiltinCollectors: true,
		DisabledPlugins:   []string{},
		HintPath:          []string{DefaultHintPath},
		PolicyPath:        []string{},
		Telemetry:         *telemetry.DefaultConfig(),
	}
}

// Load reads a YAML configuration file. Unset fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML configuration on top of the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints and telemetry settings.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Clone returns a deep copy so the caller's value can change freely.
func (c *Config) Clone() *Config {
	out := *c
	out.PluginPath = append([]string(nil), c.PluginPath...)
	out.DisabledPlugins = append([]string(nil), c.DisabledPlugins...)
	out.HintPath = append([]string(nil), c.HintPath...)
	out.PolicyPath = append([]string(nil), c.PolicyPath...)
	out.DisabledPolicies = append([]string(nil), c.DisabledPolicies...)

	out.Telemetry.Metrics.DefaultHistogramBuckets = append([]float64(nil), c.Telemetry.Metrics.DefaultHistogramBuckets...)
	headers := make(map[string]string, len(c.Telemetry.Tracing.Headers))
	for k, v := range c.Telemetry.Tracing.Headers {
		headers[k] = v
	}
	out.Telemetry.Tracing.Headers = headers
	return &out
}
