// Package config loads the layered TOML configuration:
// built-in defaults <- ~/.config/duet/config.toml <- .duet/config.toml.
// Nested groups deep-merge; scalars and sequences override wholesale.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/viper"
)

// Config is the merged, typed configuration. It is parsed once per
// command and passed by value semantics (callers never mutate a shared
// instance; WithProviderFirst returns a copy).
type Config struct {
	// ProviderOrder lists provider names in preference order.
	ProviderOrder []string `mapstructure:"provider_order"`

	Claude ClaudeConfig `mapstructure:"claude"`
	Codex  CodexConfig  `mapstructure:"codex"`
	Limits LimitsConfig `mapstructure:"limits"`
	Retry  RetryConfig  `mapstructure:"retry"`
	Switch SwitchConfig `mapstructure:"switch"`
}

// ClaudeConfig holds options forwarded to the claude CLI.
type ClaudeConfig struct {
	// AllowedTools are forwarded as repeated --allowedTools flags.
	AllowedTools []string `mapstructure:"allowed_tools"`
}

// CodexConfig holds options forwarded to the codex CLI.
type CodexConfig struct {
	// Model is passed as --model; empty omits the flag.
	Model string `mapstructure:"model"`

	// Sandbox is one of read-only, workspace-write, danger-full-access,
	// full-auto, dangerously-bypass-approvals-and-sandbox. Unknown values
	// are coerced to read-only at command build time.
	Sandbox string `mapstructure:"sandbox"`
}

// LimitsConfig bounds the repo snapshot and the rolling handoff.
type LimitsConfig struct {
	MaxDiffLines    int `mapstructure:"max_diff_lines"`
	MaxDiffBytes    int `mapstructure:"max_diff_bytes"`
	MaxHandoffLines int `mapstructure:"max_handoff_lines"`
}

// RetryConfig controls transient retries and cooldown durations.
type RetryConfig struct {
	// MaxRetries is the number of transient retries per provider
	// (attempts = MaxRetries + 1).
	MaxRetries int `mapstructure:"max_retries"`

	// BackoffBase is the exponential base in seconds; the wait for
	// attempt n is min(BackoffBase**n, BackoffMax). Zero disables waits.
	BackoffBase float64 `mapstructure:"backoff_base"`

	// BackoffMax caps a single backoff wait, in seconds.
	BackoffMax float64 `mapstructure:"backoff_max"`

	// CooldownMinutes is the default quota cooldown when the provider
	// does not state a reset time.
	CooldownMinutes int `mapstructure:"cooldown_minutes"`

	// TransientCooldownMinutes is the short cooldown applied after
	// transient retries are exhausted.
	TransientCooldownMinutes int `mapstructure:"transient_cooldown_minutes"`
}

// SwitchConfig controls failover confirmation.
type SwitchConfig struct {
	// Confirmation is one of ask, yes, no. Unrecognized values mean ask.
	Confirmation string `mapstructure:"confirmation"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	v := viper.New()
	setDefaults(v)
	// Unmarshal of pure defaults cannot fail.
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider_order", []string{"claude", "codex"})
	v.SetDefault("claude.allowed_tools", []string{})
	v.SetDefault("codex.model", "")
	v.SetDefault("codex.sandbox", "read-only")
	v.SetDefault("limits.max_diff_lines", 200)
	v.SetDefault("limits.max_diff_bytes", 8000)
	v.SetDefault("limits.max_handoff_lines", 350)
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.backoff_base", 2.0)
	v.SetDefault("retry.backoff_max", 30.0)
	v.SetDefault("retry.cooldown_minutes", 60)
	v.SetDefault("retry.transient_cooldown_minutes", 5)
	v.SetDefault("switch.confirmation", "ask")
}

// Load merges defaults, the user-global file, and the repo-local file,
// in that order of precedence. Missing files are fine; malformed TOML
// is an error.
func Load() (*Config, error) {
	return LoadFrom(UserConfigPath(), RepoConfigPath())
}

// LoadFrom is Load with explicit file paths, for tests.
func LoadFrom(userPath, repoPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v)

	for _, path := range []string{userPath, repoPath} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// UserConfigPath returns the user-global config location, honoring
// XDG_CONFIG_HOME.
func UserConfigPath() string {
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		return filepath.Join(xdg, "duet", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "duet", "config.toml")
}

// RepoConfigPath returns the repo-local config location relative to the
// working directory.
func RepoConfigPath() string {
	return filepath.Join(".duet", "config.toml")
}

// knownProviders are the names WithProviderFirst reinstates when the
// configured order omits one of them.
var knownProviders = []string{"claude", "codex"}

// WithProviderFirst returns a copy of the config with the named provider
// moved to the front of the order. Both known providers are always
// present in the result. An empty or unknown name returns the receiver
// unchanged.
func (c *Config) WithProviderFirst(name string) *Config {
	if name == "" || !slices.Contains(knownProviders, name) {
		return c
	}

	ordered := []string{name}
	for _, n := range c.ProviderOrder {
		if !slices.Contains(ordered, n) && slices.Contains(knownProviders, n) {
			ordered = append(ordered, n)
		}
	}
	for _, n := range knownProviders {
		if !slices.Contains(ordered, n) {
			ordered = append(ordered, n)
		}
	}

	out := *c
	out.ProviderOrder = ordered
	return &out
}
