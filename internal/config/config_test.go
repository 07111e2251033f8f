package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if !reflect.DeepEqual(cfg.ProviderOrder, []string{"claude", "codex"}) {
		t.Errorf("ProviderOrder = %v", cfg.ProviderOrder)
	}
	if cfg.Codex.Sandbox != "read-only" {
		t.Errorf("Sandbox = %q", cfg.Codex.Sandbox)
	}
	if cfg.Limits.MaxDiffLines != 200 || cfg.Limits.MaxDiffBytes != 8000 || cfg.Limits.MaxHandoffLines != 350 {
		t.Errorf("Limits = %+v", cfg.Limits)
	}
	if cfg.Retry.MaxRetries != 3 || cfg.Retry.BackoffBase != 2.0 || cfg.Retry.BackoffMax != 30.0 {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if cfg.Retry.CooldownMinutes != 60 || cfg.Retry.TransientCooldownMinutes != 5 {
		t.Errorf("Retry cooldowns = %+v", cfg.Retry)
	}
	if cfg.Switch.Confirmation != "ask" {
		t.Errorf("Confirmation = %q", cfg.Switch.Confirmation)
	}
}

func TestLoadFromMissingFiles(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadFrom(filepath.Join(dir, "nope.toml"), filepath.Join(dir, "also-nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("missing files must yield pure defaults, got %+v", cfg)
	}
}

func TestLoadFromUserFile(t *testing.T) {
	dir := t.TempDir()
	user := writeConfig(t, dir, "user.toml", `
provider_order = ["codex", "claude"]

[codex]
model = "gpt-5.2-codex"

[retry]
max_retries = 5
`)

	cfg, err := LoadFrom(user, "")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg.ProviderOrder, []string{"codex", "claude"}) {
		t.Errorf("ProviderOrder = %v", cfg.ProviderOrder)
	}
	if cfg.Codex.Model != "gpt-5.2-codex" {
		t.Errorf("Model = %q", cfg.Codex.Model)
	}
	if cfg.Retry.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d", cfg.Retry.MaxRetries)
	}
	// Untouched keys keep their defaults.
	if cfg.Codex.Sandbox != "read-only" {
		t.Errorf("Sandbox = %q, want default preserved", cfg.Codex.Sandbox)
	}
	if cfg.Retry.CooldownMinutes != 60 {
		t.Errorf("CooldownMinutes = %d, want default preserved", cfg.Retry.CooldownMinutes)
	}
}

func TestLoadFromRepoOverridesUser(t *testing.T) {
	dir := t.TempDir()
	user := writeConfig(t, dir, "user.toml", `
[codex]
model = "from-user"
sandbox = "workspace-write"

[retry]
max_retries = 5
cooldown_minutes = 90
`)
	repo := writeConfig(t, dir, "repo.toml", `
[codex]
model = "from-repo"

[retry]
max_retries = 1
`)

	cfg, err := LoadFrom(user, repo)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Codex.Model != "from-repo" {
		t.Errorf("Model = %q, want the repo value", cfg.Codex.Model)
	}
	if cfg.Retry.MaxRetries != 1 {
		t.Errorf("MaxRetries = %d, want the repo value", cfg.Retry.MaxRetries)
	}
	// Groups deep-merge: keys set only by the user layer survive.
	if cfg.Codex.Sandbox != "workspace-write" {
		t.Errorf("Sandbox = %q, want the user value", cfg.Codex.Sandbox)
	}
	if cfg.Retry.CooldownMinutes != 90 {
		t.Errorf("CooldownMinutes = %d, want the user value", cfg.Retry.CooldownMinutes)
	}
}

func TestLoadFromSequenceOverridesWholesale(t *testing.T) {
	dir := t.TempDir()
	user := writeConfig(t, dir, "user.toml", `
[claude]
allowed_tools = ["Bash", "Edit", "Read"]
`)
	repo := writeConfig(t, dir, "repo.toml", `
[claude]
allowed_tools = ["Read"]
`)

	cfg, err := LoadFrom(user, repo)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg.Claude.AllowedTools, []string{"Read"}) {
		t.Errorf("AllowedTools = %v, want the repo list replacing the user list", cfg.Claude.AllowedTools)
	}
}

func TestLoadFromMalformedTOML(t *testing.T) {
	dir := t.TempDir()
	bad := writeConfig(t, dir, "bad.toml", "provider_order = [unclosed")

	if _, err := LoadFrom(bad, ""); err == nil {
		t.Fatal("malformed TOML must be an error, not silently ignored")
	}
}

func TestWithProviderFirst(t *testing.T) {
	tests := []struct {
		name  string
		order []string
		first string
		want  []string
	}{
		{"promote codex", []string{"claude", "codex"}, "codex", []string{"codex", "claude"}},
		{"already first", []string{"claude", "codex"}, "claude", []string{"claude", "codex"}},
		{"reinstates missing provider", []string{"claude"}, "codex", []string{"codex", "claude"}},
		{"unknown name is a no-op", []string{"claude", "codex"}, "gemini", []string{"claude", "codex"}},
		{"empty name is a no-op", []string{"claude", "codex"}, "", []string{"claude", "codex"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.ProviderOrder = tt.order

			got := cfg.WithProviderFirst(tt.first)
			if !reflect.DeepEqual(got.ProviderOrder, tt.want) {
				t.Errorf("order = %v, want %v", got.ProviderOrder, tt.want)
			}
			// The receiver is never mutated.
			if !reflect.DeepEqual(cfg.ProviderOrder, tt.order) {
				t.Errorf("receiver mutated: %v", cfg.ProviderOrder)
			}
		})
	}
}

func TestUserConfigPathHonorsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")
	want := filepath.Join("/tmp/xdg-test", "duet", "config.toml")
	if got := UserConfigPath(); got != want {
		t.Errorf("UserConfigPath() = %q, want %q", got, want)
	}
}
