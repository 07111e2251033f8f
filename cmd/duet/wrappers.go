package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/duet-cli/duet/internal/provider"
)

// wrapperMarker identifies shim scripts written by duet so install and
// uninstall never touch foreign files.
const wrapperMarker = "DUET_WRAPPER"

// wrapperNames are the shims installed in front of the provider CLIs.
var wrapperNames = []string{"claude", "claudecode", "codex"}

func defaultWrapperDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".duet", "bin")
	}
	return filepath.Join(home, ".duet", "bin")
}

func installWrappersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install-wrappers",
		Short: "Install claude/claudecode/codex wrapper shims",
		Long: "Install launcher shims for `claude`, `claudecode`, and `codex`\n" +
			"that route through duet while keeping native CLI behavior for\n" +
			"flag-style invocations.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			overwrite, _ := cmd.Flags().GetBool("overwrite")

			realCodex := findRealBinary("codex")
			if realCodex == "" {
				return fmt.Errorf("could not locate the real codex binary in PATH")
			}
			realClaude := realBinaryForProvider(provider.IDClaude)
			if realClaude == "" {
				return fmt.Errorf("could not locate a real claude/claudecode binary in PATH")
			}

			// Refuse to shadow a real binary in place.
			for name, real := range map[string]string{
				"claude":     realClaude,
				"claudecode": realClaude,
				"codex":      realCodex,
			} {
				target, err := filepath.Abs(filepath.Join(dir, name))
				if err != nil {
					return fmt.Errorf("resolving wrapper path: %w", err)
				}
				realAbs, err := filepath.Abs(real)
				if err != nil {
					return fmt.Errorf("resolving provider binary path: %w", err)
				}
				if target == realAbs {
					return fmt.Errorf("refusing to overwrite the real %s binary in-place; use a dedicated wrapper directory first in PATH", name)
				}
			}

			wrappers := map[string]string{
				"claude":     wrapperScript(provider.IDClaude, realClaude),
				"claudecode": wrapperScript(provider.IDClaude, realClaude),
				"codex":      wrapperScript(provider.IDCodex, realCodex),
			}

			for _, name := range wrapperNames {
				path := filepath.Join(dir, name)
				if _, err := os.Stat(path); err == nil && !overwrite && !isDuetWrapper(path) {
					return fmt.Errorf("refusing to overwrite non-duet file: %s", path)
				}
				if err := writeWrapper(path, wrappers[name]); err != nil {
					return err
				}
				fmt.Printf("%s Installed %s\n", okStyle.Render("✓"), path)
			}

			fmt.Println()
			fmt.Println(dimStyle.Render("Ensure this directory is first in PATH so the wrappers shadow the original binaries."))
			return nil
		},
	}
	cmd.Flags().String("dir", defaultWrapperDir(), "Directory for the wrapper scripts")
	cmd.Flags().Bool("overwrite", false, "Overwrite existing files even if they are not duet wrappers")
	return cmd
}

func uninstallWrappersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall-wrappers",
		Short: "Remove wrapper shims installed by install-wrappers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			removed := 0
			for _, name := range wrapperNames {
				path := filepath.Join(dir, name)
				if _, err := os.Stat(path); err != nil {
					continue
				}
				if !isDuetWrapper(path) {
					fmt.Printf("%s %s\n", noticeStyle.Render("Skipping non-duet file:"), path)
					continue
				}
				if err := os.Remove(path); err != nil {
					return fmt.Errorf("removing %s: %w", path, err)
				}
				removed++
				fmt.Printf("%s Removed %s\n", okStyle.Render("✓"), path)
			}

			if removed == 0 {
				fmt.Println(dimStyle.Render("No duet wrappers found to remove."))
			}
			return nil
		},
	}
	cmd.Flags().String("dir", defaultWrapperDir(), "Directory containing the wrapper scripts")
	return cmd
}

// wrapperScript renders the POSIX shim for one provider. The shim execs
// the real binary when duet itself spawned it (inner-call marker) or
// when the first argument is flag-like, and otherwise routes through
// `duet launch`.
func wrapperScript(preferred provider.ID, realBin string) string {
	lines := []string{
		"#!/usr/bin/env sh",
		"# " + wrapperMarker,
		"set -e",
		"REAL_PROVIDER_BIN=" + shQuote(realBin),
		`if [ "${` + provider.InnerCallEnv + `:-0}" = "1" ]; then`,
		`  exec "$REAL_PROVIDER_BIN" "$@"`,
		"fi",
		`if [ "$#" -gt 0 ] && [ "${1#-}" != "$1" ]; then`,
		`  exec "$REAL_PROVIDER_BIN" "$@"`,
		"fi",
		`exec duet launch --prefer-provider ` + string(preferred) + ` -- "$@"`,
	}
	return strings.Join(lines, "\n") + "\n"
}

func writeWrapper(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating wrapper directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return fmt.Errorf("writing wrapper %s: %w", path, err)
	}
	return nil
}

func isDuetWrapper(path string) bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return strings.Contains(string(raw), wrapperMarker)
}

// extractRealProviderBin returns REAL_PROVIDER_BIN from a duet wrapper
// when it points at an existing executable other than the wrapper itself.
func extractRealProviderBin(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	for _, line := range strings.Split(string(raw), "\n") {
		rest, ok := strings.CutPrefix(line, "REAL_PROVIDER_BIN=")
		if !ok {
			continue
		}
		resolved := shUnquote(strings.TrimSpace(rest))
		if resolved == "" {
			return ""
		}

		resolvedAbs, err1 := filepath.Abs(resolved)
		wrapperAbs, err2 := filepath.Abs(path)
		if err1 != nil || err2 != nil || resolvedAbs == wrapperAbs {
			return ""
		}
		if info, err := os.Stat(resolved); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return resolved
		}
		return ""
	}
	return ""
}

// findRealBinary resolves an executable from PATH, skipping duet
// wrapper shims (following their recorded real binary when possible).
func findRealBinary(name string) string {
	for _, rawDir := range filepath.SplitList(os.Getenv("PATH")) {
		if rawDir == "" {
			continue
		}
		candidate := filepath.Join(rawDir, name)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() || info.Mode()&0o111 == 0 {
			continue
		}
		if isDuetWrapper(candidate) {
			if extracted := extractRealProviderBin(candidate); extracted != "" {
				return extracted
			}
			continue
		}
		return candidate
	}
	return ""
}

func realBinaryForProvider(id provider.ID) string {
	if id == provider.IDCodex {
		return findRealBinary("codex")
	}
	if bin := findRealBinary("claude"); bin != "" {
		return bin
	}
	return findRealBinary("claudecode")
}

// shQuote single-quotes a string for POSIX sh.
func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// shUnquote strips one level of matching shell quotes.
func shUnquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			inner := s[1 : len(s)-1]
			return strings.ReplaceAll(inner, `'\''`, "'")
		}
	}
	return s
}
