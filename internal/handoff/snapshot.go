package handoff

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/duet-cli/duet/internal/config"
)

// gitTimeout bounds each version-control query.
const gitTimeout = 10 * time.Second

// RepoSnapshot builds a compact Markdown snapshot of the working tree
// for context injection: status, recent commits, diff statistics, and
// the full diff only while it fits within the configured bounds.
// Outside a git checkout the snapshot is empty.
func RepoSnapshot(cfg *config.Config) string {
	if runGit("rev-parse", "--is-inside-work-tree") == "" {
		return ""
	}

	parts := []string{"## Repo Snapshot\n"}

	if status := runGit("status", "--porcelain"); status != "" {
		parts = append(parts, "**Status:**\n```\n"+strings.TrimSpace(status)+"\n```\n")
	}

	if log := runGit("log", "-n", "5", "--oneline"); log != "" {
		parts = append(parts, "**Recent commits:**\n```\n"+strings.TrimSpace(log)+"\n```\n")
	}

	if stat := runGit("diff", "--stat"); stat != "" {
		parts = append(parts, "**Diff stat:**\n```\n"+strings.TrimSpace(stat)+"\n```\n")
	}

	if diff := runGit("diff"); diff != "" {
		nLines := strings.Count(diff, "\n")
		nBytes := len(diff)
		if nLines <= cfg.Limits.MaxDiffLines && nBytes <= cfg.Limits.MaxDiffBytes {
			parts = append(parts, "**Full diff:**\n```diff\n"+strings.TrimSpace(diff)+"\n```\n")
		} else {
			parts = append(parts, fmt.Sprintf(
				"**Full diff omitted** (%d lines, %d bytes). Inspect individual files as needed.\n",
				nLines, nBytes,
			))
		}
	}

	return strings.Join(parts, "\n")
}

// runGit executes one git query with a hard timeout, returning stdout
// on success or "" on any failure.
func runGit(args ...string) string {
	ctx, cancel := context.WithTimeout(context.Background(), gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return ""
	}
	return stdout.String()
}
