package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"strings"

	"github.com/duet-cli/duet/internal/config"
)

// ClaudeCLI drives the `claude` command-line tool.
//
// New session:    claude -p "<prompt>" --output-format json
// Resume session: claude -r <session_id> -p "<prompt>" --output-format json
//
// The CLI emits a single JSON envelope on stdout:
//
//	{"type":"result","result":"...","session_id":"...","is_error":false,...}
type ClaudeCLI struct{}

// Name implements Provider.
func (*ClaudeCLI) Name() ID { return IDClaude }

// claudeBinaries are the executable names tried in order. Some installs
// expose Claude Code as `claudecode` rather than `claude`.
var claudeBinaries = []string{"claude", "claudecode"}

const claudeInstallHint = "'claude' command not found. Install with: npm i -g @anthropic-ai/claude-code"

// Run implements Provider.
func (c *ClaudeCLI) Run(ctx context.Context, prompt, sessionID string, cfg *config.Config) Result {
	bin, err := lookPathAny(claudeBinaries)
	if err != nil {
		return Result{
			ErrorClass:   OtherError,
			ErrorMessage: claudeInstallHint,
		}
	}

	var args []string
	if sessionID != "" {
		args = append(args, "-r", sessionID)
	}
	args = append(args, "-p", prompt, "--output-format", "json")
	for _, tool := range cfg.Claude.AllowedTools {
		args = append(args, "--allowedTools", tool)
	}

	ctx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(os.Environ(), InnerCallEnv+"=1")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Result{
			ErrorClass:   OtherError,
			ErrorMessage: "claude CLI timed out after 5 minutes",
			RawOutput:    stdout.String() + stderr.String(),
		}
	}

	exitCode := 0
	if runErr != nil {
		var ee *exec.ExitError
		if !errors.As(runErr, &ee) {
			return Result{
				ErrorClass:   OtherError,
				ErrorMessage: boundMessage("failed to run claude CLI: " + runErr.Error()),
				RawOutput:    stdout.String() + stderr.String(),
			}
		}
		exitCode = ee.ExitCode()
	}

	return parseClaudeOutput(stdout.String(), stderr.String(), exitCode)
}

// claudeEnvelope is the JSON document claude prints with
// --output-format json.
type claudeEnvelope struct {
	Type      string `json:"type"`
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
	IsError   bool   `json:"is_error"`
}

// parseClaudeOutput interprets the captured streams. The in-document
// is_error flag takes priority over the exit code; when the envelope
// cannot be parsed at all, classification falls back to the combined
// text.
func parseClaudeOutput(stdout, stderr string, exitCode int) Result {
	raw := stdout + stderr
	trimmed := strings.TrimSpace(stdout)

	var env claudeEnvelope
	if trimmed != "" && json.Unmarshal([]byte(trimmed), &env) == nil {
		if !env.IsError && env.Result != "" {
			return Result{
				Success:   true,
				Text:      env.Result,
				SessionID: env.SessionID,
				RawOutput: raw,
			}
		}

		errMsg := env.Result
		if errMsg == "" {
			errMsg = raw
		}
		return Result{
			SessionID:    env.SessionID,
			ErrorClass:   Classify(errMsg, 0),
			ErrorMessage: boundMessage(errMsg),
			RawOutput:    raw,
		}
	}

	// No parseable envelope. A clean exit with output is treated as a
	// plain-text success.
	if exitCode == 0 && trimmed != "" {
		return Result{Success: true, Text: trimmed, RawOutput: raw}
	}

	msg := raw
	if msg == "" {
		msg = "unknown error from claude CLI"
	}
	return Result{
		ErrorClass:   Classify(raw, 0),
		ErrorMessage: boundMessage(msg),
		RawOutput:    raw,
	}
}

func lookPathAny(names []string) (string, error) {
	var err error
	for _, name := range names {
		var path string
		if path, err = exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", err
}
