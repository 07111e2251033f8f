package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"strings"

	"github.com/duet-cli/duet/internal/config"
)

// CodexCLI drives the `codex` command-line tool.
//
// New session:    codex exec --json "<prompt>"
// Resume session: codex exec resume <session_id> --json "<prompt>"
//
// Output is a stream of newline-delimited JSON events:
//
//	{"type":"thread.started","thread_id":"thread_abc"}
//	{"type":"item.completed","item":{"type":"agent_message","content":[{"type":"output_text","text":"Hi"}]}}
//	{"type":"error","message":"...","status":429}
type CodexCLI struct{}

// Name implements Provider.
func (*CodexCLI) Name() ID { return IDCodex }

const codexInstallHint = "'codex' command not found. Install with: npm i -g @openai/codex"

// Run implements Provider.
func (c *CodexCLI) Run(ctx context.Context, prompt, sessionID string, cfg *config.Config) Result {
	bin, err := exec.LookPath("codex")
	if err != nil {
		return Result{
			ErrorClass:   OtherError,
			ErrorMessage: codexInstallHint,
		}
	}

	args := []string{"exec"}
	if cfg.Codex.Model != "" {
		args = append(args, "--model", cfg.Codex.Model)
	}
	args = append(args, sandboxArgs(cfg.Codex.Sandbox)...)
	if sessionID != "" {
		args = append(args, "resume", sessionID)
	}
	args = append(args, "--json", prompt)

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
			ErrorMessage: "codex CLI timed out after 5 minutes",
			RawOutput:    stdout.String() + stderr.String(),
		}
	}

	exitCode := 0
	if runErr != nil {
		var ee *exec.ExitError
		if !errors.As(runErr, &ee) {
			return Result{
				ErrorClass:   OtherError,
				ErrorMessage: boundMessage("failed to run codex CLI: " + runErr.Error()),
				RawOutput:    stdout.String() + stderr.String(),
			}
		}
		exitCode = ee.ExitCode()
	}

	return parseCodexOutput(stdout.String(), stderr.String(), exitCode)
}

// sandboxArgs maps the configured sandbox mode to codex exec flags.
// Unknown values coerce to read-only.
func sandboxArgs(sandbox string) []string {
	switch sandbox {
	case "read-only", "workspace-write", "danger-full-access":
		return []string{"--sandbox", sandbox}
	case "full-auto":
		return []string{"--full-auto"}
	case "dangerously-bypass-approvals-and-sandbox":
		return []string{"--dangerously-bypass-approvals-and-sandbox"}
	default:
		return []string{"--sandbox", "read-only"}
	}
}

// codexEvent is one JSONL line. The thread id field name has drifted
// across codex versions, so all known aliases are accepted.
type codexEvent struct {
	Type      string     `json:"type"`
	ThreadID  string     `json:"thread_id"`
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Item      *codexItem `json:"item"`
	Message   string     `json:"message"`
	Status    int        `json:"status"`
}

func (e *codexEvent) threadID() string {
	switch {
	case e.ThreadID != "":
		return e.ThreadID
	case e.ID != "":
		return e.ID
	default:
		return e.SessionID
	}
}

type codexItem struct {
	Type    string            `json:"type"`
	Content []json.RawMessage `json:"content"`
}

type codexBlock struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	OutputText string `json:"output_text"`
}

// parseCodexOutput walks the JSONL event stream. Non-JSON lines are
// progress noise and skipped. The last agent_message is the final
// answer; an error event beats any partial success text.
func parseCodexOutput(stdout, stderr string, exitCode int) Result {
	raw := stdout + stderr

	var (
		threadID      string
		assistantText string
		sawMessage    bool
		lastError     *codexEvent
	)

	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var event codexEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}

		switch event.Type {
		case "thread.started":
			if threadID == "" {
				threadID = event.threadID()
			}
		case "item.completed":
			if event.Item == nil || event.Item.Type != "agent_message" {
				continue
			}
			var parts []string
			for _, rawBlock := range event.Item.Content {
				var block codexBlock
				if err := json.Unmarshal(rawBlock, &block); err != nil {
					continue
				}
				switch {
				case block.Text != "":
					parts = append(parts, block.Text)
				case block.OutputText != "":
					parts = append(parts, block.OutputText)
				}
			}
			if len(parts) > 0 {
				assistantText = strings.Join(parts, "\n")
				sawMessage = true
			}
		case "error":
			e := event
			lastError = &e
		}
	}

	if lastError != nil {
		msg := lastError.Message
		if msg == "" {
			msg = "codex reported an unspecified error"
		}
		return Result{
			SessionID:    threadID,
			ErrorClass:   Classify(msg, lastError.Status),
			ErrorMessage: boundMessage(msg),
			RawOutput:    raw,
		}
	}

	if exitCode != 0 && !sawMessage {
		msg := raw
		if msg == "" {
			msg = "unknown error from codex CLI"
		}
		return Result{
			SessionID:    threadID,
			ErrorClass:   Classify(raw, 0),
			ErrorMessage: boundMessage(msg),
			RawOutput:    raw,
		}
	}

	if sawMessage {
		return Result{
			Success:   true,
			Text:      assistantText,
			SessionID: threadID,
			RawOutput: raw,
		}
	}

	// Clean exit with neither a message nor an error event.
	return Result{
		SessionID:    threadID,
		ErrorClass:   OtherError,
		ErrorMessage: "no assistant message found in codex output",
		RawOutput:    raw,
	}
}
