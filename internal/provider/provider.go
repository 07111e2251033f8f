// Package provider defines the Provider interface for driving external
// coding-assistant CLIs, the shared error taxonomy, and the process-wide
// adapter registry used by the router.
package provider

import (
	"context"
	"time"

	"github.com/duet-cli/duet/internal/config"
)

// ID identifies one of the two supported provider CLIs.
type ID string

// ID constants for the provider registry and on-disk state.
const (
	IDClaude ID = "claude"
	IDCodex  ID = "codex"
)

// ParseID maps a configured provider name to an ID.
// Unknown names are rejected so config typos never reach the registry.
func ParseID(name string) (ID, bool) {
	switch ID(name) {
	case IDClaude:
		return IDClaude, true
	case IDCodex:
		return IDCodex, true
	default:
		return "", false
	}
}

// ErrorClass is the closed classification of provider failures.
// It decides whether the router retries, switches, or surfaces the error.
type ErrorClass string

// ErrorClass constants.
const (
	// QuotaExhausted means the plan/monthly limit is hit. Long cooldown,
	// switch immediately.
	QuotaExhausted ErrorClass = "QUOTA_EXHAUSTED"

	// TransientRateLimit means backpressure. Retry the same provider with
	// backoff, then a short cooldown and switch.
	TransientRateLimit ErrorClass = "TRANSIENT_RATE_LIMIT"

	// AuthRequired means a credential or token problem. Surfaced to the
	// user, no retry, no switch.
	AuthRequired ErrorClass = "AUTH_REQUIRED"

	// OtherError covers everything else (CLI crash, parse failure, timeout).
	OtherError ErrorClass = "OTHER_ERROR"
)

// Result is the unified outcome of one provider CLI invocation.
// Callers inspect Success first, then either Text or ErrorClass.
type Result struct {
	Success bool

	// Text is the assistant's full response. Only meaningful on success;
	// an empty string is still a valid response.
	Text string

	// SessionID is the session/thread id returned by the provider, used
	// for resumption. May be set on failure if one was observed before
	// the error.
	SessionID string

	// ErrorClass and ErrorMessage are set when Success is false.
	// ErrorMessage is bounded for display.
	ErrorClass   ErrorClass
	ErrorMessage string

	// RawOutput is combined stdout+stderr, kept for diagnostics only.
	RawOutput string
}

// Provider executes one prompt turn against an external CLI.
// Implementations are stateless; all per-turn inputs arrive as arguments.
type Provider interface {
	// Name returns the registry identity of this adapter.
	Name() ID

	// Run spawns the provider CLI for a single turn. A non-empty
	// sessionID requests provider-specific resume semantics. Run never
	// returns a Go error: every failure is classified into the Result.
	Run(ctx context.Context, prompt, sessionID string, cfg *config.Config) Result
}

// InnerCallEnv is set in spawned provider processes so wrapper shims can
// detect re-entry and pass through to the real binary.
const InnerCallEnv = "DUET_INNER_PROVIDER_CALL"

// turnTimeout is the hard wall-clock limit for one provider invocation.
const turnTimeout = 5 * time.Minute

// maxErrorMessage bounds stored error messages.
const maxErrorMessage = 800

// Registry returns the process-wide adapter table. Both adapters are
// stateless, so sharing instances is safe. Tests inject their own map
// through the router options instead of mutating this one.
func Registry() map[ID]Provider {
	return map[ID]Provider{
		IDClaude: &ClaudeCLI{},
		IDCodex:  &CodexCLI{},
	}
}

func boundMessage(msg string) string {
	if len(msg) > maxErrorMessage {
		return msg[:maxErrorMessage]
	}
	return msg
}
