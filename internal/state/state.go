// Package state owns the durable per-repo records under .duet/:
// routing state, the rolling handoff document, the append-only
// transcript, and the transient active-run marker.
package state

import (
	"time"

	"github.com/duet-cli/duet/internal/provider"
)

// ProviderState is the per-provider bookkeeping tracked across turns.
// The five cooldown fields are set and cleared together; MessageExcerpt
// alone may stay empty while a cooldown is active.
type ProviderState struct {
	// SessionID is the session/thread id from the last successful turn.
	// Only a successful turn overwrites it; failures never clear it.
	SessionID string `json:"session_id,omitempty"`

	LastUsed *time.Time `json:"last_used,omitempty"`

	CooldownUntil          *time.Time `json:"cooldown_until,omitempty"`
	CooldownStartedAt      *time.Time `json:"cooldown_started_at,omitempty"`
	CooldownSource         string     `json:"cooldown_source,omitempty"`
	CooldownReason         string     `json:"cooldown_reason,omitempty"`
	CooldownMessageExcerpt string     `json:"cooldown_message_excerpt,omitempty"`

	// ConsecutiveErrors is reset to zero by a successful turn.
	ConsecutiveErrors int `json:"consecutive_errors"`
}

// InCooldown reports whether the provider must not be selected at now.
func (ps *ProviderState) InCooldown(now time.Time) bool {
	return ps.CooldownUntil != nil && ps.CooldownUntil.After(now)
}

// ApplyCooldown sets all cooldown fields.
func (ps *ProviderState) ApplyCooldown(until, startedAt time.Time, source, reason, excerpt string) {
	ps.CooldownUntil = &until
	ps.CooldownStartedAt = &startedAt
	ps.CooldownSource = source
	ps.CooldownReason = reason
	ps.CooldownMessageExcerpt = excerpt
}

// ClearCooldown nulls all cooldown fields.
func (ps *ProviderState) ClearCooldown() {
	ps.CooldownUntil = nil
	ps.CooldownStartedAt = nil
	ps.CooldownSource = ""
	ps.CooldownReason = ""
	ps.CooldownMessageExcerpt = ""
}

// RepoState is the root record serialized to .duet/state.json, one per
// repository. It is mutated only by the router and persisted only by
// the turn driver.
type RepoState struct {
	LastProvider provider.ID   `json:"last_provider,omitempty"`
	Claude       ProviderState `json:"claude"`
	Codex        ProviderState `json:"codex"`

	// TurnCount is monotonically non-decreasing.
	TurnCount int       `json:"turn_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRepoState returns a fresh default state created at now.
func NewRepoState(now time.Time) *RepoState {
	now = now.UTC()
	return &RepoState{CreatedAt: now, UpdatedAt: now}
}

// ProviderState returns a mutable view of the named provider's state.
// Unknown ids map to the claude slot so callers never receive nil; the
// router only passes registry-validated ids.
func (s *RepoState) ProviderState(id provider.ID) *ProviderState {
	if id == provider.IDCodex {
		return &s.Codex
	}
	return &s.Claude
}

// TranscriptRecord is one append-only transcript line, written for every
// turn that invoked a provider, success or failure.
type TranscriptRecord struct {
	Timestamp     time.Time   `json:"ts"`
	Provider      provider.ID `json:"provider,omitempty"`
	UserPrompt    string      `json:"user_prompt"`
	AssistantText string      `json:"assistant_text,omitempty"`
	SessionID     string      `json:"session_id,omitempty"`

	// Error is "<ERROR_CLASS>: <message>" on failure, empty on success.
	Error string `json:"error,omitempty"`

	CooldownUntil  *time.Time `json:"cooldown_until,omitempty"`
	CooldownSource string     `json:"cooldown_source,omitempty"`
	CooldownReason string     `json:"cooldown_reason,omitempty"`

	SwitchFrom string `json:"switch_from,omitempty"`
	SwitchTo   string `json:"switch_to,omitempty"`

	// SwitchPromptDecision is "approved", "denied", or empty when no
	// switch was offered.
	SwitchPromptDecision string `json:"switch_prompt_decision,omitempty"`
}

// ActiveRun is the transient marker describing the in-flight turn.
type ActiveRun struct {
	PID       int         `json:"pid"`
	Mode      string      `json:"mode"`
	StartedAt time.Time   `json:"started_at"`
	Provider  provider.ID `json:"provider,omitempty"`

	// PromptExcerpt is a bounded, whitespace-normalized prefix of the
	// user prompt.
	PromptExcerpt string `json:"prompt_excerpt"`
}
