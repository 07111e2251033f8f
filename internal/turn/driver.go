// Package turn wires the state store, router, and handoff builder into
// a single per-turn entry point. The driver owns persistence: state is
// written after the router returns and before the transcript append, so
// a crash between the two never leaves a transcript entry referring to
// unpersisted state.
package turn

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/duet-cli/duet/internal/config"
	"github.com/duet-cli/duet/internal/handoff"
	"github.com/duet-cli/duet/internal/provider"
	"github.com/duet-cli/duet/internal/router"
	"github.com/duet-cli/duet/internal/state"
)

// maxPromptExcerpt bounds the prompt excerpt in the active-run marker.
const maxPromptExcerpt = 160

// SwitchMeta records the failover decision of one turn.
type SwitchMeta struct {
	From     provider.ID
	To       provider.ID
	Decision string // "approved", "denied", or "" when no switch was offered
}

// Outcome is the observable result of one turn.
type Outcome struct {
	// Result is nil only when every provider was in cooldown.
	Result   *provider.Result
	Provider provider.ID
	Switch   SwitchMeta

	// AllInCooldown marks the distinct no-provider-available exit.
	AllInCooldown bool
}

// Driver executes turns for one repository. Zero-value optional fields
// get working defaults.
type Driver struct {
	Store  *state.Store
	Config *config.Config
	Logger *slog.Logger

	// Mode labels the active-run marker ("ask", "chat", ...).
	Mode string

	// Registry overrides the process-wide adapter table (tests).
	Registry map[provider.ID]provider.Provider

	// ConfirmSwitch gates failover; nil approves implicitly. The driver
	// records switch metadata either way.
	ConfirmSwitch router.ConfirmSwitchFunc

	// OnProviderStart is an extra observability hook; the driver already
	// keeps the active-run marker's provider current.
	OnProviderStart func(provider.ID)

	// BuildFallbackPrompt overrides fallback prompt assembly (tests).
	BuildFallbackPrompt func(string, *config.Config, string) string

	Now   func() time.Time
	Sleep func(time.Duration)
}

func (d *Driver) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Driver) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// RunTurn delivers one user prompt end to end: route, persist state,
// refresh the handoff, and append the transcript record. Errors are
// state-store write failures only; provider failures arrive as data in
// the Outcome.
func (d *Driver) RunTurn(ctx context.Context, userPrompt string) (*Outcome, error) {
	now := d.now()
	st := d.Store.LoadState(now)
	handoffContent := d.Store.LoadHandoff()

	active := state.ActiveRun{
		PID:           os.Getpid(),
		Mode:          d.Mode,
		StartedAt:     now.UTC(),
		PromptExcerpt: Excerpt(userPrompt, maxPromptExcerpt),
	}
	if err := d.Store.SaveActiveRun(active); err != nil {
		return nil, err
	}
	defer func() {
		if err := d.Store.ClearActiveRun(); err != nil {
			d.logger().Warn("failed to clear active-run marker", "error", err)
		}
	}()

	var meta SwitchMeta
	confirm := func(from, to provider.ID, failed provider.Result) bool {
		meta.From = from
		meta.To = to
		approved := true
		if d.ConfirmSwitch != nil {
			approved = d.ConfirmSwitch(from, to, failed)
		}
		if approved {
			meta.Decision = "approved"
		} else {
			meta.Decision = "denied"
		}
		return approved
	}

	onStart := func(id provider.ID) {
		active.Provider = id
		if err := d.Store.SaveActiveRun(active); err != nil {
			d.logger().Warn("failed to update active-run marker", "error", err)
		}
		if d.OnProviderStart != nil {
			d.OnProviderStart(id)
		}
	}

	result, used := router.RunWithRetry(ctx, userPrompt, st, d.Config, router.Options{
		Handoff:             handoffContent,
		ConfirmSwitch:       confirm,
		OnProviderStart:     onStart,
		Registry:            d.Registry,
		BuildFallbackPrompt: d.BuildFallbackPrompt,
		Logger:              d.Logger,
		Now:                 d.Now,
		Sleep:               d.Sleep,
	})

	if err := d.Store.SaveState(st, d.now()); err != nil {
		return nil, err
	}

	if result == nil {
		// All providers in cooldown. No transcript record is appended
		// for this exit: the transcript logs provider invocations, and
		// none happened.
		return &Outcome{AllInCooldown: true, Switch: meta}, nil
	}

	outcome := &Outcome{Result: result, Provider: used, Switch: meta}

	if result.Success {
		newHandoff := handoff.UpdateHandoff(userPrompt, result.Text, used, d.Config, handoffContent, d.now())
		if err := d.Store.SaveHandoff(newHandoff); err != nil {
			return nil, err
		}

		ps := st.ProviderState(used)
		rec := state.TranscriptRecord{
			Timestamp:            d.now().UTC(),
			Provider:             used,
			UserPrompt:           userPrompt,
			AssistantText:        result.Text,
			SessionID:            ps.SessionID,
			SwitchFrom:           string(meta.From),
			SwitchTo:             string(meta.To),
			SwitchPromptDecision: meta.Decision,
		}
		if err := d.Store.AppendTranscript(rec); err != nil {
			return nil, err
		}
		return outcome, nil
	}

	rec := state.TranscriptRecord{
		Timestamp:            d.now().UTC(),
		Provider:             used,
		UserPrompt:           userPrompt,
		Error:                FormatError(result),
		SwitchFrom:           string(meta.From),
		SwitchTo:             string(meta.To),
		SwitchPromptDecision: meta.Decision,
	}
	if used != "" {
		ps := st.ProviderState(used)
		rec.SessionID = result.SessionID
		if rec.SessionID == "" {
			rec.SessionID = ps.SessionID
		}
		rec.CooldownUntil = ps.CooldownUntil
		rec.CooldownSource = ps.CooldownSource
		rec.CooldownReason = ps.CooldownReason
	}
	if err := d.Store.AppendTranscript(rec); err != nil {
		return nil, err
	}
	return outcome, nil
}

// FormatError renders the observable "<ERROR_CLASS>: <message>" form.
func FormatError(r *provider.Result) string {
	if r.ErrorClass == "" {
		return r.ErrorMessage
	}
	return string(r.ErrorClass) + ": " + r.ErrorMessage
}

// Excerpt whitespace-normalizes text and bounds it to maxLen characters
// with an ellipsis suffix.
func Excerpt(text string, maxLen int) string {
	normalized := strings.Join(strings.Fields(text), " ")
	if len(normalized) <= maxLen {
		return normalized
	}
	return normalized[:maxLen] + "..."
}
