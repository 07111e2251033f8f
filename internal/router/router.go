// Package router selects providers, retries transient failures with
// exponential backoff, applies cooldowns, and fails over with injected
// context. It performs no persistence: state mutations are applied to
// the caller's RepoState and written back by the turn driver.
package router

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/duet-cli/duet/internal/config"
	"github.com/duet-cli/duet/internal/handoff"
	"github.com/duet-cli/duet/internal/provider"
	"github.com/duet-cli/duet/internal/state"
)

// nopHandler discards all log records. Enabled returns false so slog
// skips formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// ConfirmSwitchFunc is asked before the first call on a non-first
// provider. Returning false keeps the previous provider's failure as
// the turn outcome.
type ConfirmSwitchFunc func(from, to provider.ID, lastFailed provider.Result) bool

// Options carries the injectable collaborators of one routing call.
// Zero-value fields get working defaults.
type Options struct {
	// Handoff is the current handoff document, injected into the prompt
	// when falling back to a provider without session context.
	Handoff string

	// ConfirmSwitch gates failover. Nil means switching is approved.
	ConfirmSwitch ConfirmSwitchFunc

	// OnProviderStart is an observability hook called before each
	// provider is tried. Panics in the hook never affect routing.
	OnProviderStart func(provider.ID)

	// Registry overrides the process-wide adapter table.
	Registry map[provider.ID]provider.Provider

	// BuildFallbackPrompt assembles the context-injected prompt for a
	// fallback provider. Defaults to handoff.BuildProviderPrompt with
	// resume semantics.
	BuildFallbackPrompt func(userPrompt string, cfg *config.Config, handoffContent string) string

	Logger *slog.Logger

	// Now and Sleep are injectable for deterministic tests.
	Now   func() time.Time
	Sleep func(time.Duration)
}

func (o *Options) defaults() {
	if o.Registry == nil {
		o.Registry = provider.Registry()
	}
	if o.BuildFallbackPrompt == nil {
		o.BuildFallbackPrompt = func(userPrompt string, cfg *config.Config, handoffContent string) string {
			return handoff.BuildProviderPrompt(userPrompt, cfg, true, handoffContent)
		}
	}
	if o.Logger == nil {
		o.Logger = slog.New(nopHandler{})
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
}

// AvailableProviders returns the configured order minus providers in
// cooldown at now. Unknown configured names are ignored.
func AvailableProviders(st *state.RepoState, cfg *config.Config, now time.Time) []provider.ID {
	var available []provider.ID
	for _, name := range cfg.ProviderOrder {
		id, ok := provider.ParseID(name)
		if !ok {
			continue
		}
		if st.ProviderState(id).InCooldown(now) {
			continue
		}
		available = append(available, id)
	}
	return available
}

// RunWithRetry executes one user prompt against the best available
// provider, handling retries and failover. It returns nil result and
// empty id only when every provider is in cooldown; otherwise the last
// observed result and the provider that produced it. State is mutated
// in place and not persisted here.
func RunWithRetry(ctx context.Context, userPrompt string, st *state.RepoState, cfg *config.Config, opts Options) (*provider.Result, provider.ID) {
	opts.defaults()

	maxRetries := cfg.Retry.MaxRetries
	backoffBase := cfg.Retry.BackoffBase
	backoffMax := cfg.Retry.BackoffMax

	available := AvailableProviders(st, cfg, opts.Now())
	if len(available) == 0 {
		return nil, ""
	}

	var (
		lastResult   *provider.Result
		lastProvider provider.ID
	)

	for idx, id := range available {
		p, ok := opts.Registry[id]
		if !ok {
			continue
		}

		notifyProviderStart(opts, id)

		// The first provider resumes its own session; a fallback starts
		// fresh and relies on injected handoff context instead.
		prompt := userPrompt
		sessionID := st.ProviderState(id).SessionID
		if idx > 0 {
			prompt = opts.BuildFallbackPrompt(userPrompt, cfg, opts.Handoff)
			sessionID = ""

			from := available[idx-1]
			if opts.ConfirmSwitch != nil && lastResult != nil {
				if !opts.ConfirmSwitch(from, id, *lastResult) {
					opts.Logger.Info("provider switch denied",
						"from", from,
						"to", id,
					)
					return lastResult, from
				}
			}
			opts.Logger.Info("falling back to next provider",
				"from", from,
				"to", id,
			)
		}

		lastProvider = id
		ps := st.ProviderState(id)

		for attempt := 0; attempt <= maxRetries; attempt++ {
			result := p.Run(ctx, prompt, sessionID, cfg)
			lastResult = &result

			if result.Success {
				if result.SessionID != "" {
					ps.SessionID = result.SessionID
				}
				now := opts.Now().UTC()
				ps.LastUsed = &now
				ps.ConsecutiveErrors = 0
				ps.ClearCooldown()
				st.LastProvider = id
				st.TurnCount++
				return &result, id
			}

			ps.ConsecutiveErrors++

			effective := result.ErrorClass
			if effective == provider.OtherError && looksLikeLimitExhaustion(result.ErrorMessage) {
				// Provider parsing missed a limit phrase; still trigger
				// quota cooldown and failover.
				effective = provider.QuotaExhausted
			}

			switch effective {
			case provider.QuotaExhausted:
				now := opts.Now().UTC()
				applyCooldown(ps, quotaCooldown(result.ErrorMessage, now, cfg.Retry.CooldownMinutes), now)
				opts.Logger.Warn("quota exhausted, provider entering cooldown",
					"provider", id,
					"cooldown_until", ps.CooldownUntil,
					"cooldown_source", ps.CooldownSource,
				)

			case provider.TransientRateLimit:
				if attempt < maxRetries {
					wait := backoffWait(backoffBase, attempt, backoffMax)
					opts.Logger.Debug("transient rate limit, retrying",
						"provider", id,
						"attempt", attempt,
						"wait", wait,
					)
					if wait > 0 {
						opts.Sleep(wait)
					}
					continue
				}
				now := opts.Now().UTC()
				applyCooldown(ps, transientCooldown(now, cfg.Retry.TransientCooldownMinutes, result.ErrorMessage), now)
				opts.Logger.Warn("transient retries exhausted, provider entering cooldown",
					"provider", id,
					"cooldown_until", ps.CooldownUntil,
				)

			default:
				// AuthRequired and OtherError surface immediately.
				return &result, id
			}

			break
		}
	}

	return lastResult, lastProvider
}

// limitTextPatterns are defensive fallbacks: an OtherError carrying any
// of these is treated as quota exhaustion before cooldown application.
var limitTextPatterns = []string{
	"usage limit",
	"quota",
	"hit your limit",
	"limit reached",
	"billing period",
	"resets",
	"claude.ai/settings/limits",
}

func looksLikeLimitExhaustion(message string) bool {
	if message == "" {
		return false
	}
	lower := strings.ToLower(message)
	for _, p := range limitTextPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func applyCooldown(ps *state.ProviderState, d cooldownDecision, nowUTC time.Time) {
	ps.ApplyCooldown(d.until, nowUTC, d.source, d.reason, d.messageExcerpt)
}

// backoffWait computes min(base**attempt, max) seconds, clamped to >= 0.
func backoffWait(base float64, attempt int, maxSeconds float64) time.Duration {
	wait := math.Pow(base, float64(attempt))
	if wait > maxSeconds {
		wait = maxSeconds
	}
	if wait < 0 || math.IsNaN(wait) {
		wait = 0
	}
	return time.Duration(wait * float64(time.Second))
}

func notifyProviderStart(opts Options, id provider.ID) {
	if opts.OnProviderStart == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			opts.Logger.Warn("provider start hook panicked", "panic", r)
		}
	}()
	opts.OnProviderStart(id)
}
