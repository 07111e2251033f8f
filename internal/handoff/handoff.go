// Package handoff maintains the rolling Markdown document that carries
// conversational continuity across a provider switch, and assembles the
// context-injected prompt a fallback provider receives.
package handoff

import (
	"fmt"
	"strings"
	"time"

	"github.com/duet-cli/duet/internal/config"
	"github.com/duet-cli/duet/internal/provider"
)

// The five required level-2 sections, in order.
const (
	sectionGoal     = "Current Goal"
	sectionPlan     = "Current Plan"
	sectionChanged  = "What Changed This Turn"
	sectionBlockers = "Open Questions / Blockers"
	sectionNext     = "Next Concrete Steps"
)

const (
	maxUserExcerptChars      = 600
	maxAssistantExcerptChars = 2000
)

const sectionSeparator = "\n\n---\n\n"

// BuildProviderPrompt returns the prompt to send to a provider. When not
// resuming, the user prompt passes through unchanged: the preferred
// provider's own session already holds the history. When resuming on a
// fallback provider, the handoff content and a live repo snapshot are
// prepended so the new provider picks up where the previous one left off.
func BuildProviderPrompt(userPrompt string, cfg *config.Config, isResuming bool, handoffContent string) string {
	if !isResuming {
		return userPrompt
	}

	var sections []string
	if handoffContent != "" {
		sections = append(sections, "## Context Handoff (from previous session)\n\n"+handoffContent)
	}
	if snapshot := RepoSnapshot(cfg); snapshot != "" {
		sections = append(sections, snapshot)
	}
	sections = append(sections, "## Current Task\n\n"+userPrompt)

	return strings.Join(sections, sectionSeparator)
}

// UpdateHandoff produces the next handoff document after a successful
// turn. Goal, Plan, and Blockers carry forward verbatim from the
// previous handoff; the latest exchange replaces What Changed This Turn.
// The result is bounded by limits.max_handoff_lines.
func UpdateHandoff(userPrompt, assistantText string, prov provider.ID, cfg *config.Config, previousHandoff string, now time.Time) string {
	prevGoal := extractSection(previousHandoff, sectionGoal)
	prevPlan := extractSection(previousHandoff, sectionPlan)
	prevBlockers := extractSection(previousHandoff, sectionBlockers)

	if prevGoal == "" {
		prevGoal = "(not yet established — infer from the exchange below)"
	}
	if prevPlan == "" {
		prevPlan = "(not yet established — infer from the exchange below)"
	}
	if prevBlockers == "" {
		prevBlockers = "(none noted yet)"
	}

	stamp := now.UTC().Format("2006-01-02 15:04 UTC")

	var b strings.Builder
	fmt.Fprintf(&b, "# Duet Handoff\n\n*Last updated: %s — Provider: %s*\n\n", stamp, prov)
	fmt.Fprintf(&b, "## %s\n\n%s\n\n", sectionGoal, prevGoal)
	fmt.Fprintf(&b, "## %s\n\n%s\n\n", sectionPlan, prevPlan)
	fmt.Fprintf(&b, "## %s\n\n**User asked:**\n%s\n\n**%s responded:**\n%s\n\n",
		sectionChanged,
		truncateChars(userPrompt, maxUserExcerptChars),
		prov,
		truncateChars(assistantText, maxAssistantExcerptChars),
	)
	fmt.Fprintf(&b, "## %s\n\n%s\n\n", sectionBlockers, prevBlockers)
	fmt.Fprintf(&b, "## %s\n\n(Derive from the assistant response above and update this section.)\n", sectionNext)

	return enforceLineLimit(b.String(), cfg.Limits.MaxHandoffLines)
}

// extractSection returns the body of a level-2 Markdown section, or ""
// when absent.
func extractSection(text, name string) string {
	var (
		inSection bool
		body      []string
	)
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "## "+name) {
			inSection = true
			continue
		}
		if inSection {
			if strings.HasPrefix(line, "## ") {
				break
			}
			body = append(body, line)
		}
	}
	return strings.TrimSpace(strings.Join(body, "\n"))
}

// truncateChars bounds text to maxChars, noting how much was dropped.
func truncateChars(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	dropped := len(text) - maxChars
	return text[:maxChars] + fmt.Sprintf("\n…[%d chars truncated]", dropped)
}

// enforceLineLimit truncates the middle of an over-long document,
// keeping the top third and the bottom two-thirds so the goal header
// and the next-steps footer both survive. Compliant input is returned
// unchanged, so applying the limit twice is the identity.
func enforceLineLimit(text string, maxLines int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= maxLines {
		return text
	}

	keepTop := maxLines / 3
	keepBottom := maxLines - keepTop - 3
	dropped := len(lines) - keepTop - keepBottom

	trimmed := make([]string, 0, maxLines)
	trimmed = append(trimmed, lines[:keepTop]...)
	trimmed = append(trimmed,
		"",
		fmt.Sprintf("[… %d lines omitted to stay within the %d-line limit …]", dropped, maxLines),
		"",
	)
	trimmed = append(trimmed, lines[len(lines)-keepBottom:]...)
	return strings.Join(trimmed, "\n")
}
