package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/duet-cli/duet/internal/config"
	"github.com/duet-cli/duet/internal/provider"
	"github.com/duet-cli/duet/internal/state"
	"github.com/duet-cli/duet/internal/turn"
)

// switchPolicy controls whether failover asks for confirmation.
type switchPolicy string

const (
	policyAsk switchPolicy = "ask"
	policyYes switchPolicy = "yes"
	policyNo  switchPolicy = "no"
)

var (
	dimStyle    = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

// resolvePolicy prefers the explicit flag, then switch.confirmation
// from config. Unrecognized values mean ask.
func resolvePolicy(flag string, cfg *config.Config) switchPolicy {
	raw := flag
	if raw == "" {
		raw = cfg.Switch.Confirmation
	}
	switch raw {
	case "yes", "always", "true", "1":
		return policyYes
	case "no", "never", "false", "0":
		return policyNo
	default:
		return policyAsk
	}
}

// runTurn executes one prompt end to end and prints the outcome.
// Returns whether the turn succeeded; errors are fatal store failures.
func runTurn(cfg *config.Config, logger *slog.Logger, userPrompt, preferProvider, policyFlag, mode string) (bool, error) {
	turnCfg := cfg.WithProviderFirst(preferProvider)
	policy := resolvePolicy(policyFlag, turnCfg)

	driver := &turn.Driver{
		Store:         state.NewStore("."),
		Config:        turnCfg,
		Logger:        logger,
		Mode:          mode,
		ConfirmSwitch: confirmSwitchFunc(policy),
	}

	outcome, err := driver.RunTurn(context.Background(), userPrompt)
	if err != nil {
		return false, err
	}

	if outcome.AllInCooldown {
		fmt.Fprintln(os.Stderr, errorStyle.Render("✗ All providers are in cooldown.")+
			" Run "+dimStyle.Render("duet status")+" to see timers.")
		return false, nil
	}

	result := outcome.Result
	if result.Success {
		fmt.Printf("\n%s\n\n", dimStyle.Render("◆ "+string(outcome.Provider)))
		fmt.Print(renderMarkdown(result.Text))
		return true, nil
	}

	fmt.Fprintf(os.Stderr, "\n%s [%s] %s\n\n",
		errorStyle.Render("✗ "+string(outcome.Provider)+" error"),
		result.ErrorClass,
		result.ErrorMessage,
	)
	return false, nil
}

// confirmSwitchFunc builds the failover gate for the given policy.
// Ask mode degrades to denial when stdin is not a terminal.
func confirmSwitchFunc(policy switchPolicy) func(from, to provider.ID, failed provider.Result) bool {
	return func(from, to provider.ID, failed provider.Result) bool {
		reason := string(failed.ErrorClass)
		if reason == "" {
			reason = "ERROR"
		}

		switch policy {
		case policyYes:
			fmt.Fprintln(os.Stderr, noticeStyle.Render(
				fmt.Sprintf("⚡ %s unavailable (%s) — switching to %s.", from, reason, to)))
			return true
		case policyNo:
			fmt.Fprintln(os.Stderr, noticeStyle.Render(
				fmt.Sprintf("⚡ %s unavailable (%s) — switch blocked by policy.", from, reason)))
			return false
		}

		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, noticeStyle.Render(
				fmt.Sprintf("⚡ %s unavailable (%s) — cannot prompt in non-interactive mode.", from, reason)))
			return false
		}

		approved := false
		err := huh.NewConfirm().
			Title(fmt.Sprintf("⚡ %s unavailable (%s). Switch to %s and continue?", from, reason, to)).
			Value(&approved).
			Run()
		if err != nil {
			return false
		}
		return approved
	}
}

// renderMarkdown renders the assistant response for the terminal,
// falling back to the raw text when rendering is unavailable.
func renderMarkdown(text string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return text + "\n"
	}
	out, err := r.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}
