package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/duet-cli/duet/internal/config"
	"github.com/duet-cli/duet/internal/provider"
	"github.com/duet-cli/duet/internal/router"
	"github.com/duet-cli/duet/internal/state"
)

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show provider state: sessions, cooldowns, turn count",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			showActive, _ := cmd.Flags().GetBool("active")

			store := state.NewStore(".")
			now := time.Now().UTC()
			st := store.LoadState(now)

			available := router.AvailableProviders(st, cfg, now)
			availNames := make([]string, 0, len(available))
			for _, id := range available {
				availNames = append(availNames, string(id))
			}

			lastProvider := "none"
			if st.LastProvider != "" {
				lastProvider = string(st.LastProvider)
			}
			availStr := "none"
			if len(availNames) > 0 {
				availStr = strings.Join(availNames, ", ")
			}

			fmt.Println()
			fmt.Printf("Last provider: %s\n", lastProvider)
			fmt.Printf("Available:     %s\n", availStr)
			fmt.Printf("Total turns:   %d\n", st.TurnCount)

			if showActive {
				fmt.Println()
				printActiveRun(store)
			}
			fmt.Println()

			fmt.Println(providerTable(st, cfg, now).Render())
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().Bool("active", false, "Show active in-flight turn metadata if present")
	return cmd
}

func providerTable(st *state.RepoState, cfg *config.Config, now time.Time) *table.Table {
	headerStyle := lipgloss.NewStyle().Bold(true)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("Provider", "Status", "Session ID", "Last Used", "Cooldown", "Cooldown Until", "Source")

	for _, name := range cfg.ProviderOrder {
		id, ok := provider.ParseID(name)
		if !ok {
			continue
		}
		ps := st.ProviderState(id)

		status := okStyle.Render("✓ ready")
		cooldown, until, source := "—", "—", "—"
		if ps.InCooldown(now) {
			status = errorStyle.Render("✗ cooldown")
			mins := int(ps.CooldownUntil.Sub(now).Minutes())
			if mins < 0 {
				mins = 0
			}
			cooldown = fmt.Sprintf("%d min", mins)
			until = fmt.Sprintf("%s / %s",
				ps.CooldownUntil.UTC().Format("2006-01-02 15:04 UTC"),
				ps.CooldownUntil.Local().Format("2006-01-02 15:04 MST"),
			)
			source = ps.CooldownSource
			if source == "" {
				source = "unknown"
			}
		}

		session := "—"
		if ps.SessionID != "" {
			session = truncateSession(ps.SessionID)
		}
		lastUsed := "—"
		if ps.LastUsed != nil {
			lastUsed = ps.LastUsed.UTC().Format("2006-01-02 15:04")
		}

		t.Row(name, status, session, lastUsed, cooldown, until, source)
	}
	return t
}

func truncateSession(id string) string {
	if len(id) <= 20 {
		return id
	}
	return id[:20] + "…"
}

func printActiveRun(store *state.Store) {
	run, ok := store.LoadActiveRun()
	if !ok {
		fmt.Println("Active turn: none")
		return
	}

	label := "running"
	if !processAlive(run.PID) {
		label = "stale (process not running)"
	}
	prov := "pending"
	if run.Provider != "" {
		prov = string(run.Provider)
	}

	fmt.Printf("Active turn: %s\n", label)
	fmt.Printf("PID:         %d\n", run.PID)
	fmt.Printf("Mode:        %s\n", run.Mode)
	fmt.Printf("Provider:    %s\n", prov)
	fmt.Printf("Started at:  %s\n", run.StartedAt.UTC().Format(time.RFC3339))
	fmt.Printf("Prompt:      %s\n", run.PromptExcerpt)
}

// processAlive probes the pid with signal 0.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
