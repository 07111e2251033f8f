package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/duet-cli/duet/internal/state"
)

func resetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all .duet/ state for the current repository",
		Long: "Delete the per-repo .duet/ directory. This clears provider\n" +
			"sessions, the handoff document, and the transcript log.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			yes, _ := cmd.Flags().GetBool("yes")

			store := state.NewStore(".")
			if !store.Exists() {
				fmt.Println(dimStyle.Render("Nothing to reset — .duet/ does not exist."))
				return nil
			}

			if !yes {
				confirmed := false
				err := huh.NewConfirm().
					Title("Delete all .duet/ state (sessions, handoff, transcript)?").
					Value(&confirmed).
					Run()
				if err != nil || !confirmed {
					fmt.Println(dimStyle.Render("Aborted."))
					return nil
				}
			}

			if err := store.Wipe(); err != nil {
				return err
			}
			fmt.Println(okStyle.Render("✓") + " Cleared .duet/ for this repository.")
			return nil
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")
	return cmd
}
