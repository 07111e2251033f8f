package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/duet-cli/duet/internal/config"
)

var errTurnFailed = errors.New("turn failed")

func askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask PROMPT...",
		Short: "Send a single prompt to the best available provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			prefer, _ := cmd.Flags().GetString("prefer-provider")
			policy, _ := cmd.Flags().GetString("auto-switch")

			prompt := strings.TrimSpace(strings.Join(args, " "))
			ok, err := runTurn(cfg, newLogger(cmd), prompt, prefer, policy, "ask")
			if err != nil {
				return err
			}
			if !ok {
				return errTurnFailed
			}
			return nil
		},
	}
	addTurnFlags(cmd)
	return cmd
}

func addTurnFlags(cmd *cobra.Command) {
	cmd.Flags().String("prefer-provider", "", "Temporarily prioritize this provider first (claude|codex)")
	cmd.Flags().String("auto-switch", "", "Fallback confirmation policy: ask | yes | no")
}
