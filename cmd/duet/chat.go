package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/duet-cli/duet/internal/config"
)

var promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)

// exitWords end the chat loop.
var exitWords = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
}

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive loop routed to the best available provider",
		Long: "Start an interactive loop. Each prompt is routed to the best\n" +
			"available provider; failover is automatic. Type 'exit' or press\n" +
			"Ctrl-D to quit.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			prefer, _ := cmd.Flags().GetString("prefer-provider")
			policy, _ := cmd.Flags().GetString("auto-switch")
			logger := newLogger(cmd)

			fmt.Println(dimStyle.Render("duet chat — 'exit' or Ctrl-D to quit"))

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Printf("\n%s ", promptStyle.Render("you>"))
				if !scanner.Scan() {
					fmt.Println("\n" + dimStyle.Render("Goodbye."))
					return nil
				}

				input := strings.TrimSpace(scanner.Text())
				if input == "" {
					continue
				}
				if exitWords[strings.ToLower(input)] {
					fmt.Println(dimStyle.Render("Goodbye."))
					return nil
				}

				if _, err := runTurn(cfg, logger, input, prefer, policy, "chat"); err != nil {
					// Store write failures are fatal even mid-chat.
					return err
				}
			}
		},
	}
	addTurnFlags(cmd)
	return cmd
}
