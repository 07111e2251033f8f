package main

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/duet-cli/duet/internal/config"
	"github.com/duet-cli/duet/internal/provider"
	"github.com/duet-cli/duet/internal/router"
	"github.com/duet-cli/duet/internal/state"
)

func launchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "launch [ARGS...]",
		Short: "Launch the selected provider's native CLI directly",
		Long: "Route to the best available provider, then exec its real binary\n" +
			"so native progress output and interaction stay unchanged. Used by\n" +
			"the installed wrapper shims.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			prefer, _ := cmd.Flags().GetString("prefer-provider")
			launchCfg := cfg.WithProviderFirst(prefer)

			store := state.NewStore(".")
			now := time.Now().UTC()
			st := store.LoadState(now)

			available := router.AvailableProviders(st, launchCfg, now)
			if len(available) == 0 {
				return fmt.Errorf("all providers are in cooldown; run `duet status` to see timers")
			}

			var (
				selected provider.ID
				binary   string
			)
			for _, candidate := range available {
				if bin := realBinaryForProvider(candidate); bin != "" {
					selected = candidate
					binary = bin
					break
				}
			}
			if binary == "" {
				return fmt.Errorf("could not locate a real claude/claudecode/codex binary in PATH")
			}

			if prefer != "" && string(selected) != prefer {
				fmt.Fprintf(os.Stderr, "duet: switched %s -> %s\n", prefer, selected)
			}

			argv := append([]string{binary}, args...)
			env := append(os.Environ(), provider.InnerCallEnv+"=1")
			return syscall.Exec(binary, argv, env)
		},
	}
	cmd.Flags().String("prefer-provider", "", "Temporarily prioritize this provider first (claude|codex)")
	return cmd
}
