package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"labmq/internal/rpc"
)

// selftestChecks exercises one queue of each flavor: telemetry, server
// commands, and the reply plumbing shared by every subsystem.
func newSelftestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Round-trip the daemon's built-in test handlers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(callCtx context.Context, client *rpc.Client) error {
				checks := []struct {
					name string
					run  func() (string, error)
				}{
					{"Ping", func() (string, error) {
						if err := client.Ping(callCtx); err != nil {
							return "", err
						}
						return "pong", nil
					}},
					{"Add", func() (string, error) {
						sum, err := client.Add(callCtx, 2, 3)
						if err != nil {
							return "", err
						}
						if sum != 5 {
							return "", fmt.Errorf("2 + 3 returned %v", sum)
						}
						return "2 + 3 = 5", nil
					}},
					{"Fibonacci", func() (string, error) {
						fib, err := client.Fib(callCtx, 10)
						if err != nil {
							return "", err
						}
						if fib != 55 {
							return "", fmt.Errorf("fib(10) returned %d", fib)
						}
						return "fib(10) = 55", nil
					}},
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)
				for _, line := range renderSectionHeader("Self-test", colorize) {
					fmt.Fprintln(stdout, line)
				}

				failed := 0
				for _, check := range checks {
					detail, err := check.run()
					if err != nil {
						failed++
						fmt.Fprintln(stdout, renderStatusLine(check.name, statusError, err.Error(), colorize))
						continue
					}
					fmt.Fprintln(stdout, renderStatusLine(check.name, statusOK, detail, colorize))
				}
				if failed > 0 {
					return fmt.Errorf("%d self-test check(s) failed", failed)
				}
				return nil
			})
		},
	}
}
