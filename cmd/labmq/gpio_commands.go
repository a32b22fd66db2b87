package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"labmq/internal/rpc"
)

func newGPIOCommand(ctx *commandContext) *cobra.Command {
	gpioCmd := &cobra.Command{
		Use:   "gpio",
		Short: "Drive the trigger pin",
	}

	gpioCmd.AddCommand(newGPIOPulseCommand(ctx))
	gpioCmd.AddCommand(newGPIOWriteCommand(ctx))
	gpioCmd.AddCommand(newGPIOReadCommand(ctx))

	return gpioCmd
}

func newGPIOPulseCommand(ctx *commandContext) *cobra.Command {
	var (
		count int
		wait  int
	)

	cmd := &cobra.Command{
		Use:   "pulse",
		Short: "Emit a train of trigger pulses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(callCtx context.Context, client *rpc.Client) error {
				if err := client.Pulse(callCtx, count, wait); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sent %d pulse(s)\n", count)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&count, "n", 1, "Number of pulses")
	cmd.Flags().IntVar(&wait, "wait-us", 100, "Spacing between pulses in microseconds")
	return cmd
}

func newGPIOWriteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "write <on|off>",
		Short: "Hold the pin at a level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLevel(args[0])
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, func(callCtx context.Context, client *rpc.Client) error {
				if err := client.SlowWrite(callCtx, level); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pin driven %s\n", levelName(level))
				return nil
			})
		},
	}
}

func newGPIOReadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "read",
		Short: "Sample the pin level",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(callCtx context.Context, client *rpc.Client) error {
				level, err := client.SlowRead(callCtx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), levelName(level))
				return nil
			})
		},
	}
}

func parseLevel(arg string) (bool, error) {
	switch arg {
	case "on", "high", "1":
		return true, nil
	case "off", "low", "0":
		return false, nil
	default:
		return false, fmt.Errorf("unknown level %q (use on or off)", arg)
	}
}

func levelName(level bool) string {
	if level {
		return "high"
	}
	return "low"
}
