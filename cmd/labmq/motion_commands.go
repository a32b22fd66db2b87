package main

import (
	"context"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"labmq/internal/motion"
	"labmq/internal/rpc"
)

func newMotionCommand(ctx *commandContext) *cobra.Command {
	motionCmd := &cobra.Command{
		Use:   "motion",
		Short: "Drive the motion stage",
	}

	motionCmd.AddCommand(newMotionMoveCommand(ctx))
	motionCmd.AddCommand(newMotionGCodeCommand(ctx))
	motionCmd.AddCommand(newMotionSpeedLimitCommand(ctx))
	motionCmd.AddCommand(newMotionAxisCommand(ctx, "home", "Home the selected axes",
		func(callCtx context.Context, client *rpc.Client, x, y, z bool) error {
			return client.SendHome(callCtx, x, y, z)
		}))
	motionCmd.AddCommand(newMotionAxisCommand(ctx, "enable-stepper", "Energize the selected stepper motors",
		func(callCtx context.Context, client *rpc.Client, x, y, z bool) error {
			return client.EnableStepper(callCtx, x, y, z)
		}))
	motionCmd.AddCommand(newMotionAxisCommand(ctx, "disable-stepper", "Release the selected stepper motors",
		func(callCtx context.Context, client *rpc.Client, x, y, z bool) error {
			return client.DisableStepper(callCtx, x, y, z)
		}))
	motionCmd.AddCommand(newMotionSettingsCommand(ctx))
	motionCmd.AddCommand(newMotionPositionCommand(ctx))

	return motionCmd
}

func newMotionMoveCommand(ctx *commandContext) *cobra.Command {
	x, y, z := math.NaN(), math.NaN(), math.NaN()

	cmd := &cobra.Command{
		Use:   "move-to",
		Short: "Move the stage to absolute coordinates",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("x") && !cmd.Flags().Changed("y") && !cmd.Flags().Changed("z") {
				return fmt.Errorf("specify at least one of --x, --y, --z")
			}
			return ctx.withSession(cmd, func(callCtx context.Context, client *rpc.Client) error {
				if err := client.MoveTo(callCtx, x, y, z); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Move accepted")
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&x, "x", math.NaN(), "Target X in mm (omit to hold the axis)")
	cmd.Flags().Float64Var(&y, "y", math.NaN(), "Target Y in mm")
	cmd.Flags().Float64Var(&z, "z", math.NaN(), "Target Z in mm")
	return cmd
}

func newMotionGCodeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "gcode <line>",
		Short: "Send one raw G-code line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(callCtx context.Context, client *rpc.Client) error {
				ack, err := client.RunGCode(callCtx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ack)
				return nil
			})
		},
	}
}

func newMotionSpeedLimitCommand(ctx *commandContext) *cobra.Command {
	x, y, z := math.NaN(), math.NaN(), math.NaN()

	cmd := &cobra.Command{
		Use:   "set-speed-limit",
		Short: "Cap per-axis feed rates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(callCtx context.Context, client *rpc.Client) error {
				if err := client.SetSpeedLimit(callCtx, x, y, z); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Speed limit updated")
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&x, "x", math.NaN(), "X limit in mm/s (omit to keep)")
	cmd.Flags().Float64Var(&y, "y", math.NaN(), "Y limit in mm/s")
	cmd.Flags().Float64Var(&z, "z", math.NaN(), "Z limit in mm/s")
	return cmd
}

// newMotionAxisCommand builds one of the axis-flag commands (home,
// enable-stepper, disable-stepper). No axis flag means every axis.
func newMotionAxisCommand(ctx *commandContext, use, short string, invoke func(context.Context, *rpc.Client, bool, bool, bool) error) *cobra.Command {
	var x, y, z bool

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !x && !y && !z {
				x, y, z = true, true, true
			}
			return ctx.withSession(cmd, func(callCtx context.Context, client *rpc.Client) error {
				if err := invoke(callCtx, client, x, y, z); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: x=%s y=%s z=%s\n", use, yesNo(x), yesNo(y), yesNo(z))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&x, "x", false, "Apply to the X axis")
	cmd.Flags().BoolVar(&y, "y", false, "Apply to the Y axis")
	cmd.Flags().BoolVar(&z, "z", false, "Apply to the Z axis")
	return cmd
}

func newMotionSettingsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show the stage configuration and state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(callCtx context.Context, client *rpc.Client) error {
				settings, err := client.StageSettings(callCtx)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, settings)
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)
				fmt.Fprintln(stdout, renderStatusLine("Device", statusInfo, settings.Device, colorize))
				fmt.Fprintln(stdout, availabilityLine(settings.Available, colorize))
				fmt.Fprintln(stdout, renderStatusLine("In motion", statusInfo, yesNo(settings.InMotion), colorize))
				rows := [][]string{
					{"Position", formatCoordinates(settings.Position)},
					{"Target", formatCoordinates(settings.Target)},
					{"Speed limit", formatCoordinates(settings.SpeedLimit)},
					{"Extents", formatCoordinates(settings.Extents)},
					{"Steppers", fmt.Sprintf("x=%s y=%s z=%s", yesNo(settings.Steppers.X), yesNo(settings.Steppers.Y), yesNo(settings.Steppers.Z))},
				}
				fmt.Fprintln(stdout, renderTable([]string{"Setting", "Value"}, rows))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of formatted output")
	return cmd
}

func newMotionPositionCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "position",
		Short: "Show the current and target coordinates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(callCtx context.Context, client *rpc.Client) error {
				report, err := client.StagePosition(callCtx)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, report)
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Current: %s\n", formatCoordinates(report.Current))
				fmt.Fprintf(stdout, "Target:  %s\n", formatCoordinates(report.Target))
				fmt.Fprintf(stdout, "Moving:  %s\n", yesNo(report.InMotion))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of formatted output")
	return cmd
}

func availabilityLine(available bool, colorize bool) string {
	if available {
		return renderStatusLine("Hardware", statusOK, "present", colorize)
	}
	return renderStatusLine("Hardware", statusWarn, "detached", colorize)
}

func formatCoordinates(c motion.Coordinates) string {
	return fmt.Sprintf("x=%.1f y=%.1f z=%.1f", c.X, c.Y, c.Z)
}
