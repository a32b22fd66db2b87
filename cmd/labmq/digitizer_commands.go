package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"labmq/internal/digitizer"
	"labmq/internal/rpc"
)

func newDigitizerCommand(ctx *commandContext) *cobra.Command {
	digitizerCmd := &cobra.Command{
		Use:   "digitizer",
		Short: "Control the waveform digitizer",
	}

	digitizerCmd.AddCommand(newDigitizerActionCommand(ctx, "start", "Arm the board for a capture", "Capture armed",
		func(callCtx context.Context, client *rpc.Client) error {
			return client.StartCollect(callCtx)
		}))
	digitizerCmd.AddCommand(newDigitizerActionCommand(ctx, "stop", "Force a running capture to complete", "Capture stopped",
		func(callCtx context.Context, client *rpc.Client) error {
			return client.ForceStop(callCtx)
		}))
	digitizerCmd.AddCommand(newDigitizerActionCommand(ctx, "calibrate", "Run the board self-calibration cycle", "Calibration complete",
		func(callCtx context.Context, client *rpc.Client) error {
			return client.RunCalibration(callCtx)
		}))
	digitizerCmd.AddCommand(newDigitizerTriggerCommand(ctx))
	digitizerCmd.AddCommand(newDigitizerSamplesCommand(ctx))
	digitizerCmd.AddCommand(newDigitizerRateCommand(ctx))
	digitizerCmd.AddCommand(newDigitizerWaveformCommand(ctx))
	digitizerCmd.AddCommand(newDigitizerWaveformSumCommand(ctx))
	digitizerCmd.AddCommand(newDigitizerTimeSliceCommand(ctx))
	digitizerCmd.AddCommand(newDigitizerInfoCommand(ctx))

	return digitizerCmd
}

func newDigitizerActionCommand(ctx *commandContext, use, short, done string, invoke func(context.Context, *rpc.Client) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(callCtx context.Context, client *rpc.Client) error {
				if err := invoke(callCtx, client); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), done)
				return nil
			})
		},
	}
}

func newDigitizerTriggerCommand(ctx *commandContext) *cobra.Command {
	var trigger digitizer.Trigger

	cmd := &cobra.Command{
		Use:   "set-trigger",
		Short: "Configure the trigger source and threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(callCtx context.Context, client *rpc.Client) error {
				if err := client.SetTrigger(callCtx, trigger); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Trigger updated")
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&trigger.Channel, "channel", 0, "Trigger channel (0-3 internal, 4 external)")
	cmd.Flags().Float64Var(&trigger.Level, "level", 0, "Threshold in mV (internal channels)")
	cmd.Flags().IntVar(&trigger.Direction, "direction", 0, "Edge: 0 rising, 1 falling")
	cmd.Flags().Float64Var(&trigger.Delay, "delay", 0, "Trigger delay in ns")
	return cmd
}

func newDigitizerSamplesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set-samples <count>",
		Short: "Set how many samples each capture keeps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("parse sample count %q: %w", args[0], err)
			}
			return ctx.withSession(cmd, func(callCtx context.Context, client *rpc.Client) error {
				if err := client.SetSamples(callCtx, n); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Samples per capture: %d\n", n)
				return nil
			})
		},
	}
}

func newDigitizerRateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set-rate <ghz>",
		Short: "Set the sampling rate in GHz",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("parse rate %q: %w", args[0], err)
			}
			return ctx.withSession(cmd, func(callCtx context.Context, client *rpc.Client) error {
				if err := client.SetRate(callCtx, rate); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sampling rate: %g GHz\n", rate)
				return nil
			})
		},
	}
}

func newDigitizerWaveformCommand(ctx *commandContext) *cobra.Command {
	var (
		channel int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "waveform",
		Short: "Read the last captured waveform for one channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(callCtx context.Context, client *rpc.Client) error {
				samples, err := client.Waveform(callCtx, channel)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, samples)
				}
				lowest, highest, mean := waveformStats(samples)
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Channel: %d\n", channel)
				fmt.Fprintf(stdout, "Samples: %d\n", len(samples))
				fmt.Fprintf(stdout, "Min:     %.2f mV\n", lowest)
				fmt.Fprintf(stdout, "Max:     %.2f mV\n", highest)
				fmt.Fprintf(stdout, "Mean:    %.2f mV\n", mean)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&channel, "channel", 0, "Readout channel")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the raw sample array as JSON")
	return cmd
}

func newDigitizerWaveformSumCommand(ctx *commandContext) *cobra.Command {
	var (
		channel  int
		intStart int
		intStop  int
		pedStart int
		pedStop  int
	)

	cmd := &cobra.Command{
		Use:   "waveformsum",
		Short: "Integrate the last waveform over a sample window",
		Long: `Integrate one channel's last waveform over [--int-start, --int-stop),
subtracting the mean pedestal over [--ped-start, --ped-stop). Omitting
--int-stop integrates to the end of the capture; equal pedestal bounds
skip the subtraction. The result is an area in mV·ns.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(callCtx context.Context, client *rpc.Client) error {
				if !cmd.Flags().Changed("int-stop") {
					n, err := client.SampleCount(callCtx)
					if err != nil {
						return err
					}
					intStop = n
				}
				sum, err := client.WaveformSum(callCtx, channel, intStart, intStop, pedStart, pedStop)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%.3f mV·ns\n", sum)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&channel, "channel", 0, "Readout channel")
	cmd.Flags().IntVar(&intStart, "int-start", 0, "First sample of the integration window")
	cmd.Flags().IntVar(&intStop, "int-stop", 0, "Sample after the integration window (default: capture length)")
	cmd.Flags().IntVar(&pedStart, "ped-start", 0, "First sample of the pedestal window")
	cmd.Flags().IntVar(&pedStop, "ped-stop", 0, "Sample after the pedestal window")
	return cmd
}

func newDigitizerTimeSliceCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "timeslice",
		Short: "Show the sample timing axis in nanoseconds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(callCtx context.Context, client *rpc.Client) error {
				slice, err := client.TimeSlice(callCtx)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, slice)
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Samples: %d\n", len(slice))
				if len(slice) > 1 {
					fmt.Fprintf(stdout, "Span:    %.3f .. %.3f ns\n", slice[0], slice[len(slice)-1])
					fmt.Fprintf(stdout, "Step:    %.3f ns\n", slice[1]-slice[0])
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the raw timing array as JSON")
	return cmd
}

type digitizerInfo struct {
	Available bool    `json:"available"`
	Ready     bool    `json:"ready"`
	Samples   int     `json:"samples"`
	RateGHz   float64 `json:"rate_ghz"`
}

func newDigitizerInfoCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the board state and capture settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(callCtx context.Context, client *rpc.Client) error {
				var info digitizerInfo
				var err error
				if info.Available, err = client.DigitizerAvailable(callCtx); err != nil {
					return err
				}
				if info.Ready, err = client.DigitizerReady(callCtx); err != nil {
					return err
				}
				if info.Samples, err = client.SampleCount(callCtx); err != nil {
					return err
				}
				if info.RateGHz, err = client.SampleRate(callCtx); err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, info)
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)
				fmt.Fprintln(stdout, availabilityLine(info.Available, colorize))
				if info.Ready {
					fmt.Fprintln(stdout, renderStatusLine("State", statusOK, "ready", colorize))
				} else {
					fmt.Fprintln(stdout, renderStatusLine("State", statusWarn, "busy", colorize))
				}
				fmt.Fprintln(stdout, renderStatusLine("Samples", statusInfo, strconv.Itoa(info.Samples), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Rate", statusInfo, fmt.Sprintf("%g GHz", info.RateGHz), colorize))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of formatted output")
	return cmd
}

func waveformStats(samples []float64) (lowest, highest, mean float64) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	lowest, highest = samples[0], samples[0]
	sum := 0.0
	for _, v := range samples {
		if v < lowest {
			lowest = v
		}
		if v > highest {
			highest = v
		}
		sum += v
	}
	return lowest, highest, sum / float64(len(samples))
}
