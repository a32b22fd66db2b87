package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var brokerFlag string
	var timeoutFlag time.Duration
	var waitFlag bool

	ctx := newCommandContext(&configFlag, &brokerFlag, &timeoutFlag, &waitFlag)

	rootCmd := &cobra.Command{
		Use:           "labmq",
		Short:         "Control shared lab hardware through the message broker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&brokerFlag, "broker", "", "Broker URL (overrides the configuration)")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 0, "Per-call deadline (overrides the configuration)")
	rootCmd.PersistentFlags().BoolVar(&waitFlag, "wait", false, "Queue for the hardware session when another client holds it")

	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newCallCommand(ctx))
	rootCmd.AddCommand(newMotionCommand(ctx))
	rootCmd.AddCommand(newDigitizerCommand(ctx))
	rootCmd.AddCommand(newGPIOCommand(ctx))
	rootCmd.AddCommand(newAuditCommand(ctx))
	rootCmd.AddCommand(newSelftestCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
