package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"labmq/internal/rpc"
)

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recently executed commands from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(callCtx context.Context, client *rpc.Client) error {
				records, err := client.RecentCommands(callCtx, limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, records)
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No commands recorded")
					return nil
				}

				rows := make([][]string, 0, len(records))
				for _, record := range records {
					rows = append(rows, []string{
						record.OccurredAt.Local().Format("2006-01-02 15:04:05"),
						record.Queue,
						record.Command,
						record.Client,
						record.Outcome,
						fmt.Sprintf("%.1f ms", record.LatencyMS),
					})
				}
				headers := []string{"Time", "Queue", "Command", "Client", "Outcome", "Latency"}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, 5))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries to fetch (0 uses the server default)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	return cmd
}
