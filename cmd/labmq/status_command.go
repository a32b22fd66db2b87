package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"labmq/internal/protocol"
	"labmq/internal/rpc"
)

type statusPayload struct {
	Server protocol.ServerInfo      `json:"server"`
	Queues []protocol.QueueCommands `json:"queues"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server, session, and command-table status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(callCtx context.Context, client *rpc.Client) error {
				info, err := client.ServerInfo(callCtx)
				if err != nil {
					return fmt.Errorf("read server info: %w", err)
				}
				queues, err := client.ListCommands(callCtx)
				if err != nil {
					return fmt.Errorf("list commands: %w", err)
				}

				if jsonOut {
					return writeJSON(cmd, statusPayload{Server: info, Queues: queues})
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				for _, line := range renderSectionHeader("Server", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("Version", statusInfo, info.Version, colorize))
				fmt.Fprintln(stdout, renderStatusLine("PID", statusInfo, strconv.Itoa(info.PID), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Uptime", statusInfo, formatUptime(info.UptimeSeconds), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Subsystems", statusInfo, strings.Join(info.Subsystems, ", "), colorize))
				fmt.Fprintln(stdout, sessionLine(info, client.Identity(), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Queued clients", statusInfo, strconv.Itoa(info.QueuedClients), colorize))
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Command Tables", colorize) {
					fmt.Fprintln(stdout, line)
				}
				rows := make([][]string, 0, len(queues))
				for _, q := range queues {
					rows = append(rows, []string{q.Queue, strings.Join(q.Commands, ", ")})
				}
				fmt.Fprintln(stdout, renderTable([]string{"Queue", "Commands"}, rows))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of formatted output")
	return cmd
}

// sessionLine reports who holds the hardware session. The CLI itself holds it
// while status runs, so its own identity renders as "this client".
func sessionLine(info protocol.ServerInfo, self string, colorize bool) string {
	switch info.ActiveClient {
	case "":
		return renderStatusLine("Session", statusInfo, "free", colorize)
	case self:
		return renderStatusLine("Session", statusOK, "held by this client", colorize)
	default:
		return renderStatusLine("Session", statusWarn, "held by "+info.ActiveClient, colorize)
	}
}
