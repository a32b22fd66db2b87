package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"labmq/internal/protocol"
	"labmq/internal/rpc"
)

func newCallCommand(ctx *commandContext) *cobra.Command {
	var argsJSON string
	var dataPlane bool

	cmd := &cobra.Command{
		Use:   "call <subsystem> <command>",
		Short: "Issue a raw command to a subsystem queue",
		Long: `Call publishes one request on a subsystem's commands queue (or, with
--data, its data queue) and prints the JSON response. Arguments pass through
exactly as the handler expects them; consult "labmq status" for the command
tables.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			payload, err := parseArgsFlag(argsJSON)
			if err != nil {
				return err
			}
			exchange, routingKey, err := resolveRoute(cmdArgs[0], dataPlane)
			if err != nil {
				return err
			}
			command := cmdArgs[1]

			return ctx.withSession(cmd, func(callCtx context.Context, client *rpc.Client) error {
				raw, err := client.Call(callCtx, exchange, routingKey, command, payload)
				if err != nil {
					return err
				}
				return writeJSON(cmd, json.RawMessage(raw))
			})
		},
	}

	cmd.Flags().StringVar(&argsJSON, "args", "", "Command arguments as a JSON value")
	cmd.Flags().BoolVar(&dataPlane, "data", false, "Send on the data exchange instead of commands")
	return cmd
}

// parseArgsFlag turns the --args payload into a request args value. Empty
// means no args.
func parseArgsFlag(value string) (any, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	var payload any
	if err := json.Unmarshal([]byte(value), &payload); err != nil {
		return nil, fmt.Errorf("parse --args: %w", err)
	}
	return payload, nil
}

// resolveRoute maps a subsystem name onto its exchange and queue. The server
// built-ins live on fixed queue names instead of the derived pair.
func resolveRoute(subsystem string, dataPlane bool) (exchange, routingKey string, err error) {
	subsystem = strings.ToLower(strings.TrimSpace(subsystem))
	known := []string{
		protocol.SubsystemMotion,
		protocol.SubsystemDigitizer,
		protocol.SubsystemGPIO,
		"server",
	}

	if subsystem == "server" {
		if dataPlane {
			return protocol.ExchangeData, protocol.TelemetryQueue, nil
		}
		return protocol.ExchangeCommands, protocol.ServerQueue, nil
	}
	for _, name := range known {
		if subsystem == name {
			if dataPlane {
				return protocol.ExchangeData, protocol.DataQueue(subsystem), nil
			}
			return protocol.ExchangeCommands, protocol.CommandQueue(subsystem), nil
		}
	}
	return "", "", fmt.Errorf("unknown subsystem %q (choose from %s)", subsystem, strings.Join(known, ", "))
}
