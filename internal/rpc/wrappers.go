package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"labmq/internal/protocol"
)

// commandCall targets a subsystem's mutating-operations queue.
func (c *Client) commandCall(ctx context.Context, subsystem, command string, args any) (json.RawMessage, error) {
	return c.Call(ctx, protocol.ExchangeCommands, protocol.CommandQueue(subsystem), command, args)
}

// dataCall targets a subsystem's read-only-operations queue.
func (c *Client) dataCall(ctx context.Context, subsystem, command string, args any) (json.RawMessage, error) {
	return c.Call(ctx, protocol.ExchangeData, protocol.DataQueue(subsystem), command, args)
}

func decodeInto(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
