package rpc

import (
	"context"
	"fmt"

	"labmq/internal/protocol"
)

// Add asks the daemon's self-test handler for a + b.
func (c *Client) Add(ctx context.Context, a, b float64) (float64, error) {
	raw, err := c.Call(ctx, protocol.ExchangeCommands, protocol.ServerQueue, "add", []float64{a, b})
	if err != nil {
		return 0, err
	}
	var sum float64
	if err := decodeInto(raw, &sum); err != nil {
		return 0, err
	}
	return sum, nil
}

// Fib asks the daemon's self-test handler for the nth Fibonacci number.
func (c *Client) Fib(ctx context.Context, n int) (int, error) {
	raw, err := c.Call(ctx, protocol.ExchangeCommands, protocol.ServerQueue, "get-fib", n)
	if err != nil {
		return 0, err
	}
	var fib int
	if err := decodeInto(raw, &fib); err != nil {
		return 0, err
	}
	return fib, nil
}

// Ping round-trips the telemetry queue.
func (c *Client) Ping(ctx context.Context) error {
	raw, err := c.Call(ctx, protocol.ExchangeData, protocol.TelemetryQueue, "ping", nil)
	if err != nil {
		return err
	}
	if !protocol.DecodeStatus(raw, protocol.PingReply) {
		return fmt.Errorf("unexpected ping reply %q", string(raw))
	}
	return nil
}

// ServerInfo reads the daemon's identity and session snapshot.
func (c *Client) ServerInfo(ctx context.Context) (protocol.ServerInfo, error) {
	raw, err := c.Call(ctx, protocol.ExchangeData, protocol.TelemetryQueue, "server-info", nil)
	if err != nil {
		return protocol.ServerInfo{}, err
	}
	var info protocol.ServerInfo
	if err := decodeInto(raw, &info); err != nil {
		return protocol.ServerInfo{}, err
	}
	return info, nil
}

// ListCommands reads the command vocabulary served on every queue.
func (c *Client) ListCommands(ctx context.Context) ([]protocol.QueueCommands, error) {
	raw, err := c.Call(ctx, protocol.ExchangeData, protocol.TelemetryQueue, "list-commands", nil)
	if err != nil {
		return nil, err
	}
	var queues []protocol.QueueCommands
	if err := decodeInto(raw, &queues); err != nil {
		return nil, err
	}
	return queues, nil
}

// RecentCommands reads the newest entries from the command journal.
func (c *Client) RecentCommands(ctx context.Context, limit int) ([]protocol.CommandRecord, error) {
	raw, err := c.Call(ctx, protocol.ExchangeData, protocol.TelemetryQueue, "recent-commands", map[string]int{"limit": limit})
	if err != nil {
		return nil, err
	}
	var records []protocol.CommandRecord
	if err := decodeInto(raw, &records); err != nil {
		return nil, err
	}
	return records, nil
}
