package rpc

import (
	"context"

	"labmq/internal/protocol"
)

// Pulse emits n pulses with the given spacing in microseconds.
func (c *Client) Pulse(ctx context.Context, n, wait int) error {
	args := map[string]int{"n": n, "wait": wait}
	_, err := c.commandCall(ctx, protocol.SubsystemGPIO, "pulse", args)
	return err
}

// SlowWrite drives the pin to the given level.
func (c *Client) SlowWrite(ctx context.Context, level bool) error {
	_, err := c.commandCall(ctx, protocol.SubsystemGPIO, "slow-write", map[string]bool{"x": level})
	return err
}

// SlowRead samples the pin and returns its level.
func (c *Client) SlowRead(ctx context.Context) (bool, error) {
	raw, err := c.dataCall(ctx, protocol.SubsystemGPIO, "slow-read", nil)
	if err != nil {
		return false, err
	}
	var level bool
	if err := decodeInto(raw, &level); err != nil {
		return false, err
	}
	return level, nil
}
