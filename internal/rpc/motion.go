package rpc

import (
	"context"

	"labmq/internal/motion"
	"labmq/internal/protocol"
)

// MoveTo commands the stage toward the given coordinates.
func (c *Client) MoveTo(ctx context.Context, x, y, z float64) error {
	args := map[string]float64{"x": x, "y": y, "z": z}
	_, err := c.commandCall(ctx, protocol.SubsystemMotion, "move-to", args)
	return err
}

// RunGCode hands one raw gcode line to the stage and returns its ack.
func (c *Client) RunGCode(ctx context.Context, line string) (string, error) {
	raw, err := c.commandCall(ctx, protocol.SubsystemMotion, "run-gcode", map[string]string{"gcode": line})
	if err != nil {
		return "", err
	}
	var ack string
	if err := decodeInto(raw, &ack); err != nil {
		return "", err
	}
	return ack, nil
}

// SetSpeedLimit adjusts per-axis feed rates in mm/s.
func (c *Client) SetSpeedLimit(ctx context.Context, x, y, z float64) error {
	args := map[string]float64{"x": x, "y": y, "z": z}
	_, err := c.commandCall(ctx, protocol.SubsystemMotion, "set-speed-limit", args)
	return err
}

// EnableStepper re-engages the selected stepper drivers.
func (c *Client) EnableStepper(ctx context.Context, x, y, z bool) error {
	_, err := c.commandCall(ctx, protocol.SubsystemMotion, "enable-stepper", axisFlags(x, y, z))
	return err
}

// DisableStepper releases the selected stepper drivers.
func (c *Client) DisableStepper(ctx context.Context, x, y, z bool) error {
	_, err := c.commandCall(ctx, protocol.SubsystemMotion, "disable-stepper", axisFlags(x, y, z))
	return err
}

// SendHome homes the selected axes, interrupting any move in progress.
func (c *Client) SendHome(ctx context.Context, x, y, z bool) error {
	_, err := c.commandCall(ctx, protocol.SubsystemMotion, "send-home", axisFlags(x, y, z))
	return err
}

// StageSettings reads the full motion settings snapshot.
func (c *Client) StageSettings(ctx context.Context) (motion.Settings, error) {
	raw, err := c.dataCall(ctx, protocol.SubsystemMotion, "get-settings", nil)
	if err != nil {
		return motion.Settings{}, err
	}
	var settings motion.Settings
	if err := decodeInto(raw, &settings); err != nil {
		return motion.Settings{}, err
	}
	return settings, nil
}

// StagePosition reads the target and interpolated current coordinates.
func (c *Client) StagePosition(ctx context.Context) (motion.PositionReport, error) {
	raw, err := c.dataCall(ctx, protocol.SubsystemMotion, "get-position", nil)
	if err != nil {
		return motion.PositionReport{}, err
	}
	var report motion.PositionReport
	if err := decodeInto(raw, &report); err != nil {
		return motion.PositionReport{}, err
	}
	return report, nil
}

// StageMoving reports whether a commanded move is still in progress.
func (c *Client) StageMoving(ctx context.Context) (bool, error) {
	raw, err := c.dataCall(ctx, protocol.SubsystemMotion, "in-motion", nil)
	if err != nil {
		return false, err
	}
	var moving bool
	if err := decodeInto(raw, &moving); err != nil {
		return false, err
	}
	return moving, nil
}

func axisFlags(x, y, z bool) map[string]bool {
	return map[string]bool{"x": x, "y": y, "z": z}
}
