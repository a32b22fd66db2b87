package rpc

import (
	"context"

	"labmq/internal/digitizer"
	"labmq/internal/protocol"
)

// StartCollect arms the digitizer for a capture.
func (c *Client) StartCollect(ctx context.Context) error {
	_, err := c.commandCall(ctx, protocol.SubsystemDigitizer, "start-collect", nil)
	return err
}

// ForceStop halts an armed capture, completing it immediately.
func (c *Client) ForceStop(ctx context.Context) error {
	_, err := c.commandCall(ctx, protocol.SubsystemDigitizer, "force-stop", nil)
	return err
}

// RunCalibration runs the board's self-calibration cycle.
func (c *Client) RunCalibration(ctx context.Context) error {
	_, err := c.commandCall(ctx, protocol.SubsystemDigitizer, "run-calibration", nil)
	return err
}

// SetTrigger configures the trigger source and thresholds.
func (c *Client) SetTrigger(ctx context.Context, trigger digitizer.Trigger) error {
	_, err := c.commandCall(ctx, protocol.SubsystemDigitizer, "set-trigger", trigger)
	return err
}

// SetSamples sets how many samples each capture keeps.
func (c *Client) SetSamples(ctx context.Context, n int) error {
	_, err := c.commandCall(ctx, protocol.SubsystemDigitizer, "set-samples", map[string]int{"x": n})
	return err
}

// SetRate sets the sampling rate in GHz.
func (c *Client) SetRate(ctx context.Context, rate float64) error {
	_, err := c.commandCall(ctx, protocol.SubsystemDigitizer, "set-rate", map[string]float64{"x": rate})
	return err
}

// Waveform reads the captured waveform for one channel in millivolts.
func (c *Client) Waveform(ctx context.Context, channel int) ([]float64, error) {
	raw, err := c.dataCall(ctx, protocol.SubsystemDigitizer, "get-waveform", map[string]int{"channel": channel})
	if err != nil {
		return nil, err
	}
	var samples []float64
	if err := decodeInto(raw, &samples); err != nil {
		return nil, err
	}
	return samples, nil
}

// WaveformSum integrates one channel's waveform over the given sample window,
// subtracting the pedestal estimated between pedStart and pedStop.
func (c *Client) WaveformSum(ctx context.Context, channel, intStart, intStop, pedStart, pedStop int) (float64, error) {
	args := map[string]int{
		"channel":  channel,
		"intstart": intStart,
		"intstop":  intStop,
		"pedstart": pedStart,
		"pedstop":  pedStop,
	}
	raw, err := c.dataCall(ctx, protocol.SubsystemDigitizer, "get-waveformsum", args)
	if err != nil {
		return 0, err
	}
	var sum float64
	if err := decodeInto(raw, &sum); err != nil {
		return 0, err
	}
	return sum, nil
}

// TimeSlice reads the sample timestamps in nanoseconds for the current rate
// and sample settings.
func (c *Client) TimeSlice(ctx context.Context) ([]float64, error) {
	raw, err := c.dataCall(ctx, protocol.SubsystemDigitizer, "get-time-slice", nil)
	if err != nil {
		return nil, err
	}
	var slice []float64
	if err := decodeInto(raw, &slice); err != nil {
		return nil, err
	}
	return slice, nil
}

// SampleCount reads the per-capture sample setting.
func (c *Client) SampleCount(ctx context.Context) (int, error) {
	raw, err := c.dataCall(ctx, protocol.SubsystemDigitizer, "get-samples", nil)
	if err != nil {
		return 0, err
	}
	var n int
	if err := decodeInto(raw, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// SampleRate reads the sampling rate in GHz.
func (c *Client) SampleRate(ctx context.Context) (float64, error) {
	raw, err := c.dataCall(ctx, protocol.SubsystemDigitizer, "get-rate", nil)
	if err != nil {
		return 0, err
	}
	var rate float64
	if err := decodeInto(raw, &rate); err != nil {
		return 0, err
	}
	return rate, nil
}

// DigitizerReady reports whether the board is idle and able to arm.
func (c *Client) DigitizerReady(ctx context.Context) (bool, error) {
	raw, err := c.dataCall(ctx, protocol.SubsystemDigitizer, "is-ready", nil)
	if err != nil {
		return false, err
	}
	var ready bool
	if err := decodeInto(raw, &ready); err != nil {
		return false, err
	}
	return ready, nil
}

// DigitizerAvailable reports whether the board hardware is attached.
func (c *Client) DigitizerAvailable(ctx context.Context) (bool, error) {
	raw, err := c.dataCall(ctx, protocol.SubsystemDigitizer, "is-available", nil)
	if err != nil {
		return false, err
	}
	var available bool
	if err := decodeInto(raw, &available); err != nil {
		return false, err
	}
	return available, nil
}
