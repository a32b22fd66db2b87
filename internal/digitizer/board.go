package digitizer

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"labmq/internal/config"
)

const (
	// Channels is the number of readout channels on the board.
	Channels = 4

	// ExternalTrigger selects the external trigger input in set-trigger.
	ExternalTrigger = 4

	// channelDepth is the fixed length of a raw capture buffer.
	channelDepth = 2048

	// minRate and maxRate bound the sampling rate in GS/s. Requested rates
	// round into this range the way the hardware would.
	minRate = 0.7
	maxRate = 5.0
)

// ErrUnavailable reports that the digitizer hardware is not attached.
var ErrUnavailable = errors.New("digitizer not available")

// ErrNoCapture reports a waveform read before any collection completed.
var ErrNoCapture = errors.New("no capture available")

// Trigger is the board trigger configuration. Level and direction only apply
// to internal channels; delay is in nanoseconds.
type Trigger struct {
	Channel   int     `json:"channel"`
	Level     float64 `json:"level"`
	Direction int     `json:"direction"`
	Delay     float64 `json:"delay"`
}

// Board simulates the sampling board. A capture starts with StartCollect and
// completes on ForceStop or on the first waveform read, which stands in for
// waiting on the hardware trigger. Completed captures synthesize one
// deterministic pulse per channel.
type Board struct {
	mu sync.Mutex

	device    string
	available bool
	busy      bool

	samples  int
	rate     float64
	trigger  Trigger
	captures uint64
	last     [Channels][]float64
}

// NewBoard builds a board from the digitizer configuration section. The board
// starts available, idle, and externally triggered.
func NewBoard(cfg config.Digitizer) *Board {
	b := &Board{
		device:    cfg.Device,
		available: true,
		trigger:   Trigger{Channel: ExternalTrigger},
	}
	b.samples = clampSamples(cfg.Samples)
	b.rate = clampRate(cfg.Rate)
	return b
}

// StartCollect arms a single-shot collection.
func (b *Board) StartCollect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.available {
		return ErrUnavailable
	}
	b.busy = true
	return nil
}

// ForceStop fires a software trigger, completing any armed collection.
func (b *Board) ForceStop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.available {
		return ErrUnavailable
	}
	if b.busy {
		b.completeCapture()
	}
	return nil
}

// RunCalibration runs the timing calibration. The board must be idle; the
// inputs are assumed disconnected.
func (b *Board) RunCalibration() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.available {
		return ErrUnavailable
	}
	if b.busy {
		return errors.New("cannot calibrate while a collection is armed")
	}
	return nil
}

// SetTrigger configures the trigger source. Channel 0 through 3 selects a
// readout channel, 4 the external input. Level and direction are recorded
// only for internal channels.
func (b *Board) SetTrigger(channel int, level float64, direction int, delay float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.available {
		return ErrUnavailable
	}
	if channel < 0 || channel > ExternalTrigger {
		return fmt.Errorf("trigger channel %d out of range [0, %d]", channel, ExternalTrigger)
	}
	if direction != 0 && direction != 1 {
		return fmt.Errorf("trigger direction must be 0 (rising) or 1 (falling), got %d", direction)
	}
	if delay < 0 {
		return fmt.Errorf("trigger delay must be non-negative, got %v", delay)
	}
	b.trigger.Channel = channel
	if channel < Channels {
		b.trigger.Level = level
		b.trigger.Direction = direction
	}
	b.trigger.Delay = delay
	return nil
}

// SetSamples sets how many samples each waveform read returns, capped at the
// channel depth.
func (b *Board) SetSamples(n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 {
		return fmt.Errorf("samples must be positive, got %d", n)
	}
	b.samples = clampSamples(n)
	return nil
}

// Samples returns the configured read length.
func (b *Board) Samples() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.samples
}

// SetRate sets the sampling rate in GS/s, rounding into the supported range.
func (b *Board) SetRate(rate float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.available {
		return ErrUnavailable
	}
	if rate <= 0 || math.IsNaN(rate) {
		return fmt.Errorf("rate must be positive, got %v", rate)
	}
	b.rate = clampRate(rate)
	return nil
}

// Rate returns the true sampling rate in GS/s.
func (b *Board) Rate() (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.available {
		return 0, ErrUnavailable
	}
	return b.rate, nil
}

// TriggerSettings returns the current trigger configuration.
func (b *Board) TriggerSettings() Trigger {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trigger
}

// IsAvailable reports whether the board hardware is attached.
func (b *Board) IsAvailable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available
}

// IsReady reports whether the last collection has finished.
func (b *Board) IsReady() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.available {
		return false, ErrUnavailable
	}
	return !b.busy, nil
}

// SetAvailable flips hardware presence, driven by the device monitor. Losing
// the hardware aborts any armed collection.
func (b *Board) SetAvailable(present bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.available = present
	if !present {
		b.busy = false
	}
}

// Device returns the configured device path.
func (b *Board) Device() string { return b.device }

// Waveform returns the last captured waveform for a channel, truncated to the
// sample setting. Reading while a collection is armed completes it, the same
// way the hardware read blocks until the trigger fires.
func (b *Board) Waveform(channel int) ([]float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waveformLocked(channel)
}

func (b *Board) waveformLocked(channel int) ([]float64, error) {
	if !b.available {
		return nil, ErrUnavailable
	}
	if channel < 0 || channel >= Channels {
		return nil, fmt.Errorf("channel %d out of range [0, %d]", channel, Channels-1)
	}
	if b.busy {
		b.completeCapture()
	}
	if b.last[channel] == nil {
		return nil, ErrNoCapture
	}
	out := make([]float64, b.samples)
	copy(out, b.last[channel])
	return out, nil
}

// WaveformSum integrates the last waveform of a channel over [intStart,
// intStop), subtracting the mean pedestal over [pedStart, pedStop). Equal
// pedestal bounds skip the subtraction. The result is an area in mV·ns with
// the pulse polarity corrected.
func (b *Board) WaveformSum(channel, intStart, intStop, pedStart, pedStop int) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.waveformLocked(channel); err != nil {
		return 0, err
	}
	waveform := b.last[channel]

	pedestal := 0.0
	if pedStart != pedStop {
		lo, hi := clampWindow(pedStart, pedStop)
		if hi <= lo {
			return 0, fmt.Errorf("pedestal window [%d, %d) is empty", pedStart, pedStop)
		}
		for i := lo; i < hi; i++ {
			pedestal += waveform[i]
		}
		pedestal /= float64(hi - lo)
	}

	lo, hi := clampWindow(intStart, intStop)
	if hi <= lo {
		return 0, fmt.Errorf("integration window [%d, %d) is empty", intStart, intStop)
	}
	sum := 0.0
	for i := lo; i < hi; i++ {
		sum += waveform[i]
	}
	sum -= pedestal * float64(hi-lo)

	timeSlice := 1.0 / b.rate
	return sum * -timeSlice, nil
}

// TimeSlice returns the sample timing array in nanoseconds, assuming ideal
// spacing at the current rate.
func (b *Board) TimeSlice() ([]float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.available {
		return nil, ErrUnavailable
	}
	out := make([]float64, b.samples)
	spacing := 1.0 / b.rate
	for i := range out {
		out[i] = float64(i) * spacing
	}
	return out, nil
}

// completeCapture synthesizes one pulse per channel. Callers hold mu.
func (b *Board) completeCapture() {
	b.captures++
	for channel := 0; channel < Channels; channel++ {
		b.last[channel] = synthesizePulse(channel, b.captures, b.samples)
	}
	b.busy = false
}

// synthesizePulse builds a negative gaussian pulse on a flat baseline. The
// shape is deterministic in the channel and capture index, and the pulse sits
// a quarter of the way into the configured sample window so truncated reads
// still contain it.
func synthesizePulse(channel int, capture uint64, samples int) []float64 {
	amplitude := 100.0 + 25.0*float64(channel)
	center := float64(samples)/4 + float64(capture*13%16)
	sigma := float64(samples) / 32
	if sigma < 2 {
		sigma = 2
	}

	out := make([]float64, channelDepth)
	for i := range out {
		d := float64(i) - center
		out[i] = -amplitude * math.Exp(-d*d/(2*sigma*sigma))
	}
	return out
}

// clampWindow bounds a sample index window to the raw capture buffer.
func clampWindow(start, stop int) (int, int) {
	if start < 0 {
		start = 0
	}
	if stop > channelDepth {
		stop = channelDepth
	}
	return start, stop
}

func clampSamples(n int) int {
	if n <= 0 || n > channelDepth {
		return channelDepth
	}
	return n
}

func clampRate(rate float64) float64 {
	switch {
	case rate < minRate:
		return minRate
	case rate > maxRate:
		return maxRate
	default:
		return rate
	}
}
