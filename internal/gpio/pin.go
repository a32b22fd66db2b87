package gpio

import (
	"fmt"
	"sync"

	"labmq/internal/config"
)

// Pin simulates one GPIO line configured for output. Reads loop back the
// driven level, which is how a scope on the bench would see the line.
type Pin struct {
	mu sync.Mutex

	number   int
	level    bool
	lastRead bool
	pulses   uint64
}

// NewPin builds a pin from the gpio configuration section. The line starts
// low.
func NewPin(cfg config.GPIO) *Pin {
	return &Pin{number: cfg.Pin}
}

// SlowWrite drives the line to the given level.
func (p *Pin) SlowWrite(level bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = level
	return nil
}

// SlowRead samples the line and returns its level.
func (p *Pin) SlowRead() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastRead = p.level
	return p.level, nil
}

// Pulse emits n pulses with wait microseconds of down time between them. The
// line ends low.
func (p *Pin) Pulse(n, wait int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n <= 0 {
		return fmt.Errorf("pulse count must be positive, got %d", n)
	}
	if wait < 0 {
		return fmt.Errorf("pulse wait must be non-negative, got %d", wait)
	}
	p.pulses += uint64(n)
	p.level = false
	return nil
}

// Level returns the last driven level.
func (p *Pin) Level() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// LastRead returns the level observed by the most recent slow-read.
func (p *Pin) LastRead() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRead
}

// PulseCount returns how many pulses the line has emitted.
func (p *Pin) PulseCount() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pulses
}

// Number returns the configured pin number.
func (p *Pin) Number() int { return p.number }
