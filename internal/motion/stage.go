package motion

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"labmq/internal/config"
)

// ErrUnavailable reports that the stage hardware is not attached.
var ErrUnavailable = errors.New("motion stage not available")

// Coordinates is a point or per-axis vector in stage space, in millimetres
// (millimetres per second for speeds).
type Coordinates struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Steppers records per-axis stepper enablement.
type Steppers struct {
	X bool `json:"x"`
	Y bool `json:"y"`
	Z bool `json:"z"`
}

// Settings is the full stage state returned by the get-settings data method.
type Settings struct {
	Device     string      `json:"device"`
	Available  bool        `json:"available"`
	Target     Coordinates `json:"target"`
	Position   Coordinates `json:"position"`
	SpeedLimit Coordinates `json:"speed_limit"`
	Extents    Coordinates `json:"extents"`
	Steppers   Steppers    `json:"steppers"`
	InMotion   bool        `json:"in_motion"`
}

// PositionReport is the answer to the get-position data method.
type PositionReport struct {
	Target   Coordinates `json:"target"`
	Current  Coordinates `json:"current"`
	InMotion bool        `json:"in_motion"`
}

// Stage simulates a three-axis gantry. Moves are not instantaneous: move-to
// records a travel deadline derived from the per-axis speed limits, and
// position reads interpolate along the path until the deadline passes.
//
// Coordinates are rounded to 0.1 mm, the positioning precision of the
// hardware the simulation stands in for.
type Stage struct {
	mu  sync.Mutex
	now func() time.Time

	device    string
	available bool

	from      Coordinates
	target    Coordinates
	moveStart time.Time
	moveEnd   time.Time

	speed    Coordinates
	speedCap float64
	extents  Coordinates

	steppers   Steppers
	lastGCode  string
	gcodeCount int
}

// NewStage builds a stage from the motion configuration section. The stage
// starts at the origin, available, with all steppers enabled and every axis
// at the configured speed cap.
func NewStage(cfg config.Motion) *Stage {
	return &Stage{
		now:       time.Now,
		device:    cfg.Device,
		available: true,
		speed:     Coordinates{X: cfg.SpeedLimit, Y: cfg.SpeedLimit, Z: cfg.SpeedLimit},
		speedCap:  cfg.SpeedLimit,
		extents:   Coordinates{X: cfg.MaxX, Y: cfg.MaxY, Z: cfg.MaxZ},
		steppers:  Steppers{X: true, Y: true, Z: true},
	}
}

// MoveTo starts a linear move. A NaN coordinate keeps that axis's current
// target. Targets are rounded to 0.1 mm and must lie inside [0, extent] for
// their axis; an out-of-range target rejects the whole move.
func (s *Stage) MoveTo(x, y, z float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.available {
		return ErrUnavailable
	}

	target := s.target
	if !math.IsNaN(x) {
		target.X = roundCoord(x)
	}
	if !math.IsNaN(y) {
		target.Y = roundCoord(y)
	}
	if !math.IsNaN(z) {
		target.Z = roundCoord(z)
	}
	if err := checkRange("x", target.X, s.extents.X); err != nil {
		return err
	}
	if err := checkRange("y", target.Y, s.extents.Y); err != nil {
		return err
	}
	if err := checkRange("z", target.Z, s.extents.Z); err != nil {
		return err
	}

	now := s.now()
	pos := s.positionAt(now)
	s.from = pos
	s.target = target
	s.moveStart = now
	s.moveEnd = now.Add(travelTime(pos, target, s.speed))
	return nil
}

// RunGCode feeds one raw gcode line to the controller and returns its
// acknowledgment.
func (s *Stage) RunGCode(line string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.available {
		return "", ErrUnavailable
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("empty gcode line")
	}
	s.lastGCode = line
	s.gcodeCount++
	return "ok", nil
}

// SetSpeedLimit adjusts the per-axis speed limits in mm/s. NaN or
// non-positive values keep the current limit; values above the configured
// cap clamp to the cap.
func (s *Stage) SetSpeedLimit(x, y, z float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.available {
		return ErrUnavailable
	}
	s.speed.X = clampSpeed(s.speed.X, x, s.speedCap)
	s.speed.Y = clampSpeed(s.speed.Y, y, s.speedCap)
	s.speed.Z = clampSpeed(s.speed.Z, z, s.speedCap)
	return nil
}

// EnableStepper enables the selected axis steppers.
func (s *Stage) EnableStepper(x, y, z bool) error {
	return s.setSteppers(x, y, z, true)
}

// DisableStepper disables the selected axis steppers.
func (s *Stage) DisableStepper(x, y, z bool) error {
	return s.setSteppers(x, y, z, false)
}

func (s *Stage) setSteppers(x, y, z, state bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.available {
		return ErrUnavailable
	}
	if x {
		s.steppers.X = state
	}
	if y {
		s.steppers.Y = state
	}
	if z {
		s.steppers.Z = state
	}
	return nil
}

// SendHome homes the selected axes. Homing aborts any move in flight: the
// unselected axes settle wherever the interrupted move had reached.
func (s *Stage) SendHome(x, y, z bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.available {
		return ErrUnavailable
	}
	now := s.now()
	pos := s.positionAt(now)
	if x {
		pos.X = 0
	}
	if y {
		pos.Y = 0
	}
	if z {
		pos.Z = 0
	}
	s.from = pos
	s.target = pos
	s.moveStart = now
	s.moveEnd = now
	return nil
}

// SetMaxX sets the x travel extent in millimetres.
func (s *Stage) SetMaxX(v float64) error { return s.setExtent(&s.extents.X, "x", v) }

// SetMaxY sets the y travel extent in millimetres.
func (s *Stage) SetMaxY(v float64) error { return s.setExtent(&s.extents.Y, "y", v) }

// SetMaxZ sets the z travel extent in millimetres.
func (s *Stage) SetMaxZ(v float64) error { return s.setExtent(&s.extents.Z, "z", v) }

func (s *Stage) setExtent(field *float64, axis string, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v <= 0 || math.IsNaN(v) {
		return fmt.Errorf("max %s must be positive, got %v", axis, v)
	}
	*field = roundCoord(v)
	return nil
}

// MaxX returns the x travel extent.
func (s *Stage) MaxX() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extents.X
}

// MaxY returns the y travel extent.
func (s *Stage) MaxY() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extents.Y
}

// MaxZ returns the z travel extent.
func (s *Stage) MaxZ() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extents.Z
}

// InMotion reports whether a move is still in flight.
func (s *Stage) InMotion() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Before(s.moveEnd)
}

// Position returns the target, the current interpolated position, and the
// motion flag in one read.
func (s *Stage) Position() PositionReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	return PositionReport{
		Target:   s.target,
		Current:  s.positionAt(now),
		InMotion: now.Before(s.moveEnd),
	}
}

// Settings returns the full stage state.
func (s *Stage) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	return Settings{
		Device:     s.device,
		Available:  s.available,
		Target:     s.target,
		Position:   s.positionAt(now),
		SpeedLimit: s.speed,
		Extents:    s.extents,
		Steppers:   s.steppers,
		InMotion:   now.Before(s.moveEnd),
	}
}

// SetAvailable flips hardware presence, driven by the device monitor.
func (s *Stage) SetAvailable(present bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = present
}

// Available reports whether the stage hardware is attached.
func (s *Stage) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

// Device returns the configured device path.
func (s *Stage) Device() string { return s.device }

// positionAt interpolates the position along the current move. Callers hold mu.
func (s *Stage) positionAt(now time.Time) Coordinates {
	if !now.Before(s.moveEnd) {
		return s.target
	}
	total := s.moveEnd.Sub(s.moveStart)
	if total <= 0 {
		return s.target
	}
	frac := float64(now.Sub(s.moveStart)) / float64(total)
	return Coordinates{
		X: s.from.X + (s.target.X-s.from.X)*frac,
		Y: s.from.Y + (s.target.Y-s.from.Y)*frac,
		Z: s.from.Z + (s.target.Z-s.from.Z)*frac,
	}
}

// roundCoord rounds to the 0.1 mm positioning precision.
func roundCoord(v float64) float64 {
	return math.Round(v*10) / 10
}

func checkRange(axis string, v, extent float64) error {
	if v < 0 || v > extent {
		return fmt.Errorf("target %s=%.1f outside travel range [0, %.1f]", axis, v, extent)
	}
	return nil
}

func clampSpeed(current, requested, limit float64) float64 {
	if math.IsNaN(requested) || requested <= 0 {
		return current
	}
	if requested > limit {
		return limit
	}
	return requested
}

// travelTime is the wall time for a simultaneous-axis move: the slowest axis
// sets the pace.
func travelTime(from, to, speed Coordinates) time.Duration {
	longest := 0.0
	for _, leg := range []struct{ dist, v float64 }{
		{math.Abs(to.X - from.X), speed.X},
		{math.Abs(to.Y - from.Y), speed.Y},
		{math.Abs(to.Z - from.Z), speed.Z},
	} {
		if leg.dist == 0 || leg.v <= 0 {
			continue
		}
		if t := leg.dist / leg.v; t > longest {
			longest = t
		}
	}
	return time.Duration(longest * float64(time.Second))
}
