package testsupport

import (
	"path/filepath"
	"testing"

	"labmq/internal/config"
	"labmq/internal/protocol"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults every other field and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = base
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithAuditDisabled turns the command journal off.
func WithAuditDisabled() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Audit.Enabled = false
	}
}

// WithSubsystemsDisabled turns the named hardware subsystems off.
func WithSubsystemsDisabled(names ...string) ConfigOption {
	return func(cfg *config.Config) {
		for _, name := range names {
			switch name {
			case protocol.SubsystemMotion:
				cfg.Motion.Enabled = false
			case protocol.SubsystemDigitizer:
				cfg.Digitizer.Enabled = false
			case protocol.SubsystemGPIO:
				cfg.GPIO.Enabled = false
			}
		}
	}
}
