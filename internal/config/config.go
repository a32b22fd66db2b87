package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Broker contains connection settings for the message broker.
type Broker struct {
	URL         string `toml:"url"`
	DialTimeout int    `toml:"dial_timeout"`
	Heartbeat   int    `toml:"heartbeat"`
}

// Paths contains directory configuration for daemon state.
type Paths struct {
	LogDir  string `toml:"log_dir"`
	DataDir string `toml:"data_dir"`
}

// Client contains timing configuration for the RPC client stub.
type Client struct {
	CallTimeout int `toml:"call_timeout"`
	GrantWait   int `toml:"grant_wait"`
}

// Motion contains configuration for the gantry motion subsystem.
type Motion struct {
	Enabled    bool    `toml:"enabled"`
	Device     string  `toml:"device"`
	MaxX       float64 `toml:"max_x"`
	MaxY       float64 `toml:"max_y"`
	MaxZ       float64 `toml:"max_z"`
	SpeedLimit float64 `toml:"speed_limit"`
}

// Digitizer contains configuration for the waveform digitizer subsystem.
type Digitizer struct {
	Enabled bool    `toml:"enabled"`
	Device  string  `toml:"device"`
	Samples int     `toml:"samples"`
	Rate    float64 `toml:"rate"`
}

// GPIO contains configuration for the GPIO subsystem.
type GPIO struct {
	Enabled bool `toml:"enabled"`
	Pin     int  `toml:"pin"`
}

// Audit contains configuration for the command audit journal.
type Audit struct {
	Enabled     bool `toml:"enabled"`
	RecentLimit int  `toml:"recent_limit"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for labmq.
//
// Configuration sections by concern:
//   - Broker: AMQP connection address and timings
//   - Paths: log and data directories for daemon state
//   - Client: RPC client call timeout and grant wait
//   - Motion: gantry travel limits and speed cap
//   - Digitizer: device path and acquisition defaults
//   - GPIO: pulse and level I/O availability
//   - Audit: command journal retention
//   - Logging: log format and level
type Config struct {
	Broker    Broker    `toml:"broker"`
	Paths     Paths     `toml:"paths"`
	Client    Client    `toml:"client"`
	Motion    Motion    `toml:"motion"`
	Digitizer Digitizer `toml:"digitizer"`
	GPIO      GPIO      `toml:"gpio"`
	Audit     Audit     `toml:"audit"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/labmq/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("labmq.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// AuditDBPath returns the location of the command audit database.
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.Paths.DataDir, "audit.db")
}

// LockPath returns the location of the daemon's single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "labmqd.lock")
}

// DialTimeout returns the broker dial timeout as a duration.
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.Broker.DialTimeout) * time.Second
}

// BrokerHeartbeat returns the AMQP heartbeat interval as a duration.
func (c *Config) BrokerHeartbeat() time.Duration {
	return time.Duration(c.Broker.Heartbeat) * time.Second
}

// CallTimeout returns the client RPC call timeout as a duration.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Client.CallTimeout) * time.Second
}

// GrantWait returns how long a queued client waits for a session grant.
func (c *Config) GrantWait() time.Duration {
	return time.Duration(c.Client.GrantWait) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
