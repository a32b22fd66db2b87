package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeBroker(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeClient()
	c.normalizeMotion()
	c.normalizeDigitizer()
	c.normalizeGPIO()
	c.normalizeAudit()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeBroker() error {
	c.Broker.URL = strings.TrimSpace(c.Broker.URL)
	if c.Broker.URL == "" || c.Broker.URL == defaultBrokerURL {
		if value, ok := os.LookupEnv("LABMQ_BROKER_URL"); ok && strings.TrimSpace(value) != "" {
			c.Broker.URL = strings.TrimSpace(value)
		}
	}
	if c.Broker.URL == "" {
		c.Broker.URL = defaultBrokerURL
	}
	if c.Broker.DialTimeout <= 0 {
		c.Broker.DialTimeout = defaultBrokerDialTimeout
	}
	if c.Broker.Heartbeat <= 0 {
		c.Broker.Heartbeat = defaultBrokerHeartbeat
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeClient() {
	if c.Client.CallTimeout <= 0 {
		c.Client.CallTimeout = defaultCallTimeout
	}
	if c.Client.GrantWait <= 0 {
		c.Client.GrantWait = defaultGrantWait
	}
}

func (c *Config) normalizeMotion() {
	c.Motion.Device = strings.TrimSpace(c.Motion.Device)
	if c.Motion.Device == "" {
		c.Motion.Device = defaultMotionDevice
	}
	if c.Motion.MaxX <= 0 {
		c.Motion.MaxX = defaultMotionMaxX
	}
	if c.Motion.MaxY <= 0 {
		c.Motion.MaxY = defaultMotionMaxY
	}
	if c.Motion.MaxZ <= 0 {
		c.Motion.MaxZ = defaultMotionMaxZ
	}
	if c.Motion.SpeedLimit <= 0 {
		c.Motion.SpeedLimit = defaultMotionSpeedLimit
	}
}

func (c *Config) normalizeDigitizer() {
	c.Digitizer.Device = strings.TrimSpace(c.Digitizer.Device)
	if c.Digitizer.Device == "" {
		c.Digitizer.Device = defaultDigitizerDevice
	}
	if c.Digitizer.Samples <= 0 {
		c.Digitizer.Samples = defaultDigitizerSamples
	}
	if c.Digitizer.Rate <= 0 {
		c.Digitizer.Rate = defaultDigitizerRate
	}
}

func (c *Config) normalizeGPIO() {
	if c.GPIO.Pin <= 0 {
		c.GPIO.Pin = defaultGPIOPin
	}
}

func (c *Config) normalizeAudit() {
	if c.Audit.RecentLimit <= 0 {
		c.Audit.RecentLimit = defaultAuditRecentLimit
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
