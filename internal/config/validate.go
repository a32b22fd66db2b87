package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBroker(); err != nil {
		return err
	}
	if err := c.validateClient(); err != nil {
		return err
	}
	if err := c.validateMotion(); err != nil {
		return err
	}
	if err := c.validateDigitizer(); err != nil {
		return err
	}
	if err := c.validateGPIO(); err != nil {
		return err
	}
	if err := c.validateAudit(); err != nil {
		return err
	}
	if err := c.validateSubsystems(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateBroker() error {
	url := strings.TrimSpace(c.Broker.URL)
	if url == "" {
		return errors.New("broker.url must be set")
	}
	if !strings.HasPrefix(url, "amqp://") && !strings.HasPrefix(url, "amqps://") {
		return fmt.Errorf("broker.url must use an amqp:// or amqps:// scheme, got %q", url)
	}
	if c.Broker.DialTimeout <= 0 {
		return errors.New("broker.dial_timeout must be positive (seconds)")
	}
	if c.Broker.Heartbeat <= 0 {
		return errors.New("broker.heartbeat must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateClient() error {
	return ensurePositiveMap(map[string]int{
		"client.call_timeout": c.Client.CallTimeout,
		"client.grant_wait":   c.Client.GrantWait,
	})
}

func (c *Config) validateMotion() error {
	if !c.Motion.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Motion.Device) == "" {
		return errors.New("motion.device must be set when motion.enabled is true")
	}
	if c.Motion.MaxX <= 0 || c.Motion.MaxY <= 0 || c.Motion.MaxZ <= 0 {
		return errors.New("motion.max_x, motion.max_y, and motion.max_z must be positive when motion.enabled is true")
	}
	if c.Motion.SpeedLimit <= 0 {
		return errors.New("motion.speed_limit must be positive when motion.enabled is true")
	}
	return nil
}

func (c *Config) validateDigitizer() error {
	if !c.Digitizer.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Digitizer.Device) == "" {
		return errors.New("digitizer.device must be set when digitizer.enabled is true")
	}
	if c.Digitizer.Samples <= 0 {
		return errors.New("digitizer.samples must be positive when digitizer.enabled is true")
	}
	if c.Digitizer.Rate <= 0 {
		return errors.New("digitizer.rate must be positive when digitizer.enabled is true")
	}
	return nil
}

func (c *Config) validateGPIO() error {
	if c.GPIO.Enabled && c.GPIO.Pin <= 0 {
		return errors.New("gpio.pin must be positive when gpio.enabled is true")
	}
	return nil
}

func (c *Config) validateAudit() error {
	if c.Audit.Enabled && c.Audit.RecentLimit < 1 {
		return errors.New("audit.recent_limit must be >= 1 when audit.enabled is true")
	}
	return nil
}

func (c *Config) validateSubsystems() error {
	if !c.Motion.Enabled && !c.Digitizer.Enabled && !c.GPIO.Enabled {
		return errors.New("at least one subsystem must be enabled")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
