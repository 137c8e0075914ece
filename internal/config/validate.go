package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDevice(); err != nil {
		return err
	}
	if err := c.validateFlow(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDevice() error {
	switch c.Device.SerialType {
	case SerialTypeUSB, SerialTypeUART:
	default:
		return fmt.Errorf("device.serial_type: unsupported value %q (expected usb or uart)", c.Device.SerialType)
	}
	if !c.Device.AutoDetect && c.Device.Port == "" {
		return errors.New("device.port must be set when device.auto_detect is false")
	}
	if c.Device.AutoDetect && len(c.Device.VendorIDs) == 0 {
		return errors.New("device.vendor_ids must list at least one vendor when device.auto_detect is true")
	}
	return nil
}

func (c *Config) validateFlow() error {
	switch c.Flow.Mode {
	case FlowModeLocal, FlowModeServer:
		return nil
	default:
		return fmt.Errorf("flow.mode: unsupported value %q (expected local or server)", c.Flow.Mode)
	}
}

func (c *Config) validateSession() error {
	if c.Session.ConnectTimeout < 0 {
		return errors.New("session.connect_timeout must be zero or positive")
	}
	if c.Session.JobTimeout < 0 {
		return errors.New("session.job_timeout must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
