package config

import (
	"github.com/kbukum/memexec/logger"
	"github.com/kbukum/memexec/validation"
)

// ServiceConfig is the root configuration of a memrun process.
type ServiceConfig struct {
	Name        string          `yaml:"name" mapstructure:"name" validate:"required"`
	Environment string          `yaml:"environment" mapstructure:"environment" validate:"oneof=development staging production"`
	Version     string          `yaml:"version" mapstructure:"version"`
	Debug       bool            `yaml:"debug" mapstructure:"debug"`
	Logging     logger.Config   `yaml:"logging" mapstructure:"logging"`
	Launcher    LauncherConfig  `yaml:"launcher" mapstructure:"launcher"`
	Telemetry   TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
}

// ApplyDefaults fills every unset field, including nested sections.
func (c *ServiceConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "memrun"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Debug && c.Logging.Level == "" {
		c.Logging.Level = "debug"
	}
	c.Logging.ApplyDefaults()
	c.Launcher.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
}

// Validate checks the configuration after ApplyDefaults. Every problem is
// reported, keyed by its path in the config file.
func (c *ServiceConfig) Validate() error {
	return validation.New().
		Struct(c).
		Nested("logging", c.Logging.Validate()).
		Err()
}
