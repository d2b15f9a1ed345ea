// Package config loads memrun configuration from YAML files, .env files and
// prefixed environment variables.
//
// ResolveFiles locates the YAML and .env files in the working directory and
// the user configuration directory. Environment variables carrying the
// service prefix override file values, with underscores mapping onto
// nested keys (MEMRUN_LAUNCHER_GRACE_PERIOD sets launcher.grace_period).
//
// # Usage
//
//	var cfg config.ServiceConfig
//	err := config.LoadConfig("memrun", &cfg, config.WithConfigFile(path))
//	cfg.ApplyDefaults()
//	err = cfg.Validate()
package config
