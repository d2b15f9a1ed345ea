// Package validation checks launcher inputs and configuration.
//
// Struct tags do most of the work. Besides go-playground's built-ins two tags
// are registered for strings handed to the kernel: nonul rejects interior
// NUL bytes and envpair requires KEY=VALUE. Field names in messages are the
// mapstructure keys, so they match what users write in config files.
//
//	type Command struct {
//		Args []string `validate:"dive,nonul"`
//	}
//	err := validation.Validate(cmd)
//
// The Validator adds checks tags cannot express and merges nested results:
//
//	err := validation.New().Struct(cfg).Nested("logging", cfg.Logging.Validate()).Err()
package validation
