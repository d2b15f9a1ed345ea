// Package logger wraps zerolog for memexec.
//
// Logs go to stderr by default so that a child sharing the parent's stdout
// is not interleaved with diagnostics. Component loggers come from Get and
// follow the global logger installed by Init:
//
//	logger.Init(logger.Config{Level: "debug", Format: "json"}, "memrun")
//	log := logger.Get("memexec")
//	log.Debug("spawned", logger.ProcessFields("tool", pid))
//
// Configuration keys (under logging: in a config file):
//
//	level         zerolog level name, "disabled" to silence
//	format        json, console or pretty
//	output        stderr or stdout
//	no_color      plain console output
//	no_timestamp  omit the time field
//	caller        add file:line
package logger
