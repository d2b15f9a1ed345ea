// Package version reports build information for memrun.
//
// Release builds set the variables with -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/memexec/version.Version=1.0.0" ./cmd/memrun
//
// Unset values fall back to the VCS stamp the go tool embeds.
package version
