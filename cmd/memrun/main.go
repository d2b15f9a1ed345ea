//go:build linux

package main

import "github.com/kbukum/memexec/internal/cli"

func main() {
	cli.Execute()
}
