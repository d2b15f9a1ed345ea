//go:build linux

package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

type options struct {
	configFile string
	envFile    string
	dir        string
	argv0      string
	env        []string
	unset      []string
	clearEnv   bool
	exec       bool
	stdin      string
	stdout     string
	stderr     string
}

// ExitError makes memrun exit with Code. A nil Err prints nothing.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *options) {
	opts := &options{}

	root := &cobra.Command{
		Use:   "memrun [flags] <binary> [-- args...]",
		Short: "Run an executable from memory",
		Long: "memrun reads an executable into memory and runs it from an anonymous\n" +
			"memory file, so the program never needs an executable path on disk.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBinary(cmd, opts, args)
		},
	}

	flags := root.Flags()
	// Everything after the binary belongs to the child.
	flags.SetInterspersed(false)
	flags.StringVarP(&opts.configFile, "config", "c", "", "Path to a memrun config file")
	flags.StringVar(&opts.envFile, "env-file", "", "Load child environment variables from a dotenv file")
	flags.StringVarP(&opts.dir, "dir", "C", "", "Working directory of the child")
	flags.StringVar(&opts.argv0, "argv0", "", "Override argv[0] (defaults to the binary's base name)")
	flags.StringArrayVarP(&opts.env, "env", "e", nil, "Set a child environment variable (KEY=VALUE, repeatable)")
	flags.StringArrayVarP(&opts.unset, "unset", "u", nil, "Remove a variable from the child environment (repeatable)")
	flags.BoolVar(&opts.clearEnv, "clear-env", false, "Start the child with an empty environment")
	flags.BoolVar(&opts.exec, "exec", false, "Replace memrun itself instead of spawning a child")
	flags.StringVar(&opts.stdin, "stdin", "", "Child stdin: inherit, null or piped (overrides config)")
	flags.StringVar(&opts.stdout, "stdout", "", "Child stdout: inherit, null or piped (overrides config)")
	flags.StringVar(&opts.stderr, "stderr", "", "Child stderr: inherit, null or piped (overrides config)")

	root.AddCommand(newVersionCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, opts
}

// Execute runs the CLI entrypoint and exits with the child's status.
func Execute() {
	root := NewRootCmd()
	err := root.ExecuteContext(stdcontext.Background())
	os.Exit(exitCode(err, root.ErrOrStderr()))
}

// exitCode reports err on w and maps it to a process exit code. Errors
// that are not ExitErrors are usage or configuration mistakes.
func exitCode(err error, w io.Writer) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(w, "memrun:", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintln(w, "memrun:", err)
	return 2
}
