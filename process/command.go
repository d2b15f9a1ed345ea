// Package process runs in-memory executables to completion, collecting their
// output, and supervises repeated runs with retry and a crash breaker.
package process

import (
	"io"
	"time"

	"github.com/kbukum/memexec/validation"
)

// DefaultGracePeriod is the delay between SIGTERM and SIGKILL when the
// context of a run ends.
const DefaultGracePeriod = 5 * time.Second

// Command configures one run of an in-memory executable.
type Command struct {
	// Name is argv[0] and the label used in logs, spans and metrics.
	Name string `validate:"required,nonul"`
	// Image is the complete executable file. It is never written to disk.
	Image []byte `validate:"min=1"`
	// Args follow argv[0].
	Args []string `validate:"dive,nonul"`
	// Dir is the working directory of the child. Empty keeps the current one.
	Dir string `validate:"nonul"`
	// Env entries are KEY=VALUE and override os.Environ.
	Env []string `validate:"dive,nonul,envpair"`
	// ClearEnv starts the child from an empty environment.
	ClearEnv bool
	// EnvFile is a dotenv file applied before Env.
	EnvFile string
	// Stdin is copied into the child. Nil connects stdin to /dev/null.
	Stdin io.Reader
	// GracePeriod defaults to DefaultGracePeriod.
	GracePeriod time.Duration `validate:"gte=0"`
	// RunID correlates logs and spans. A random UUID is used when empty.
	RunID string `validate:"omitempty,uuid"`
}

// Validate checks everything that would otherwise fail inside the kernel.
func (c Command) Validate() error {
	return validation.Validate(c)
}

func (c Command) gracePeriod() time.Duration {
	if c.GracePeriod > 0 {
		return c.GracePeriod
	}
	return DefaultGracePeriod
}
