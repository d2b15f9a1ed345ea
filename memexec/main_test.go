//go:build linux

package memexec_test

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/memexec/memexec"
)

// helperEnv selects a helper behaviour when the test binary is launched as
// a child image.
const helperEnv = "MEMEXEC_TEST_HELPER"

const (
	floodStdout = 1 << 20
	floodStderr = 10
)

func TestMain(m *testing.M) {
	if mode := os.Getenv(helperEnv); mode != "" {
		os.Exit(runHelper(mode, os.Args[1:]))
	}
	os.Exit(m.Run())
}

func runHelper(mode string, args []string) int {
	switch mode {
	case "cat":
		if _, err := io.Copy(os.Stdout, os.Stdin); err != nil {
			return 2
		}
	case "echo":
		fmt.Fprint(os.Stdout, strings.Join(args, " "))
	case "argv0":
		fmt.Fprint(os.Stdout, os.Args[0])
	case "environ":
		env := os.Environ()
		sort.Strings(env)
		fmt.Fprint(os.Stdout, strings.Join(env, "\n"))
	case "pwd":
		wd, err := os.Getwd()
		if err != nil {
			return 2
		}
		fmt.Fprint(os.Stdout, wd)
	case "exit":
		code, _ := strconv.Atoi(args[0])
		return code
	case "sleep":
		d, _ := time.ParseDuration(args[0])
		time.Sleep(d)
	case "flood":
		half := bytes.Repeat([]byte("o"), floodStdout/2)
		_, _ = os.Stdout.Write(half)
		_, _ = os.Stderr.Write([]byte("eeeee"))
		_, _ = os.Stdout.Write(half)
		_, _ = os.Stderr.Write([]byte("eeeee"))
	case "exec":
		image, err := os.ReadFile("/proc/self/exe")
		if err != nil {
			return 3
		}
		err = memexec.New("replaced", image).Env(helperEnv, "echo").Args(args...).Exec()
		fmt.Fprintln(os.Stderr, err)
		return 4
	default:
		return 99
	}
	return 0
}

var (
	selfOnce  sync.Once
	selfBytes []byte
	selfErr   error
)

// selfImage returns the running test binary, which doubles as the helper.
func selfImage(t *testing.T) []byte {
	t.Helper()
	selfOnce.Do(func() {
		var path string
		if path, selfErr = os.Executable(); selfErr == nil {
			selfBytes, selfErr = os.ReadFile(path)
		}
	})
	if selfErr != nil {
		t.Fatalf("reading test binary: %v", selfErr)
	}
	return selfBytes
}

func helper(t *testing.T, mode string, args ...string) *memexec.Executable {
	t.Helper()
	return memexec.New("helper", selfImage(t)).Env(helperEnv, mode).Args(args...)
}
