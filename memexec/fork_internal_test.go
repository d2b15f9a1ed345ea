//go:build linux

package memexec

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestNewForkArgs_Record(t *testing.T) {
	a := newForkArgs([]byte{1}, "n", []string{"p", "x"}, []string{"K=V"}, nil, [3]int{-1, -1, -1}, 5)
	if string(a.record[4:]) != controlFooter {
		t.Errorf("record footer %q", a.record[4:])
	}
	if len(a.argv) != 3 || a.argv[2] != nil {
		t.Error("argv must be nil terminated")
	}
	if len(a.envp) != 2 || a.envp[1] != nil {
		t.Error("envp must be nil terminated")
	}
	if a.dir != nil {
		t.Error("dir should be unset")
	}
}

func TestDecodeControl(t *testing.T) {
	tests := []struct {
		name  string
		in    []byte
		errno unix.Errno
		ok    bool
	}{
		{"enoexec", []byte{0, 0, 0, 8, 'N', 'O', 'E', 'X'}, unix.ENOEXEC, true},
		{"large errno", []byte{0, 0, 0x01, 0x02, 'N', 'O', 'E', 'X'}, unix.Errno(0x102), true},
		{"bad footer", []byte{0, 0, 0, 8, 'N', 'O', 'P', 'E'}, 0, false},
		{"short", []byte{0, 0, 0, 8}, 0, false},
		{"long", []byte{0, 0, 0, 8, 'N', 'O', 'E', 'X', 0}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errno, ok := decodeControl(tt.in)
			if ok != tt.ok || errno != tt.errno {
				t.Errorf("decodeControl = (%v, %v), want (%v, %v)", errno, ok, tt.errno, tt.ok)
			}
		})
	}
}
