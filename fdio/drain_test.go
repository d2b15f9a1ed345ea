//go:build linux

package fdio_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/kbukum/memexec/fdio"
)

func TestReadBoth_UnequalVolumes(t *testing.T) {
	tests := []struct {
		name       string
		big, small int
		smallFirst bool
	}{
		{"small stream closes first", 1 << 20, 10, true},
		{"big stream closes first", 1 << 20, 10, false},
		{"both empty", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r1, w1 := newPipe(t)
			r2, w2 := newPipe(t)

			big := bytes.Repeat([]byte("o"), tt.big)
			small := bytes.Repeat([]byte("e"), tt.small)

			go func() {
				half := len(big) / 2
				_, _ = w1.WriteAll(big[:half])
				_, _ = w2.WriteAll(small)
				if tt.smallFirst {
					_ = w2.Close()
				}
				_, _ = w1.WriteAll(big[half:])
				_ = w1.Close()
				_ = w2.Close()
			}()

			type result struct {
				out1, out2 []byte
				err        error
			}
			done := make(chan result, 1)
			go func() {
				o1, o2, err := fdio.ReadBoth(r1, r2)
				done <- result{o1, o2, err}
			}()

			select {
			case res := <-done:
				if res.err != nil {
					t.Fatalf("ReadBoth: %v", res.err)
				}
				if !bytes.Equal(res.out1, big) {
					t.Errorf("stream 1: got %d bytes, want %d", len(res.out1), len(big))
				}
				if !bytes.Equal(res.out2, small) {
					t.Errorf("stream 2: got %q, want %q", res.out2, small)
				}
			case <-time.After(30 * time.Second):
				t.Fatal("ReadBoth deadlocked")
			}
		})
	}
}

func TestReadBoth_ClosedPipe(t *testing.T) {
	r1, _ := newPipe(t)
	r2, _ := newPipe(t)
	_ = r1.Close()
	if _, _, err := fdio.ReadBoth(r1, r2); err == nil {
		t.Fatal("expected error for a closed pipe")
	}
}
