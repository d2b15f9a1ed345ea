package process

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	apperrors "github.com/kbukum/memexec/errors"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(maxFailures int) (*CrashBreaker, *fakeClock, *[]string) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	var transitions []string
	b := NewCrashBreaker(BreakerConfig{
		Name:        "test",
		MaxFailures: maxFailures,
		Cooldown:    time.Minute,
		OnStateChange: func(_ string, from, to BreakerState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	b.now = clock.now
	return b, clock, &transitions
}

var crash = apperrors.NonZeroExit("x", "signal: 11 (SIGSEGV)")

func TestBreakerOpensAfterConsecutiveCrashes(t *testing.T) {
	b, _, _ := newTestBreaker(3)
	b.Record(crash)
	b.Record(crash)
	b.Record(nil)
	if b.Failures() != 0 {
		t.Fatalf("success should reset the count, got %d", b.Failures())
	}
	for i := 0; i < 3; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("closed breaker rejected run %d: %v", i, err)
		}
		b.Record(crash)
	}
	if b.State() != BreakerOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	if err := b.Allow(); !apperrors.IsCode(err, apperrors.ErrCodeCircuitOpen) {
		t.Fatalf("expected CIRCUIT_OPEN, got %v", err)
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b, clock, transitions := newTestBreaker(1)
	b.Record(crash)
	clock.t = clock.t.Add(time.Minute)

	if b.State() != BreakerHalfOpen {
		t.Fatalf("expected half-open after cooldown, got %s", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	if err := b.Allow(); err == nil {
		t.Fatal("second concurrent probe must be rejected")
	}
	b.Record(nil)
	if b.State() != BreakerClosed {
		t.Fatalf("expected closed after a good probe, got %s", b.State())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(*transitions) != len(want) {
		t.Fatalf("expected %v, got %v", want, *transitions)
	}
	for i := range want {
		if (*transitions)[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, *transitions)
		}
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b, clock, _ := newTestBreaker(1)
	b.Record(crash)
	clock.t = clock.t.Add(time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	b.Record(apperrors.ExecFailed("x", unix.ENOEXEC))
	if b.State() != BreakerOpen {
		t.Fatalf("expected open after failed probe, got %s", b.State())
	}
}

func TestBreakerReset(t *testing.T) {
	b, _, _ := newTestBreaker(1)
	b.Record(crash)
	b.Reset()
	if b.State() != BreakerClosed || b.Failures() != 0 {
		t.Fatalf("expected clean closed breaker, got %s/%d", b.State(), b.Failures())
	}
}

func TestIsCrash(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", apperrors.Timeout("x"), false},
		{"invalid input", apperrors.InvalidInput("argv", "nul"), false},
		{"circuit open", apperrors.CircuitOpen("x"), false},
		{"non-zero exit", crash, true},
		{"exec failed", apperrors.ExecFailed("x", unix.ENOENT), true},
		{"plain error", unix.EIO, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsCrash(tc.err); got != tc.want {
				t.Fatalf("IsCrash(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
