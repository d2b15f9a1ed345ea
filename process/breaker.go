package process

import (
	"sync"
	"time"

	apperrors "github.com/kbukum/memexec/errors"
)

// BreakerState is the state of a CrashBreaker.
type BreakerState int

const (
	// BreakerClosed lets runs through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects runs until the cooldown elapses.
	BreakerOpen
	// BreakerHalfOpen lets one probe run through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a CrashBreaker.
type BreakerConfig struct {
	Name string
	// MaxFailures is the number of consecutive crashes that opens the breaker.
	MaxFailures int
	// Cooldown is how long the breaker stays open before a probe.
	Cooldown time.Duration
	// OnStateChange is called with the breaker lock held.
	OnStateChange func(name string, from, to BreakerState)
}

// CrashBreaker stops relaunching a program that keeps failing.
type CrashBreaker struct {
	config BreakerConfig
	now    func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	openedAt    time.Time
	probeActive bool
}

// NewCrashBreaker creates a closed breaker.
func NewCrashBreaker(config BreakerConfig) *CrashBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	return &CrashBreaker{config: config, now: time.Now}
}

// Allow reports whether a run may start. It returns a CIRCUIT_OPEN error
// while open, and while a half-open probe is still in flight.
func (b *CrashBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState() {
	case BreakerClosed:
		return nil
	case BreakerHalfOpen:
		if !b.probeActive {
			b.probeActive = true
			return nil
		}
	}
	return apperrors.CircuitOpen(b.config.Name).WithDetail("failures", b.failures)
}

// Record feeds the outcome of an allowed run back into the breaker.
func (b *CrashBreaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !IsCrash(err) {
		if b.currentState() == BreakerHalfOpen && err == nil {
			b.toState(BreakerClosed)
		}
		if err == nil {
			b.failures = 0
		}
		b.probeActive = false
		return
	}

	b.failures++
	switch b.currentState() {
	case BreakerClosed:
		if b.failures >= b.config.MaxFailures {
			b.toState(BreakerOpen)
		}
	case BreakerHalfOpen:
		b.toState(BreakerOpen)
	}
}

// State returns the current state.
func (b *CrashBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// Failures returns the consecutive crash count.
func (b *CrashBreaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the breaker and forgets past crashes.
func (b *CrashBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toState(BreakerClosed)
	b.failures = 0
}

// IsCrash reports whether err counts against the breaker. Cancellation,
// invalid input and breaker rejections say nothing about the program.
func IsCrash(err error) bool {
	if err == nil {
		return false
	}
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		return true
	}
	switch appErr.Code {
	case apperrors.ErrCodeTimeout, apperrors.ErrCodeInvalidInput, apperrors.ErrCodeCircuitOpen:
		return false
	}
	return true
}

func (b *CrashBreaker) currentState() BreakerState {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.config.Cooldown {
		b.toState(BreakerHalfOpen)
	}
	return b.state
}

func (b *CrashBreaker) toState(to BreakerState) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.probeActive = false
	switch to {
	case BreakerOpen:
		b.openedAt = b.now()
	case BreakerClosed:
		b.failures = 0
	}
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.config.Name, from, to)
	}
}
