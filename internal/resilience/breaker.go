package resilience

import (
	"fmt"
	"sync"
	"time"
)

// State is the operating mode of a circuit breaker.
type State string

const (
	// StateClosed admits calls and counts failures.
	StateClosed State = "closed"
	// StateOpen rejects calls until the reset timeout elapses.
	StateOpen State = "open"
	// StateHalfOpen admits exactly one trial call.
	StateHalfOpen State = "half_open"
)

// OpenError is returned when a breaker rejects a call without
// executing it.
type OpenError struct {
	Name    string
	RetryIn time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open, retry in %s", e.Name, e.RetryIn.Round(time.Millisecond))
}

// BreakerConfig controls when a breaker opens and recovers.
type BreakerConfig struct {
	// FailureThreshold is the number of failures within the monitoring
	// period that opens the breaker.
	FailureThreshold int
	// ResetTimeout is how long an open breaker rejects calls before
	// admitting a half-open trial.
	ResetTimeout time.Duration
	// MonitoringPeriod bounds the window in which failures accumulate.
	MonitoringPeriod time.Duration
}

// DefaultBreakerConfig returns the breaker settings applied when
// configuration does not override them.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		MonitoringPeriod: 60 * time.Second,
	}
}

// Breaker is a circuit breaker protecting one named external
// dependency. The zero value is not usable; construct with NewBreaker.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	now    func() time.Time
	notify func(name string, from, to State)

	mu           sync.Mutex
	state        State
	failures     int
	windowStart  time.Time
	openedAt     time.Time
	trialPending bool
	trialStarted time.Time
}

// BreakerOption is a functional option for configuring a breaker.
type BreakerOption func(*Breaker)

// WithBreakerClock overrides the breaker's time source.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) {
		b.now = now
	}
}

// WithBreakerNotify registers a callback invoked on every state
// transition.
func WithBreakerNotify(notify func(name string, from, to State)) BreakerOption {
	return func(b *Breaker) {
		b.notify = notify
	}
}

// NewBreaker creates a closed breaker for the named dependency.
func NewBreaker(name string, cfg BreakerConfig, opts ...BreakerOption) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultBreakerConfig().ResetTimeout
	}
	if cfg.MonitoringPeriod <= 0 {
		cfg.MonitoringPeriod = DefaultBreakerConfig().MonitoringPeriod
	}

	b := &Breaker{
		name:  name,
		cfg:   cfg,
		now:   time.Now,
		state: StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the dependency name the breaker protects.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reserves the right to execute one call. A nil return means the
// call is admitted and its outcome MUST be reported through
// RecordSuccess or RecordFailure. Rejections return *OpenError.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		readyAt := b.openedAt.Add(b.cfg.ResetTimeout)
		if now.Before(readyAt) {
			return &OpenError{Name: b.name, RetryIn: readyAt.Sub(now)}
		}
		b.transition(StateHalfOpen)
		b.trialPending = true
		b.trialStarted = now
		return nil

	case StateHalfOpen:
		// A trial that never reported its outcome is reclaimed after
		// the reset timeout.
		if b.trialPending && now.Sub(b.trialStarted) > b.cfg.ResetTimeout {
			b.trialPending = false
		}
		if b.trialPending {
			return &OpenError{Name: b.name, RetryIn: b.cfg.ResetTimeout}
		}
		b.trialPending = true
		b.trialStarted = now
		return nil

	default:
		return nil
	}
}

// RecordSuccess reports a successful call. A half-open trial success
// closes the breaker and clears the failure window.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.trialPending = false
		b.failures = 0
		b.transition(StateClosed)
	case StateClosed:
		b.failures = 0
	case StateOpen:
		// Late report from a call admitted before the breaker opened.
	}
}

// RecordFailure reports a failed call. Failures accumulate within the
// monitoring period; reaching the threshold opens the breaker. A
// half-open trial failure reopens it immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case StateClosed:
		if b.failures == 0 || now.Sub(b.windowStart) > b.cfg.MonitoringPeriod {
			b.windowStart = now
			b.failures = 0
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.openedAt = now
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.trialPending = false
		b.openedAt = now
		b.transition(StateOpen)
	case StateOpen:
		// Late report; the breaker is already open.
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.notify != nil {
		b.notify(b.name, from, to)
	}
}
