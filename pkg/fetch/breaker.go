package fetch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/james-langridge/mars-vista-api-sub000/internal/metrics"
)

// State of a CircuitBreaker.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

const (
	defaultFailureThreshold = 5
	defaultCooldown         = 60 * time.Second
)

// CircuitBreaker stops calling the wrapped fetcher after threshold consecutive transient
// failures. After cooldown it lets exactly one trial call through; success closes the
// circuit, failure re-opens it.
//
// Non-transient failures (e.g. a 404) prove the upstream is reachable and reset the
// consecutive-failure count.
type CircuitBreaker struct {
	name      string
	next      Fetcher
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
}

// NewCircuitBreaker wraps next. name labels the breaker's state gauge.
func NewCircuitBreaker(name string, next Fetcher, threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &CircuitBreaker{
		name:      name,
		next:      next,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// State returns the current state, promoting open to half-open once the cooldown elapsed.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Fetch forwards to the wrapped fetcher unless the circuit is open.
func (b *CircuitBreaker) Fetch(ctx context.Context, url string) (*RawBatch, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}
	batch, err := b.next.Fetch(ctx, url)
	b.record(err)
	return batch, err
}

func (b *CircuitBreaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		b.setState(StateHalfOpen)
		b.trial = true
		return nil
	case StateHalfOpen:
		if b.trial {
			return ErrCircuitOpen
		}
		b.trial = true
		return nil
	default:
		return nil
	}
}

func (b *CircuitBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// caller gave up; says nothing about upstream health
	if errors.Is(err, context.Canceled) {
		if b.state == StateHalfOpen {
			b.trial = false
		}
		return
	}

	failed := IsTransient(err)

	if b.state == StateHalfOpen {
		b.trial = false
		if failed {
			b.open()
			return
		}
		b.failures = 0
		b.setState(StateClosed)
		return
	}

	if !failed {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.open()
	}
}

func (b *CircuitBreaker) open() {
	b.openedAt = b.now()
	b.failures = 0
	b.setState(StateOpen)
}

func (b *CircuitBreaker) setState(s State) {
	b.state = s
	metrics.CircuitState.WithLabelValues(b.name).Set(float64(s))
}
