// Package circuit tracks the health of a remote dependency from the outcome
// of the calls made to it.
//
// A breaker opens after a run of consecutive failed calls and closes again
// after a run of consecutive successful calls while open. It never blocks a
// call; the owner reports the state (health endpoint, metrics, logs).
package circuit

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// StateChange reports a transition caused by the recorded outcome.
type StateChange struct {
	Opened bool
	Closed bool
}

// Snapshot is a consistent view of the breaker at one instant.
type Snapshot struct {
	State State
	// Failures is the current run of consecutive failed calls.
	Failures int
	// Since is when the breaker last changed state; zero if it never has.
	Since time.Time
}

type Breaker struct {
	name             string
	failureThreshold int
	successThreshold int
	now              func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	since     time.Time
}

type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets how many consecutive successes close an open
// breaker.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: 5,
		successThreshold: 3,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string {
	return b.name
}

// Record feeds the outcome of one call. A nil err counts as a success.
func (b *Breaker) Record(err error) StateChange {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.successes = 0
		if b.state == StateClosed && b.failures >= b.failureThreshold {
			b.transition(StateOpen)
			return StateChange{Opened: true}
		}
		return StateChange{}
	}

	b.failures = 0
	if b.state == StateClosed {
		return StateChange{}
	}
	b.successes++
	if b.successes >= b.successThreshold {
		b.successes = 0
		b.transition(StateClosed)
		return StateChange{Closed: true}
	}
	return StateChange{}
}

func (b *Breaker) transition(to State) {
	b.state = to
	b.since = b.now()
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{State: b.state, Failures: b.failures, Since: b.since}
}
