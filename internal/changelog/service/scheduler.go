package service

import (
	"context"
	"errors"
	"time"

	"policysync/internal/changelog/models"
	"policysync/internal/changelog/ports"
)

const (
	defaultInterval    = time.Minute
	defaultPassTimeout = 5 * time.Minute
)

// Scheduler invokes the driver periodically and on demand. Passes run on a
// single goroutine, so at most one is in flight at a time.
type Scheduler struct {
	driver      *Driver
	remote      ports.Remote
	mode        models.Mode
	interval    time.Duration
	passTimeout time.Duration
	trigger     chan struct{}
}

type SchedulerOption func(s *Scheduler)

func WithInterval(interval time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithPassTimeout bounds each pass, including every remote call it makes.
func WithPassTimeout(timeout time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if timeout > 0 {
			s.passTimeout = timeout
		}
	}
}

func NewScheduler(driver *Driver, remote ports.Remote, mode models.Mode, opts ...SchedulerOption) (*Scheduler, error) {
	if driver == nil {
		return nil, errors.New("driver is required")
	}
	if remote == nil {
		return nil, errors.New("remote is required")
	}
	if !mode.IsValid() {
		return nil, errors.New("valid sync mode is required")
	}
	s := &Scheduler{
		driver:      driver,
		remote:      remote,
		mode:        mode,
		interval:    defaultInterval,
		passTimeout: defaultPassTimeout,
		trigger:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run executes a pass immediately and then on every tick or trigger until
// ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.pass(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.pass(ctx)
		case <-s.trigger:
			s.pass(ctx)
			ticker.Reset(s.interval)
		}
	}
}

// Trigger requests a pass as soon as the current one, if any, finishes.
// Requests made while one is already queued are coalesced; the result
// reports whether this call queued a new pass.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// RunOnce executes a single pass with the configured timeout.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	return s.pass(ctx)
}

func (s *Scheduler) pass(ctx context.Context) bool {
	passCtx, cancel := context.WithTimeout(ctx, s.passTimeout)
	defer cancel()
	return s.driver.RunOnce(passCtx, s.remote, s.mode)
}

func (s *Scheduler) Mode() models.Mode {
	return s.mode
}

// LastPass returns the most recent completed pass.
func (s *Scheduler) LastPass() (PassResult, bool) {
	return s.driver.LastPass()
}

// Running reports whether a pass is in flight.
func (s *Scheduler) Running() bool {
	return s.driver.Running()
}
