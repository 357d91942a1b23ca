package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"policysync/internal/changelog/metrics"
	"policysync/internal/changelog/models"
	"policysync/internal/changelog/ports"
	"policysync/pkg/requestcontext"
)

// PassResult describes one completed sync pass.
type PassResult struct {
	ID         string       `json:"id"`
	Mode       models.Mode  `json:"mode"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Updates    UpdateReport `json:"updates"`
	Deletes    DeleteReport `json:"deletes"`
	Err        string       `json:"error,omitempty"`
	Success    bool         `json:"success"`
}

// Driver is the externally invoked unit: one call runs updates and then
// deletions and folds both outcomes into a single boolean.
type Driver struct {
	service *Service
	locker  ports.Locker
	now     func() time.Time

	running sync.Mutex

	mu   sync.RWMutex
	last *PassResult
}

type DriverOption func(d *Driver)

// WithLocker makes every pass hold a lock shared with other syncers using
// the same store.
func WithLocker(locker ports.Locker) DriverOption {
	return func(d *Driver) {
		d.locker = locker
	}
}

func WithClock(now func() time.Time) DriverOption {
	return func(d *Driver) {
		d.now = now
	}
}

func NewDriver(service *Service, opts ...DriverOption) (*Driver, error) {
	if service == nil {
		return nil, errors.New("service is required")
	}
	d := &Driver{service: service, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// RunOnce performs one pass. The deletion phase runs even when the update
// phase failed so deletions are never starved by an update outage. Errors
// never escape: they are logged and reflected in the result and LastPass.
// A call made while another pass of this driver is running returns false
// immediately.
func (d *Driver) RunOnce(ctx context.Context, remote ports.Remote, mode models.Mode) bool {
	logger := d.service.logger
	if !d.running.TryLock() {
		logger.WarnContext(ctx, "sync pass skipped: pass already in flight")
		d.observe(metrics.ResultSkipped, d.now())
		return false
	}
	defer d.running.Unlock()

	start := d.now()
	result := PassResult{ID: uuid.NewString(), Mode: mode, StartedAt: start}

	ctx = requestcontext.WithPassID(ctx, result.ID)
	ctx = requestcontext.WithTime(ctx, start)
	ctx, span := d.service.tracer.Start(ctx, "changelog.pass", trace.WithAttributes(
		attribute.String("pass.id", result.ID),
		attribute.String("sync.mode", mode.String()),
	))
	defer span.End()

	logger = logger.With("pass_id", result.ID)

	if d.locker != nil {
		release, ok, err := d.locker.TryAcquire(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "sync pass skipped: pass lock unavailable", "error", err)
			span.SetStatus(codes.Error, "lock unavailable")
			d.finish(&result, metrics.ResultSkipped, err)
			return false
		}
		if !ok {
			logger.InfoContext(ctx, "sync pass skipped: another syncer holds the pass lock")
			d.finish(&result, metrics.ResultSkipped, nil)
			return false
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.WarnContext(ctx, "failed to release pass lock", "error", err)
			}
		}()
	}

	updates, updateErr := d.service.synchronizeUpdates(ctx, remote, mode)
	deletes, deleteErr := d.service.reconcileDeletes(ctx, remote)
	result.Updates = updates
	result.Deletes = deletes

	passErr := errors.Join(updateErr, deleteErr)
	switch {
	case passErr != nil:
		logger.ErrorContext(ctx, "storage failure: sync pass aborted", "error", passErr)
		span.RecordError(passErr)
		span.SetStatus(codes.Error, "storage failure")
		d.finish(&result, metrics.ResultStorageFailed, passErr)
	case updates.FetchFailed || deletes.FetchFailed:
		logger.WarnContext(ctx, "fetch failure: sync pass incomplete",
			"updates_fetched", !updates.FetchFailed,
			"deletes_fetched", !deletes.FetchFailed,
		)
		span.SetStatus(codes.Error, "fetch failure")
		d.finish(&result, metrics.ResultFetchFailed, ErrFetch)
	default:
		result.Success = true
		logger.InfoContext(ctx, "sync pass completed",
			"applied", updates.Applied,
			"rejected", updates.Rejected,
			"deleted", len(deletes.Deleted),
			"duration", d.now().Sub(start),
		)
		d.finish(&result, metrics.ResultSuccess, nil)
	}
	return result.Success
}

func (d *Driver) finish(result *PassResult, outcome string, err error) {
	result.FinishedAt = d.now()
	if err != nil {
		result.Err = err.Error()
	}
	d.observe(outcome, result.StartedAt)

	snapshot := *result
	d.mu.Lock()
	d.last = &snapshot
	d.mu.Unlock()
}

func (d *Driver) observe(outcome string, start time.Time) {
	if d.service.metrics != nil {
		d.service.metrics.ObservePass(outcome, start)
	}
}

// LastPass returns the most recent pass result, if any pass has finished.
func (d *Driver) LastPass() (PassResult, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.last == nil {
		return PassResult{}, false
	}
	return *d.last, true
}

// Running reports whether a pass is in flight.
func (d *Driver) Running() bool {
	if d.running.TryLock() {
		d.running.Unlock()
		return false
	}
	return true
}
