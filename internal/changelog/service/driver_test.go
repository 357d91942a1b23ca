package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	"policysync/internal/changelog/metrics"
	"policysync/internal/changelog/models"
	"policysync/internal/changelog/service/mocks"
	"policysync/pkg/requestcontext"
)

// =============================================================================
// Sync driver
// =============================================================================

func (s *ServiceSuite) newDriver(opts ...DriverOption) *Driver {
	d, err := NewDriver(s.service, opts...)
	s.Require().NoError(err)
	return d
}

func (s *ServiceSuite) TestNewDriver_RequiresService() {
	_, err := NewDriver(nil)
	s.ErrorContains(err, "service is required")
}

func (s *ServiceSuite) TestRunOnce_Success() {
	rec := jwsRecord(sportsEnabled)
	s.Require().NoError(s.backend.Save(s.ctx, "media", jwsRecord(mediaEnabled)))

	s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeJWS).
		Return(&models.Changes{Records: []models.Record{rec}, Watermark: "100"}, nil)
	s.validator.EXPECT().ValidateJWS(rec).Return(true)
	s.remote.EXPECT().ListDomainNames(gomock.Any()).Return([]string{"sports"}, nil)

	d := s.newDriver()
	_, ok := d.LastPass()
	s.False(ok)

	s.True(d.RunOnce(s.ctx, s.remote, models.ModeJWS))

	s.Equal(map[string]struct{}{"sports": {}}, s.storedNames())
	s.Equal("100", s.watermark())

	last, ok := d.LastPass()
	s.Require().True(ok)
	s.True(last.Success)
	s.NotEmpty(last.ID)
	s.Equal(models.ModeJWS, last.Mode)
	s.Equal(1, last.Updates.Applied)
	s.Equal([]string{"media"}, last.Deletes.Deleted)
	s.Empty(last.Err)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Passes.WithLabelValues(metrics.ResultSuccess)))
}

func (s *ServiceSuite) TestRunOnce_DeletesRunEvenWhenUpdatesFail() {
	s.Require().NoError(s.backend.Save(s.ctx, "media", jwsRecord(mediaEnabled)))

	s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeJWS).Return(nil, errors.New("timeout"))
	s.remote.EXPECT().ListDomainNames(gomock.Any()).Return([]string{}, nil)

	d := s.newDriver()
	s.False(d.RunOnce(s.ctx, s.remote, models.ModeJWS))
	s.Empty(s.storedNames(), "reconciliation still ran")

	last, ok := d.LastPass()
	s.Require().True(ok)
	s.False(last.Success)
	s.True(last.Updates.FetchFailed)
	s.False(last.Deletes.FetchFailed)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Passes.WithLabelValues(metrics.ResultFetchFailed)))
}

func (s *ServiceSuite) TestRunOnce_ReconcileFetchFailure() {
	s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeJWS).Return(&models.Changes{}, nil)
	s.remote.EXPECT().ListDomainNames(gomock.Any()).Return(nil, errors.New("timeout"))

	d := s.newDriver()
	s.False(d.RunOnce(s.ctx, s.remote, models.ModeJWS))

	last, _ := d.LastPass()
	s.True(last.Deletes.FetchFailed)
}

func (s *ServiceSuite) TestRunOnce_StorageFailureIsReported() {
	backend := mocks.NewMockBackend(s.ctrl)
	s.service = s.newService(backend)

	rec := jwsRecord(sportsEnabled)
	backend.EXPECT().Watermark(gomock.Any()).Return("", nil)
	s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeJWS).
		Return(&models.Changes{Records: []models.Record{rec}}, nil)
	s.validator.EXPECT().ValidateJWS(rec).Return(true)
	backend.EXPECT().Save(gomock.Any(), "sports", rec).Return(errors.New("disk full"))
	s.remote.EXPECT().ListDomainNames(gomock.Any()).Return([]string{"sports"}, nil)
	backend.EXPECT().ListNames(gomock.Any()).Return([]string{}, nil)

	d := s.newDriver()
	s.False(d.RunOnce(s.ctx, s.remote, models.ModeJWS))

	last, _ := d.LastPass()
	s.Contains(last.Err, "storage failure")
	s.Contains(last.Err, "disk full")
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Passes.WithLabelValues(metrics.ResultStorageFailed)))
}

func (s *ServiceSuite) TestRunOnce_TagsContextWithPass() {
	var passID string
	s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeJWS).
		DoAndReturn(func(ctx context.Context, _ string, _ models.Mode) (*models.Changes, error) {
			passID = requestcontext.PassID(ctx)
			return &models.Changes{}, nil
		})
	s.remote.EXPECT().ListDomainNames(gomock.Any()).Return(nil, nil)

	d := s.newDriver()
	s.True(d.RunOnce(s.ctx, s.remote, models.ModeJWS))

	last, _ := d.LastPass()
	s.Equal(last.ID, passID)
}

func (s *ServiceSuite) TestRunOnce_RefusesOverlappingPass() {
	entered := make(chan struct{})
	release := make(chan struct{})
	s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeJWS).
		DoAndReturn(func(context.Context, string, models.Mode) (*models.Changes, error) {
			close(entered)
			<-release
			return &models.Changes{}, nil
		})
	s.remote.EXPECT().ListDomainNames(gomock.Any()).Return(nil, nil)

	d := s.newDriver()
	var wg sync.WaitGroup
	wg.Add(1)
	var first bool
	go func() {
		defer wg.Done()
		first = d.RunOnce(s.ctx, s.remote, models.ModeJWS)
	}()

	<-entered
	s.True(d.Running())
	s.False(d.RunOnce(s.ctx, s.remote, models.ModeJWS), "second pass must not start")
	close(release)
	wg.Wait()

	s.True(first)
	s.False(d.Running())
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Passes.WithLabelValues(metrics.ResultSkipped)))
}

func (s *ServiceSuite) TestRunOnce_WithLocker() {
	s.Run("runs while holding the lock and releases it", func() {
		locker := mocks.NewMockLocker(s.ctrl)
		released := false
		locker.EXPECT().TryAcquire(gomock.Any()).Return(func(context.Context) error {
			released = true
			return nil
		}, true, nil)
		s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeJWS).Return(&models.Changes{}, nil)
		s.remote.EXPECT().ListDomainNames(gomock.Any()).Return(nil, nil)

		d := s.newDriver(WithLocker(locker))
		s.True(d.RunOnce(s.ctx, s.remote, models.ModeJWS))
		s.True(released)
	})

	s.Run("skips the pass when another syncer holds the lock", func() {
		locker := mocks.NewMockLocker(s.ctrl)
		locker.EXPECT().TryAcquire(gomock.Any()).Return(nil, false, nil)
		// no remote calls expected

		d := s.newDriver(WithLocker(locker))
		s.False(d.RunOnce(s.ctx, s.remote, models.ModeJWS))
		last, ok := d.LastPass()
		s.Require().True(ok)
		s.False(last.Success)
	})

	s.Run("skips the pass when the lock backend fails", func() {
		locker := mocks.NewMockLocker(s.ctrl)
		locker.EXPECT().TryAcquire(gomock.Any()).Return(nil, false, errors.New("redis down"))

		d := s.newDriver(WithLocker(locker))
		s.False(d.RunOnce(s.ctx, s.remote, models.ModeJWS))
		last, _ := d.LastPass()
		s.Contains(last.Err, "redis down")
	})
}

func (s *ServiceSuite) TestRunOnce_UsesClock() {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeSigned).Return(&models.Changes{}, nil)
	s.remote.EXPECT().ListDomainNames(gomock.Any()).Return(nil, nil)

	d := s.newDriver(WithClock(func() time.Time { return fixed }))
	s.True(d.RunOnce(s.ctx, s.remote, models.ModeSigned))

	last, _ := d.LastPass()
	s.Equal(fixed, last.StartedAt)
	s.Equal(fixed, last.FinishedAt)
}
