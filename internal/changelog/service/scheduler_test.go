package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/mock/gomock"

	"policysync/internal/changelog/models"
)

// =============================================================================
// Scheduler
// =============================================================================

func (s *ServiceSuite) TestNewScheduler_Validation() {
	d := s.newDriver()

	_, err := NewScheduler(nil, s.remote, models.ModeJWS)
	s.ErrorContains(err, "driver is required")

	_, err = NewScheduler(d, nil, models.ModeJWS)
	s.ErrorContains(err, "remote is required")

	_, err = NewScheduler(d, s.remote, models.Mode("xml"))
	s.ErrorContains(err, "valid sync mode is required")
}

func (s *ServiceSuite) TestScheduler_RunsImmediatelyAndStopsOnCancel() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	passes := make(chan struct{}, 10)
	s.remote.EXPECT().FetchChanges(gomock.Any(), gomock.Any(), models.ModeJWS).
		Return(&models.Changes{}, nil).AnyTimes()
	s.remote.EXPECT().ListDomainNames(gomock.Any()).
		DoAndReturn(func(context.Context) ([]string, error) {
			passes <- struct{}{}
			return nil, nil
		}).AnyTimes()

	sched, err := NewScheduler(s.newDriver(), s.remote, models.ModeJWS, WithInterval(time.Hour))
	s.Require().NoError(err)

	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	select {
	case <-passes:
	case <-time.After(5 * time.Second):
		s.FailNow("initial pass did not run")
	}

	s.True(sched.Trigger())
	select {
	case <-passes:
	case <-time.After(5 * time.Second):
		s.FailNow("triggered pass did not run")
	}

	cancel()
	select {
	case err := <-done:
		s.True(errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		s.FailNow("scheduler did not stop")
	}
}

func (s *ServiceSuite) TestScheduler_TriggerCoalesces() {
	sched, err := NewScheduler(s.newDriver(), s.remote, models.ModeJWS)
	s.Require().NoError(err)

	s.True(sched.Trigger())
	s.False(sched.Trigger(), "a pass is already queued")
}

func (s *ServiceSuite) TestScheduler_PassTimeoutBoundsRemoteCalls() {
	s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeJWS).
		DoAndReturn(func(ctx context.Context, _ string, _ models.Mode) (*models.Changes, error) {
			deadline, ok := ctx.Deadline()
			s.True(ok)
			s.WithinDuration(time.Now().Add(30*time.Second), deadline, 5*time.Second)
			return &models.Changes{}, nil
		})
	s.remote.EXPECT().ListDomainNames(gomock.Any()).Return(nil, nil)

	sched, err := NewScheduler(s.newDriver(), s.remote, models.ModeJWS, WithPassTimeout(30*time.Second))
	s.Require().NoError(err)
	s.True(sched.RunOnce(s.ctx))
}

func (s *ServiceSuite) TestScheduler_ReportsDriverState() {
	s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeSigned).Return(&models.Changes{}, nil)
	s.remote.EXPECT().ListDomainNames(gomock.Any()).Return(nil, nil)

	sched, err := NewScheduler(s.newDriver(), s.remote, models.ModeSigned)
	s.Require().NoError(err)
	s.Equal(models.ModeSigned, sched.Mode())

	_, ok := sched.LastPass()
	s.False(ok)
	s.False(sched.Running())

	s.True(sched.RunOnce(s.ctx))
	last, ok := sched.LastPass()
	s.Require().True(ok)
	s.True(last.Success)
	s.Equal(models.ModeSigned, last.Mode)
}
