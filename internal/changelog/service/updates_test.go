package service

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	"policysync/internal/changelog/models"
	"policysync/internal/changelog/service/mocks"
	"policysync/pkg/platform/audit"
)

const (
	sportsEnabled  = `{"name":"sports","enabled":true,"modified":"2026-01-02T03:04:05.000Z"}`
	sportsDisabled = `{"name":"sports","enabled":false,"modified":"2026-01-03T03:04:05.000Z"}`
	mediaEnabled   = `{"name":"media"}`
)

// =============================================================================
// Incremental updates
// =============================================================================

func (s *ServiceSuite) TestSynchronizeUpdates_AppliesValidRecord() {
	rec := jwsRecord(sportsEnabled)
	s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeJWS).
		Return(&models.Changes{Records: []models.Record{rec}, Watermark: "100"}, nil)
	s.validator.EXPECT().ValidateJWS(rec).Return(true)

	ok, err := s.service.SynchronizeUpdates(s.ctx, s.remote, models.ModeJWS)
	s.Require().NoError(err)
	s.True(ok)

	s.Equal(rec, s.stored("sports"))
	s.Equal("100", s.watermark())
	s.Len(s.auditActions(audit.EventDomainApplied), 1)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.RecordsApplied.WithLabelValues("jws")))
}

func (s *ServiceSuite) TestSynchronizeUpdates_PassesStoredWatermark() {
	s.Require().NoError(s.backend.SetWatermark(s.ctx, "100"))
	s.remote.EXPECT().FetchChanges(gomock.Any(), "100", models.ModeSigned).
		Return(&models.Changes{Watermark: "150"}, nil)

	ok, err := s.service.SynchronizeUpdates(s.ctx, s.remote, models.ModeSigned)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("150", s.watermark())
}

func (s *ServiceSuite) TestSynchronizeUpdates_FetchFailure() {
	prior := jwsRecord(sportsEnabled)
	s.Require().NoError(s.backend.Save(s.ctx, "sports", prior))
	s.Require().NoError(s.backend.SetWatermark(s.ctx, "100"))

	s.remote.EXPECT().FetchChanges(gomock.Any(), "100", models.ModeJWS).
		Return(nil, errors.New("connection reset"))

	ok, err := s.service.SynchronizeUpdates(s.ctx, s.remote, models.ModeJWS)
	s.NoError(err, "fetch failures are not storage failures")
	s.False(ok)

	s.Equal("100", s.watermark())
	s.Equal(prior, s.stored("sports"))
}

func (s *ServiceSuite) TestSynchronizeUpdates_EmptyBatch() {
	s.Run("advances to the reported watermark", func() {
		s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeJWS).
			Return(&models.Changes{Watermark: "100"}, nil)

		ok, err := s.service.SynchronizeUpdates(s.ctx, s.remote, models.ModeJWS)
		s.Require().NoError(err)
		s.True(ok)
		s.Equal("100", s.watermark())
	})

	s.Run("keeps the watermark when none is reported", func() {
		s.remote.EXPECT().FetchChanges(gomock.Any(), "100", models.ModeJWS).
			Return(&models.Changes{}, nil)

		ok, err := s.service.SynchronizeUpdates(s.ctx, s.remote, models.ModeJWS)
		s.Require().NoError(err)
		s.True(ok)
		s.Equal("100", s.watermark())
	})
}

func (s *ServiceSuite) TestSynchronizeUpdates_RejectedRecordNeverStored() {
	prior := jwsRecord(sportsEnabled)
	s.Require().NoError(s.backend.Save(s.ctx, "sports", prior))

	forged := jwsRecord(sportsDisabled)
	s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeJWS).
		Return(&models.Changes{Records: []models.Record{forged}, Watermark: "100"}, nil)
	s.validator.EXPECT().ValidateJWS(forged).Return(false)

	ok, err := s.service.SynchronizeUpdates(s.ctx, s.remote, models.ModeJWS)
	s.Require().NoError(err)
	s.True(ok, "record rejection does not fail the run")

	s.Equal(prior, s.stored("sports"))
	s.Empty(s.watermark(), "nothing applied, so the watermark stays")

	rejected := s.auditActions(audit.EventDomainRejected)
	s.Require().Len(rejected, 1)
	s.Equal("sports", rejected[0].Subject)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.RecordsRejected.WithLabelValues("jws")))
}

func (s *ServiceSuite) TestSynchronizeUpdates_WatermarkCoversRejectedRecords() {
	good := jwsRecord(mediaEnabled)
	bad := jwsRecord(sportsEnabled)
	s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeJWS).
		Return(&models.Changes{Records: []models.Record{bad, good}, Watermark: "200"}, nil)
	s.validator.EXPECT().ValidateJWS(bad).Return(false)
	s.validator.EXPECT().ValidateJWS(good).Return(true)

	ok, err := s.service.SynchronizeUpdates(s.ctx, s.remote, models.ModeJWS)
	s.Require().NoError(err)
	s.True(ok)

	s.Equal(map[string]struct{}{"media": {}}, s.storedNames())
	s.Equal("200", s.watermark())
}

func (s *ServiceSuite) TestSynchronizeUpdates_UndecodablePayloadIsRejected() {
	rec := jwsRecord("not json")
	s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeJWS).
		Return(&models.Changes{Records: []models.Record{rec}, Watermark: "100"}, nil)
	s.validator.EXPECT().ValidateJWS(rec).Return(true)

	ok, err := s.service.SynchronizeUpdates(s.ctx, s.remote, models.ModeJWS)
	s.Require().NoError(err)
	s.True(ok)

	s.Empty(s.storedNames())
	s.Empty(s.watermark())
	s.Len(s.auditActions(audit.EventDomainRejected), 1)
}

func (s *ServiceSuite) TestSynchronizeUpdates_SignedDomainWithoutNameIsRejected() {
	data, err := models.DecodeDomainData([]byte(`{"enabled":true}`))
	s.Require().NoError(err)
	rec := &models.SignedDomain{Domain: *data, Signature: "sig", KeyID: "0"}

	s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeSigned).
		Return(&models.Changes{Records: []models.Record{rec}}, nil)
	s.validator.EXPECT().ValidateSigned(rec).Return(true)

	ok, err := s.service.SynchronizeUpdates(s.ctx, s.remote, models.ModeSigned)
	s.Require().NoError(err)
	s.True(ok)
	s.Empty(s.storedNames())
}

func (s *ServiceSuite) TestSynchronizeUpdates_DisabledDomainReplacesPrior() {
	s.Require().NoError(s.backend.Save(s.ctx, "sports", jwsRecord(sportsEnabled)))

	disabled := jwsRecord(sportsDisabled)
	s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeJWS).
		Return(&models.Changes{Records: []models.Record{disabled}, Watermark: "300"}, nil)
	s.validator.EXPECT().ValidateJWS(disabled).Return(true)

	ok, err := s.service.SynchronizeUpdates(s.ctx, s.remote, models.ModeJWS)
	s.Require().NoError(err)
	s.True(ok)

	s.Equal(disabled, s.stored("sports"))
	s.Len(s.auditActions(audit.EventDomainDisabled), 1)
}

func (s *ServiceSuite) TestSynchronizeUpdates_DisabledDomainRemovedBeforeSave() {
	backend := mocks.NewMockBackend(s.ctrl)
	svc := s.newService(backend)

	disabled := jwsRecord(sportsDisabled)
	s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeJWS).
		Return(&models.Changes{Records: []models.Record{disabled}}, nil)
	s.validator.EXPECT().ValidateJWS(disabled).Return(true)

	gomock.InOrder(
		backend.EXPECT().Watermark(gomock.Any()).Return("", nil),
		backend.EXPECT().Remove(gomock.Any(), "sports").Return(nil),
		backend.EXPECT().Save(gomock.Any(), "sports", disabled).Return(nil),
	)

	ok, err := svc.SynchronizeUpdates(s.ctx, s.remote, models.ModeJWS)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *ServiceSuite) TestSynchronizeUpdates_LastRecordWins() {
	first := jwsRecord(`{"name":"sports","modified":"1"}`)
	second := jwsRecord(`{"name":"sports","modified":"2"}`)
	s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeJWS).
		Return(&models.Changes{Records: []models.Record{first, second}, Watermark: "100"}, nil)
	s.validator.EXPECT().ValidateJWS(gomock.Any()).Return(true).Times(2)

	ok, err := s.service.SynchronizeUpdates(s.ctx, s.remote, models.ModeJWS)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(second, s.stored("sports"))
}

func (s *ServiceSuite) TestSynchronizeUpdates_StorageFailure() {
	backend := mocks.NewMockBackend(s.ctrl)
	svc := s.newService(backend)

	first := jwsRecord(sportsEnabled)
	second := jwsRecord(mediaEnabled)
	s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeJWS).
		Return(&models.Changes{Records: []models.Record{first, second}, Watermark: "100"}, nil)
	s.validator.EXPECT().ValidateJWS(first).Return(true)

	backend.EXPECT().Watermark(gomock.Any()).Return("", nil)
	backend.EXPECT().Save(gomock.Any(), "sports", first).Return(errors.New("disk full"))
	// no further saves and no SetWatermark

	ok, err := svc.SynchronizeUpdates(s.ctx, s.remote, models.ModeJWS)
	s.False(ok)
	s.ErrorIs(err, ErrStorage)
	s.ErrorContains(err, "disk full")
}

func (s *ServiceSuite) TestSynchronizeUpdates_WatermarkWriteFailure() {
	backend := mocks.NewMockBackend(s.ctrl)
	svc := s.newService(backend)

	backend.EXPECT().Watermark(gomock.Any()).Return("", nil)
	s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeJWS).
		Return(&models.Changes{Watermark: "100"}, nil)
	backend.EXPECT().SetWatermark(gomock.Any(), "100").Return(errors.New("read-only file system"))

	ok, err := svc.SynchronizeUpdates(s.ctx, s.remote, models.ModeJWS)
	s.False(ok)
	s.ErrorIs(err, ErrStorage)
}

func (s *ServiceSuite) TestSynchronizeUpdates_WatermarkReadFailure() {
	backend := mocks.NewMockBackend(s.ctrl)
	svc := s.newService(backend)

	backend.EXPECT().Watermark(gomock.Any()).Return("", errors.New("permission denied"))

	ok, err := svc.SynchronizeUpdates(context.Background(), s.remote, models.ModeJWS)
	s.False(ok)
	s.ErrorIs(err, ErrStorage)
	s.NotErrorIs(err, ErrFetch)
}
