package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	"policysync/internal/changelog/service/mocks"
	"policysync/pkg/platform/audit"
)

// =============================================================================
// Deletion reconciliation
// =============================================================================

func (s *ServiceSuite) TestReconcileDeletes_RemovesDomainsUnknownToServer() {
	sports := jwsRecord(sportsEnabled)
	s.Require().NoError(s.backend.Save(s.ctx, "sports", sports))
	s.Require().NoError(s.backend.Save(s.ctx, "media", jwsRecord(mediaEnabled)))

	s.remote.EXPECT().ListDomainNames(gomock.Any()).Return([]string{"sports"}, nil)

	ok, err := s.service.ReconcileDeletes(s.ctx, s.remote)
	s.Require().NoError(err)
	s.True(ok)

	s.Equal(map[string]struct{}{"sports": {}}, s.storedNames())
	s.Equal(sports, s.stored("sports"), "domains the server still lists are untouched")

	deleted := s.auditActions(audit.EventDomainDeleted)
	s.Require().Len(deleted, 1)
	s.Equal("media", deleted[0].Subject)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.DomainsDeleted))
}

func (s *ServiceSuite) TestReconcileDeletes_NothingToRemove() {
	s.Require().NoError(s.backend.Save(s.ctx, "sports", jwsRecord(sportsEnabled)))
	s.remote.EXPECT().ListDomainNames(gomock.Any()).Return([]string{"sports", "media"}, nil)

	ok, err := s.service.ReconcileDeletes(s.ctx, s.remote)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(map[string]struct{}{"sports": {}}, s.storedNames())
}

func (s *ServiceSuite) TestReconcileDeletes_EmptyServerListClearsStore() {
	s.Require().NoError(s.backend.Save(s.ctx, "sports", jwsRecord(sportsEnabled)))
	s.remote.EXPECT().ListDomainNames(gomock.Any()).Return([]string{}, nil)

	ok, err := s.service.ReconcileDeletes(s.ctx, s.remote)
	s.Require().NoError(err)
	s.True(ok)
	s.Empty(s.storedNames())
}

func (s *ServiceSuite) TestReconcileDeletes_FetchFailureRemovesNothing() {
	s.Require().NoError(s.backend.Save(s.ctx, "sports", jwsRecord(sportsEnabled)))
	s.Require().NoError(s.backend.Save(s.ctx, "media", jwsRecord(mediaEnabled)))
	s.remote.EXPECT().ListDomainNames(gomock.Any()).Return(nil, errors.New("503 service unavailable"))

	ok, err := s.service.ReconcileDeletes(s.ctx, s.remote)
	s.NoError(err)
	s.False(ok)
	s.Len(s.storedNames(), 2)
	s.Empty(s.auditActions(audit.EventDomainDeleted))
}

func (s *ServiceSuite) TestReconcileDeletes_StorageFailure() {
	s.Run("listing local names fails", func() {
		backend := mocks.NewMockBackend(s.ctrl)
		svc := s.newService(backend)

		s.remote.EXPECT().ListDomainNames(gomock.Any()).Return([]string{"sports"}, nil)
		backend.EXPECT().ListNames(gomock.Any()).Return(nil, errors.New("i/o error"))

		ok, err := svc.ReconcileDeletes(s.ctx, s.remote)
		s.False(ok)
		s.ErrorIs(err, ErrStorage)
	})

	s.Run("removal fails", func() {
		backend := mocks.NewMockBackend(s.ctrl)
		svc := s.newService(backend)

		s.remote.EXPECT().ListDomainNames(gomock.Any()).Return([]string{"sports"}, nil)
		backend.EXPECT().ListNames(gomock.Any()).Return([]string{"sports", "media"}, nil)
		backend.EXPECT().Remove(gomock.Any(), "media").Return(errors.New("permission denied"))

		ok, err := svc.ReconcileDeletes(s.ctx, s.remote)
		s.False(ok)
		s.ErrorIs(err, ErrStorage)
		s.ErrorContains(err, "media")
	})
}
