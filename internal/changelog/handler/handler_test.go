package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"policysync/internal/changelog/handler/mocks"
	"policysync/internal/changelog/models"
	"policysync/internal/changelog/service"
	"policysync/pkg/platform/audit"
	"policysync/pkg/platform/audit/publisher"
	auditmemory "policysync/pkg/platform/audit/store/memory"
	"policysync/pkg/platform/circuit"
	"policysync/pkg/platform/middleware/admin"
	"policysync/pkg/platform/middleware/request"
	"policysync/pkg/platform/sentinel"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

const testToken = "s3cret"

// Justification for unit tests: the admin surface maps store and scheduler
// state onto HTTP statuses; these cases pin the status codes, the token gate
// and the audit trail of manual triggers.
type HandlerSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	syncer     *mocks.MockSyncer
	replica    *mocks.MockReplica
	breaker    *mocks.MockBreakerReporter
	auditStore *auditmemory.InMemoryStore
	router     http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.syncer = mocks.NewMockSyncer(s.ctrl)
	s.replica = mocks.NewMockReplica(s.ctrl)
	s.breaker = mocks.NewMockBreakerReporter(s.ctrl)
	s.auditStore = auditmemory.NewInMemoryStore()

	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "# metrics\n")
	})
	h, err := New(s.syncer, s.replica, testToken,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(publisher.NewPublisher(s.auditStore)),
		WithBreaker(s.breaker),
		WithMetricsHandler(metricsHandler),
	)
	s.Require().NoError(err)
	s.router = h.Router()
}

func (s *HandlerSuite) do(method, path string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authed {
		req.Header.Set(admin.HeaderAdminToken, testToken)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v))
}

func (s *HandlerSuite) TestNewRequiresCollaborators() {
	_, err := New(nil, s.replica, testToken)
	s.ErrorContains(err, "syncer is required")
	_, err = New(s.syncer, nil, testToken)
	s.ErrorContains(err, "replica is required")
}

func (s *HandlerSuite) TestHealth() {
	s.Run("closed circuit is ok", func() {
		s.breaker.EXPECT().BreakerState().Return(circuit.StateClosed)
		rec := s.do(http.MethodGet, "/healthz", false)

		s.Equal(http.StatusOK, rec.Code)
		s.NotEmpty(rec.Header().Get(request.HeaderRequestID))
		var body map[string]string
		s.decode(rec, &body)
		s.Equal("ok", body["status"])
		s.Equal("closed", body["circuit"])
	})

	s.Run("open circuit degrades without failing", func() {
		s.breaker.EXPECT().BreakerState().Return(circuit.StateOpen)
		rec := s.do(http.MethodGet, "/healthz", false)

		s.Equal(http.StatusOK, rec.Code)
		var body map[string]string
		s.decode(rec, &body)
		s.Equal("degraded", body["status"])
	})
}

func (s *HandlerSuite) TestMetricsIsPublic() {
	rec := s.do(http.MethodGet, "/metrics", false)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "# metrics")
}

func (s *HandlerSuite) TestAdminRoutesRequireToken() {
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/admin/sync/status"},
		{http.MethodPost, "/admin/sync/run"},
		{http.MethodGet, "/admin/domains"},
		{http.MethodGet, "/admin/domains/sports"},
	} {
		s.Run(tc.method+" "+tc.path, func() {
			rec := s.do(tc.method, tc.path, false)
			s.Equal(http.StatusUnauthorized, rec.Code)
		})
	}
}

func (s *HandlerSuite) TestStatus() {
	s.Run("before any pass", func() {
		s.replica.EXPECT().Watermark(gomock.Any()).Return("", nil)
		s.syncer.EXPECT().Mode().Return(models.ModeJWS)
		s.syncer.EXPECT().Running().Return(false)
		s.syncer.EXPECT().LastPass().Return(service.PassResult{}, false)
		s.breaker.EXPECT().BreakerState().Return(circuit.StateClosed)

		rec := s.do(http.MethodGet, "/admin/sync/status", true)
		s.Equal(http.StatusOK, rec.Code)

		var body map[string]any
		s.decode(rec, &body)
		s.Equal("jws", body["mode"])
		s.Nil(body["last_pass"])
		s.Equal("closed", body["circuit"])
	})

	s.Run("with a completed pass", func() {
		finished := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		s.replica.EXPECT().Watermark(gomock.Any()).Return("100", nil)
		s.syncer.EXPECT().Mode().Return(models.ModeSigned)
		s.syncer.EXPECT().Running().Return(true)
		s.syncer.EXPECT().LastPass().Return(service.PassResult{
			ID:         "pass-1",
			Mode:       models.ModeSigned,
			FinishedAt: finished,
			Success:    true,
		}, true)
		s.breaker.EXPECT().BreakerState().Return(circuit.StateClosed)

		rec := s.do(http.MethodGet, "/admin/sync/status", true)
		s.Equal(http.StatusOK, rec.Code)

		var body struct {
			Running   bool                `json:"running"`
			Watermark string              `json:"watermark"`
			LastPass  *service.PassResult `json:"last_pass"`
		}
		s.decode(rec, &body)
		s.True(body.Running)
		s.Equal("100", body.Watermark)
		s.Require().NotNil(body.LastPass)
		s.Equal("pass-1", body.LastPass.ID)
		s.True(body.LastPass.Success)
	})

	s.Run("watermark read failure hides the cause", func() {
		s.replica.EXPECT().Watermark(gomock.Any()).Return("", errors.New("disk on fire"))

		rec := s.do(http.MethodGet, "/admin/sync/status", true)
		s.Equal(http.StatusInternalServerError, rec.Code)
		s.NotContains(rec.Body.String(), "disk on fire")
	})
}

func (s *HandlerSuite) TestRun() {
	s.Run("queues a pass", func() {
		s.auditStore.Clear()
		s.syncer.EXPECT().Trigger().Return(true)

		rec := s.do(http.MethodPost, "/admin/sync/run", true)
		s.Equal(http.StatusAccepted, rec.Code)
		var body map[string]bool
		s.decode(rec, &body)
		s.True(body["queued"])

		events, err := s.auditStore.ListByAction(context.Background(), audit.EventSyncTriggered)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal("queued", events[0].Reason)
		s.NotEmpty(events[0].RequestID)
	})

	s.Run("coalesces with an already queued pass", func() {
		s.auditStore.Clear()
		s.syncer.EXPECT().Trigger().Return(false)

		rec := s.do(http.MethodPost, "/admin/sync/run", true)
		s.Equal(http.StatusAccepted, rec.Code)
		var body map[string]bool
		s.decode(rec, &body)
		s.False(body["queued"])

		events, err := s.auditStore.ListByAction(context.Background(), audit.EventSyncTriggered)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal("coalesced", events[0].Reason)
	})
}

func (s *HandlerSuite) TestListDomains() {
	s.Run("sorted names", func() {
		s.replica.EXPECT().ListNames(gomock.Any()).Return([]string{"weather", "media", "sports"}, nil)

		rec := s.do(http.MethodGet, "/admin/domains", true)
		s.Equal(http.StatusOK, rec.Code)
		var body struct {
			Domains []string `json:"domains"`
			Count   int      `json:"count"`
		}
		s.decode(rec, &body)
		s.Equal([]string{"media", "sports", "weather"}, body.Domains)
		s.Equal(3, body.Count)
	})

	s.Run("empty replica renders an empty list", func() {
		s.replica.EXPECT().ListNames(gomock.Any()).Return(nil, nil)

		rec := s.do(http.MethodGet, "/admin/domains", true)
		s.Equal(http.StatusOK, rec.Code)
		s.JSONEq(`{"domains":[],"count":0}`, rec.Body.String())
	})

	s.Run("store failure", func() {
		s.replica.EXPECT().ListNames(gomock.Any()).Return(nil, errors.New("boom"))

		rec := s.do(http.MethodGet, "/admin/domains", true)
		s.Equal(http.StatusInternalServerError, rec.Code)
	})
}

func (s *HandlerSuite) TestGetDomain() {
	s.Run("returns the stored envelope", func() {
		record := &models.JWSDomain{Protected: "cHJvdA", Payload: "cGF5", Signature: "c2ln"}
		s.replica.EXPECT().Get(gomock.Any(), "sports.api").Return(record, nil)

		rec := s.do(http.MethodGet, "/admin/domains/sports.api", true)
		s.Equal(http.StatusOK, rec.Code)

		var env models.Envelope
		s.decode(rec, &env)
		s.Equal(models.ModeJWS, env.Mode)
		s.Require().NotNil(env.JWS)
		s.Equal("cGF5", env.JWS.Payload)
	})

	s.Run("unknown domain is 404", func() {
		s.replica.EXPECT().Get(gomock.Any(), "gone").Return(nil, sentinel.ErrNotFound)

		rec := s.do(http.MethodGet, "/admin/domains/gone", true)
		s.Equal(http.StatusNotFound, rec.Code)
		var body map[string]string
		s.decode(rec, &body)
		s.Equal("not_found", body["error"])
	})

	s.Run("invalid name never reaches the store", func() {
		rec := s.do(http.MethodGet, "/admin/domains/.hidden", true)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("store failure", func() {
		s.replica.EXPECT().Get(gomock.Any(), "sports").Return(nil, errors.New("io"))

		rec := s.do(http.MethodGet, "/admin/domains/sports", true)
		s.Equal(http.StatusInternalServerError, rec.Code)
	})
}
