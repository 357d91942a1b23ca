// Package handler exposes the syncer's admin HTTP surface: liveness, pass
// status, manual triggering and read access to the local replica.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"policysync/internal/changelog/models"
	"policysync/internal/changelog/ports"
	"policysync/internal/changelog/service"
	"policysync/internal/changelog/store"
	dErrors "policysync/pkg/domain-errors"
	"policysync/pkg/platform/audit"
	"policysync/pkg/platform/circuit"
	"policysync/pkg/platform/httputil"
	"policysync/pkg/platform/middleware/admin"
	"policysync/pkg/platform/middleware/request"
	"policysync/pkg/platform/middleware/requesttime"
	"policysync/pkg/platform/sentinel"
)

// Syncer is the scheduling side of the sync loop.
type Syncer interface {
	Trigger() bool
	LastPass() (service.PassResult, bool)
	Running() bool
	Mode() models.Mode
}

// Replica is the read side of the local store.
type Replica interface {
	Get(ctx context.Context, name string) (models.Record, error)
	ListNames(ctx context.Context) ([]string, error)
	Watermark(ctx context.Context) (string, error)
}

// BreakerReporter exposes the remote's circuit state.
type BreakerReporter interface {
	BreakerState() circuit.State
}

type Handler struct {
	syncer         Syncer
	replica        Replica
	breaker        BreakerReporter
	metrics        http.Handler
	adminToken     string
	logger         *slog.Logger
	auditPublisher ports.AuditPublisher
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(h *Handler) {
		h.auditPublisher = publisher
	}
}

func WithBreaker(breaker BreakerReporter) Option {
	return func(h *Handler) {
		h.breaker = breaker
	}
}

// WithMetricsHandler serves metrics at /metrics without the admin token.
func WithMetricsHandler(metrics http.Handler) Option {
	return func(h *Handler) {
		h.metrics = metrics
	}
}

func New(syncer Syncer, replica Replica, adminToken string, opts ...Option) (*Handler, error) {
	if syncer == nil {
		return nil, errors.New("syncer is required")
	}
	if replica == nil {
		return nil, errors.New("replica is required")
	}
	h := &Handler{
		syncer:     syncer,
		replica:    replica,
		adminToken: adminToken,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Router builds the chi router with every route registered.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

// Register registers the admin routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Use(chimw.Recoverer)
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", h.handleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/admin", func(ar chi.Router) {
		ar.Use(admin.RequireAdminToken(h.adminToken, h.logger))
		ar.Use(chimw.Timeout(30 * time.Second))
		ar.Get("/sync/status", h.handleStatus)
		ar.Post("/sync/run", h.handleRun)
		ar.Get("/domains", h.handleListDomains)
		ar.Get("/domains/{name}", h.handleGetDomain)
	})
}

type healthResponse struct {
	Status  string `json:"status"`
	Circuit string `json:"circuit,omitempty"`
}

// handleHealth reports liveness; an open circuit degrades but never fails it.
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.breaker != nil {
		state := h.breaker.BreakerState()
		resp.Circuit = state.String()
		if state == circuit.StateOpen {
			resp.Status = "degraded"
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type statusResponse struct {
	Mode      models.Mode         `json:"mode"`
	Running   bool                `json:"running"`
	Circuit   string              `json:"circuit,omitempty"`
	Watermark string              `json:"watermark"`
	LastPass  *service.PassResult `json:"last_pass"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	watermark, err := h.replica.Watermark(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read watermark",
			"request_id", request.GetRequestID(r),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read watermark"))
		return
	}

	resp := statusResponse{
		Mode:      h.syncer.Mode(),
		Running:   h.syncer.Running(),
		Watermark: watermark,
	}
	if last, ok := h.syncer.LastPass(); ok {
		resp.LastPass = &last
	}
	if h.breaker != nil {
		resp.Circuit = h.breaker.BreakerState().String()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type runResponse struct {
	Queued bool `json:"queued"`
}

// handleRun queues a pass. A pass already queued absorbs the request.
func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	queued := h.syncer.Trigger()
	reason := "queued"
	if !queued {
		reason = "coalesced"
	}
	ports.LogAudit(ctx, h.logger, h.auditPublisher, audit.EventSyncTriggered, "reason", reason)
	httputil.WriteJSON(w, http.StatusAccepted, runResponse{Queued: queued})
}

type domainsResponse struct {
	Domains []string `json:"domains"`
	Count   int      `json:"count"`
}

func (h *Handler) handleListDomains(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	names, err := h.replica.ListNames(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list domains",
			"request_id", request.GetRequestID(r),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list domains"))
		return
	}
	sort.Strings(names)
	if names == nil {
		names = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, domainsResponse{Domains: names, Count: len(names)})
}

// handleGetDomain returns the stored envelope exactly as persisted.
func (h *Handler) handleGetDomain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")
	if err := store.ValidateName(name); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid domain name"))
		return
	}

	record, err := h.replica.Get(ctx, name)
	if errors.Is(err, sentinel.ErrNotFound) {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotFound, "domain not found"))
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read domain",
			"request_id", request.GetRequestID(r),
			"domain", name,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read domain"))
		return
	}

	env, err := models.Wrap(record)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode domain"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, env)
}
