package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"policysync/internal/changelog/metrics"
	"policysync/internal/changelog/ports"
	"policysync/internal/changelog/store"
	"policysync/pkg/platform/audit"
)

var (
	// ErrFetch marks a remote failure; a pass never treats it as an empty result.
	ErrFetch = store.ErrFetch

	// ErrStorage marks a local write or delete that could not be completed.
	// It is fatal for the pass and reported separately from fetch failures.
	ErrStorage = errors.New("change-log storage failure")
)

const tracerName = "policysync/internal/changelog"

// Service runs the two halves of a sync pass against one local replica:
// incremental updates and deletion reconciliation.
type Service struct {
	changelog      *store.ChangeLog
	validator      ports.Validator
	logger         *slog.Logger
	auditPublisher ports.AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New constructs a Service over the given replica.
func New(changelog *store.ChangeLog, validator ports.Validator, opts ...Option) (*Service, error) {
	if changelog == nil {
		return nil, fmt.Errorf("changelog is required")
	}
	if validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	s := &Service{
		changelog: changelog,
		validator: validator,
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attrs ...any) {
	ports.LogAudit(ctx, s.logger, s.auditPublisher, event, attrs...)
}

func (s *Service) incrementApplied(mode string) {
	if s.metrics != nil {
		s.metrics.IncrementApplied(mode)
	}
}

func (s *Service) incrementRejected(mode string) {
	if s.metrics != nil {
		s.metrics.IncrementRejected(mode)
	}
}

func (s *Service) incrementDeleted() {
	if s.metrics != nil {
		s.metrics.IncrementDeleted()
	}
}
