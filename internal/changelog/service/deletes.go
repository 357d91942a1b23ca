package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"policysync/internal/changelog/ports"
	"policysync/pkg/platform/audit"
)

// DeleteReport summarizes one reconciliation run.
type DeleteReport struct {
	FetchFailed bool     `json:"fetch_failed"`
	ServerCount int      `json:"server_count"`
	LocalCount  int      `json:"local_count"`
	Deleted     []string `json:"deleted,omitempty"`
}

// ReconcileDeletes removes every local domain that the remote no longer
// lists. A missing server list is never read as "everything was deleted".
//
// Results follow SynchronizeUpdates: (false, nil) on fetch failure,
// (false, err) wrapping ErrStorage on a local failure, (true, nil) otherwise.
func (s *Service) ReconcileDeletes(ctx context.Context, remote ports.Remote) (bool, error) {
	report, err := s.reconcileDeletes(ctx, remote)
	if err != nil {
		return false, err
	}
	return !report.FetchFailed, nil
}

func (s *Service) reconcileDeletes(ctx context.Context, remote ports.Remote) (report DeleteReport, err error) {
	ctx, span := s.tracer.Start(ctx, "changelog.reconcile_deletes")
	defer func() {
		span.SetAttributes(attribute.Int("domains.deleted", len(report.Deleted)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "storage failure")
		}
		span.End()
	}()

	serverNames, err := s.changelog.ServerDomainList(ctx, remote)
	if err != nil {
		if errors.Is(err, ErrFetch) {
			s.logger.WarnContext(ctx, "fetch failure: unable to retrieve server domain list", "error", err)
			span.SetStatus(codes.Error, "fetch failure")
			return DeleteReport{FetchFailed: true}, nil
		}
		return report, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	report.ServerCount = len(serverNames)

	localNames, err := s.changelog.ListNames(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: list local domains: %w", ErrStorage, err)
	}
	report.LocalCount = len(localNames)
	sort.Strings(localNames)

	for _, name := range localNames {
		if _, ok := serverNames[name]; ok {
			continue
		}
		if err := s.changelog.Remove(ctx, name); err != nil {
			return report, fmt.Errorf("%w: remove domain %q: %w", ErrStorage, name, err)
		}
		report.Deleted = append(report.Deleted, name)
		s.incrementDeleted()
		s.logAudit(ctx, audit.EventDomainDeleted, "domain", name)
	}

	s.logger.InfoContext(ctx, "domain deletions reconciled",
		"server_domains", report.ServerCount,
		"local_domains", report.LocalCount,
		"deleted", len(report.Deleted),
	)
	return report, nil
}
