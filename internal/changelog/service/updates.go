package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"policysync/internal/changelog/models"
	"policysync/internal/changelog/ports"
	"policysync/internal/changelog/validation"
	"policysync/pkg/platform/audit"
)

// UpdateReport summarizes one incremental update run.
type UpdateReport struct {
	FetchFailed       bool   `json:"fetch_failed"`
	Received          int    `json:"received"`
	Applied           int    `json:"applied"`
	Disabled          int    `json:"disabled"`
	Rejected          int    `json:"rejected"`
	Watermark         string `json:"watermark,omitempty"`
	WatermarkAdvanced bool   `json:"watermark_advanced"`
}

// SynchronizeUpdates fetches the domains changed since the stored watermark,
// applies every record that validates and advances the watermark.
//
// It returns (false, nil) when the remote could not be reached, (false, err)
// with err wrapping ErrStorage when the replica could not be written, and
// (true, nil) otherwise. Rejected records never fail the run.
func (s *Service) SynchronizeUpdates(ctx context.Context, remote ports.Remote, mode models.Mode) (bool, error) {
	report, err := s.synchronizeUpdates(ctx, remote, mode)
	if err != nil {
		return false, err
	}
	return !report.FetchFailed, nil
}

func (s *Service) synchronizeUpdates(ctx context.Context, remote ports.Remote, mode models.Mode) (report UpdateReport, err error) {
	ctx, span := s.tracer.Start(ctx, "changelog.synchronize_updates",
		trace.WithAttributes(attribute.String("sync.mode", mode.String())))
	defer func() {
		span.SetAttributes(
			attribute.Int("records.received", report.Received),
			attribute.Int("records.applied", report.Applied),
			attribute.Int("records.rejected", report.Rejected),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "storage failure")
		}
		span.End()
	}()

	changes, err := s.changelog.UpdatedRecords(ctx, remote, mode)
	if err != nil {
		if errors.Is(err, ErrFetch) {
			s.logger.WarnContext(ctx, "fetch failure: unable to retrieve updated domains",
				"mode", mode.String(),
				"error", err,
			)
			span.SetStatus(codes.Error, "fetch failure")
			return UpdateReport{FetchFailed: true}, nil
		}
		return report, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	report.Received = len(changes.Records)
	report.Watermark = changes.Watermark
	anySucceeded := len(changes.Records) == 0

	for _, record := range changes.Records {
		applied, disabled, err := s.applyRecord(ctx, record)
		if err != nil {
			return report, err
		}
		if !applied {
			report.Rejected++
			continue
		}
		report.Applied++
		if disabled {
			report.Disabled++
		}
		anySucceeded = true
	}

	// The watermark covers the whole batch, including records rejected above.
	if anySucceeded && changes.Watermark != "" {
		if err := s.changelog.SetWatermark(ctx, changes.Watermark); err != nil {
			return report, fmt.Errorf("%w: save watermark: %w", ErrStorage, err)
		}
		report.WatermarkAdvanced = true
		s.logAudit(ctx, audit.EventWatermarkAdvanced,
			"watermark", changes.Watermark,
			"applied", report.Applied,
			"rejected", report.Rejected,
		)
	}

	s.logger.InfoContext(ctx, "domain updates synchronized",
		"mode", mode.String(),
		"received", report.Received,
		"applied", report.Applied,
		"rejected", report.Rejected,
		"watermark", changes.Watermark,
	)
	return report, nil
}

// applyRecord validates and stores one record. It reports applied=false for
// a rejected record; an error is always a storage failure.
func (s *Service) applyRecord(ctx context.Context, record models.Record) (applied bool, disabled bool, err error) {
	mode := recordMode(record)

	if !validation.Validate(s.validator, record) {
		s.reject(ctx, record, mode, "signature validation failed")
		return false, false, nil
	}
	data, err := validation.ExtractDomainData(record)
	if err != nil {
		s.reject(ctx, record, mode, err.Error())
		return false, false, nil
	}

	if data.IsDisabled() {
		// Drop the previous record first so nothing of it survives a merge.
		if err := s.changelog.Remove(ctx, data.Name); err != nil {
			return false, false, fmt.Errorf("%w: remove disabled domain %q: %w", ErrStorage, data.Name, err)
		}
	}
	if err := s.changelog.Save(ctx, data.Name, record); err != nil {
		return false, false, fmt.Errorf("%w: save domain %q: %w", ErrStorage, data.Name, err)
	}

	s.incrementApplied(mode)
	if data.IsDisabled() {
		s.logAudit(ctx, audit.EventDomainDisabled, "domain", data.Name, "mode", mode)
		return true, true, nil
	}
	s.logAudit(ctx, audit.EventDomainApplied, "domain", data.Name, "mode", mode)
	return true, false, nil
}

func (s *Service) reject(ctx context.Context, record models.Record, mode, reason string) {
	s.incrementRejected(mode)
	s.logAudit(ctx, audit.EventDomainRejected,
		"domain", recordName(record),
		"mode", mode,
		"reason", reason,
	)
}

// recordName is best effort and only used for diagnostics.
func recordName(record models.Record) string {
	if data, err := validation.ExtractDomainData(record); err == nil {
		return data.Name
	}
	return ""
}

func recordMode(record models.Record) string {
	switch rec := record.(type) {
	case *models.SignedDomain:
		return models.ModeSigned.String()
	case *models.JWSDomain:
		return models.ModeJWS.String()
	default:
		return fmt.Sprintf("%T", rec)
	}
}
