// Package ports defines shared interfaces for the changelog module.
// Interfaces are placed here when consumed by more than one package.
package ports

import (
	"context"
	"crypto"
	"log/slog"

	"policysync/internal/changelog/models"
	"policysync/pkg/platform/audit"
	"policysync/pkg/requestcontext"
)

// Remote is the central policy service as seen by the synchronizer.
// Any returned error is a fetch-level failure; it is never a stand-in for an
// empty result.
type Remote interface {
	// FetchChanges returns the domains modified since the given watermark and
	// the new high-water mark for the batch.
	FetchChanges(ctx context.Context, since string, mode models.Mode) (*models.Changes, error)

	// ListDomainNames returns the complete, authoritative set of domain names.
	ListDomainNames(ctx context.Context) ([]string, error)
}

// Backend persists the local replica: one record per domain plus the watermark.
// Every operation is idempotent.
type Backend interface {
	// Get returns the stored record, or sentinel.ErrNotFound.
	Get(ctx context.Context, name string) (models.Record, error)

	// Save upserts the record for name. Readers observe the old or the new
	// record, never a partial one.
	Save(ctx context.Context, name string, record models.Record) error

	// Remove deletes the record for name; removing an absent name is not an error.
	Remove(ctx context.Context, name string) error

	// ListNames returns every stored domain name in no particular order.
	ListNames(ctx context.Context) ([]string, error)

	// Watermark returns the persisted cursor, "" when none has been written.
	Watermark(ctx context.Context) (string, error)

	// SetWatermark persists the cursor.
	SetWatermark(ctx context.Context, value string) error
}

// Validator verifies the authenticity of a domain record. Implementations are
// side-effect free and report failure only through the result.
type Validator interface {
	ValidateSigned(domain *models.SignedDomain) bool
	ValidateJWS(domain *models.JWSDomain) bool
}

// KeyProvider resolves a ZMS key identifier to its public verification key.
type KeyProvider interface {
	PublicKey(keyID string) (crypto.PublicKey, error)
}

// Locker guards a sync pass across processes sharing one store.
type Locker interface {
	// TryAcquire returns ok=false without error when another holder owns the lock.
	TryAcquire(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

// AuditPublisher emits audit events for replica changes and rejected records.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// LogAudit logs an audit event to the structured logger and emits it to the
// publisher when one is configured.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event audit.AuditEvent, attrs ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}

	args := append(attrs, "event", string(event), "log_type", "audit")
	if logger != nil {
		logger.InfoContext(ctx, string(event), args...)
	}

	if publisher == nil {
		return
	}
	err := publisher.Emit(ctx, audit.Event{
		Action:    string(event),
		Timestamp: requestcontext.Now(ctx),
		Subject:   audit.ExtractString(attrs, "domain"),
		Reason:    audit.ExtractString(attrs, "reason"),
		RequestID: requestID,
		PassID:    requestcontext.PassID(ctx),
	})
	if err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}
