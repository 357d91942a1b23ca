package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers changes to the replicated policy data itself.
	// Downstream consumers rely on these to rebuild caches, so they are kept.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers records that failed integrity verification.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers pass bookkeeping and can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from sync logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string        `json:"id,omitempty"`
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	// Subject is the domain name the event is about, when there is one.
	Subject   string `json:"subject,omitempty"`
	Action    string `json:"action"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	// PassID correlates every event emitted during one sync pass.
	PassID string `json:"pass_id,omitempty"`
}

type AuditEvent string

const (
	// Replica changes
	EventDomainApplied  AuditEvent = "domain_applied"
	EventDomainDisabled AuditEvent = "domain_disabled"
	EventDomainDeleted  AuditEvent = "domain_deleted"

	// Integrity failures
	EventDomainRejected AuditEvent = "domain_rejected"

	// Pass bookkeeping
	EventWatermarkAdvanced AuditEvent = "watermark_advanced"
	EventSyncTriggered     AuditEvent = "sync_triggered"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventDomainApplied:  CategoryCompliance,
	EventDomainDisabled: CategoryCompliance,
	EventDomainDeleted:  CategoryCompliance,

	EventDomainRejected: CategorySecurity,
	EventSyncTriggered:  CategorySecurity,

	EventWatermarkAdvanced: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists or forwards audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// ExtractString finds the value for key in a slog-style key/value list.
// Values that are not strings are formatted with %v; slog.Attr entries are
// matched by their key.
func ExtractString(attrs []any, key string) string {
	for i := 0; i < len(attrs); i++ {
		switch k := attrs[i].(type) {
		case slog.Attr:
			if k.Key == key {
				return k.Value.String()
			}
		case string:
			if i+1 >= len(attrs) {
				return ""
			}
			if k == key {
				return stringify(attrs[i+1])
			}
			i++
		}
	}
	return ""
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		return val.Error()
	case fmt.Stringer:
		return val.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
