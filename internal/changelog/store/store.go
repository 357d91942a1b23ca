// Package store binds a persistence backend to the remote delegations the
// synchronizer and reconciler need.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"policysync/internal/changelog/models"
	"policysync/internal/changelog/ports"
)

// ErrFetch marks a failure to obtain data from the remote. It is never
// converted into an empty result.
var ErrFetch = errors.New("fetch from remote failed")

// ChangeLog is the local replica: a Backend plus the remote-facing reads
// that are parameterized by persisted state.
type ChangeLog struct {
	ports.Backend
}

func New(backend ports.Backend) (*ChangeLog, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	return &ChangeLog{Backend: backend}, nil
}

// UpdatedRecords asks the remote for the domains changed since the persisted
// watermark.
func (c *ChangeLog) UpdatedRecords(ctx context.Context, remote ports.Remote, mode models.Mode) (*models.Changes, error) {
	since, err := c.Watermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("read watermark: %w", err)
	}
	changes, err := remote.FetchChanges(ctx, since, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if changes == nil {
		changes = &models.Changes{}
	}
	return changes, nil
}

// ServerDomainList returns the authoritative set of domain names.
func (c *ChangeLog) ServerDomainList(ctx context.Context, remote ports.Remote) (map[string]struct{}, error) {
	names, err := remote.ListDomainNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set, nil
}

// Athenz domain names: dot separated labels of letters, digits, '-' and '_'.
var domainNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_-]*(\.[a-zA-Z0-9_][a-zA-Z0-9_-]*)*$`)

// ValidateName rejects names that cannot be used as a storage key, including
// anything that could escape a directory.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("domain name is required")
	}
	if len(name) > 256 || !domainNamePattern.MatchString(name) {
		return fmt.Errorf("invalid domain name %q", name)
	}
	return nil
}
