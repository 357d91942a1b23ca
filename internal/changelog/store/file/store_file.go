// Package file stores the replica as one JSON document per domain under a
// root directory, the layout ZTS hosts have always read.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"policysync/internal/changelog/models"
	"policysync/internal/changelog/ports"
	"policysync/internal/changelog/store"
	"policysync/pkg/platform/sentinel"
)

const (
	recordExt     = ".json"
	watermarkFile = ".lastModTime"
)

// Store is the directory-backed replica. Every write lands through a
// temporary file and a rename, so readers see the old or the new document.
type Store struct {
	root     string
	fileMode os.FileMode
}

var _ ports.Backend = (*Store)(nil)

type Option func(*Store)

// WithFileMode sets the permissions of written documents (default 0o644).
func WithFileMode(mode os.FileMode) Option {
	return func(s *Store) {
		s.fileMode = mode
	}
}

// New opens the store at root, creating the directory when needed.
func New(root string, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	s := &Store{root: root, fileMode: 0o644}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) path(name string) (string, error) {
	if err := store.ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.root, name+recordExt), nil
}

func (s *Store) Get(_ context.Context, name string) (models.Record, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("domain %q: %w", name, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("read domain %q: %w", name, err)
	}
	rec, err := models.UnmarshalRecord(b)
	if err != nil {
		return nil, fmt.Errorf("domain %q: %w: %v", name, sentinel.ErrInvalidState, err)
	}
	return rec, nil
}

func (s *Store) Save(_ context.Context, name string, record models.Record) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	b, err := models.MarshalRecord(record)
	if err != nil {
		return fmt.Errorf("encode domain %q: %w", name, err)
	}
	if err := s.writeAtomic(p, b); err != nil {
		return fmt.Errorf("save domain %q: %w", name, err)
	}
	return nil
}

func (s *Store) Remove(_ context.Context, name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove domain %q: %w", name, err)
	}
	if err := syncDir(s.root); err != nil {
		return fmt.Errorf("remove domain %q: %w", name, err)
	}
	return nil
}

// ListNames returns the names of all stored documents. Temporary files and
// the watermark are not domains.
func (s *Store) ListNames(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list store root: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		file := e.Name()
		if strings.HasPrefix(file, ".") || !strings.HasSuffix(file, recordExt) {
			continue
		}
		name := strings.TrimSuffix(file, recordExt)
		if store.ValidateName(name) != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func (s *Store) Watermark(_ context.Context) (string, error) {
	b, err := os.ReadFile(filepath.Join(s.root, watermarkFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read watermark: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func (s *Store) SetWatermark(_ context.Context, value string) error {
	if err := s.writeAtomic(filepath.Join(s.root, watermarkFile), []byte(value)); err != nil {
		return fmt.Errorf("save watermark: %w", err)
	}
	return nil
}

// writeAtomic writes data next to target, renames it into place and syncs
// the parent directory. The temporary file is removed on every failure path.
func (s *Store) writeAtomic(target string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Chmod(s.fileMode); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmpName, target); err != nil {
		return err
	}
	return syncDir(filepath.Dir(target))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir for sync: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir: %w", err)
	}
	return nil
}
