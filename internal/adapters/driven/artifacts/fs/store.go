// Package fs stores raw artifacts as files under a root directory.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/custodia-labs/caseflow/internal/adapters/driven/artifacts"
	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.ArtifactStore = (*Store)(nil)

// Store keeps each artifact in its own file below root.
type Store struct {
	root string
}

// New creates a store rooted at dir. If dir is empty, defaults to
// ~/.caseflow/artifacts.
func New(dir string) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, ".caseflow", "artifacts")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the directory artifacts are stored under.
func (s *Store) Root() string {
	return s.root
}

// Put writes data to a new file and returns its reference.
func (s *Store) Put(_ context.Context, ownerID, name string, data []byte) (string, error) {
	ref, err := artifacts.NewRef(ownerID, name)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.root, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("creating artifact directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return "", fmt.Errorf("writing artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("committing artifact: %w", err)
	}
	return ref, nil
}

// Get reads the artifact behind ref.
func (s *Store) Get(_ context.Context, ref string) ([]byte, error) {
	if err := artifacts.CheckRef(ref); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(ref)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	return data, nil
}

// Delete removes the artifact and its per-upload directory.
func (s *Store) Delete(_ context.Context, ref string) error {
	if err := artifacts.CheckRef(ref); err != nil {
		return err
	}
	path := filepath.Join(s.root, filepath.FromSlash(ref))
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting artifact: %w", err)
	}
	// The upload directory only ever holds this one file.
	_ = os.Remove(filepath.Dir(path))
	return nil
}
