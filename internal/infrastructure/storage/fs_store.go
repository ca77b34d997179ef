package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const stagingPrefix = ".staging-"

// FSExtensionStore keeps installed extensions under a single root directory,
// one subdirectory per extension name.
type FSExtensionStore struct {
	logger *slog.Logger
	root   string
}

// NewFSExtensionStore creates a store rooted at root. The directory is
// created lazily on first install.
func NewFSExtensionStore(root string, logger *slog.Logger) (*FSExtensionStore, error) {
	if root == "" {
		var err error
		root, err = DefaultExtensionsDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve extensions directory: %w", err)
		}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FSExtensionStore{root: abs, logger: logger}, nil
}

// Root returns the canonical storage directory.
func (s *FSExtensionStore) Root() string {
	return s.root
}

// PathFor returns the canonical install path for name.
func (s *FSExtensionStore) PathFor(name string) string {
	return filepath.Join(s.root, name)
}

// Exists reports whether anything occupies the install path for name.
func (s *FSExtensionStore) Exists(name string) (bool, error) {
	_, err := os.Lstat(s.PathFor(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Materialize copies sourceDir into a staging directory next to the target
// and renames it into place, so a failed copy never leaves a half-installed
// extension under its canonical name.
func (s *FSExtensionStore) Materialize(ctx context.Context, sourceDir, name string) error {
	if err := os.MkdirAll(s.root, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.root, err)
	}

	staging, err := os.MkdirTemp(s.root, stagingPrefix+name+"-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	if err := CopyTree(ctx, sourceDir, staging, s.logger); err != nil {
		s.discard(staging)
		return err
	}

	if err := os.Rename(staging, s.PathFor(name)); err != nil {
		s.discard(staging)
		return fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	return nil
}

func (s *FSExtensionStore) discard(staging string) {
	if err := os.RemoveAll(staging); err != nil {
		s.logger.Warn("failed to remove staging directory", "path", staging, "error", err)
	}
}

// Remove deletes the install path for name recursively.
func (s *FSExtensionStore) Remove(name string) error {
	return os.RemoveAll(s.PathFor(name))
}

// Entries lists the entries found in storage, sorted. Hidden entries,
// including staging directories, are not reported. A missing root yields no
// entries.
func (s *FSExtensionStore) Entries() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
