package extension

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml/v2"
	"github.com/reglet-dev/lantern/internal/domain/capabilities"
	"github.com/reglet-dev/lantern/internal/domain/values"
)

// Extension is a validated package on disk.
type Extension struct {
	path     string
	manifest Manifest
}

// FromDir validates dir as an extension package. Checks run in order and the
// first failure is returned as an *InvalidPackageError; nothing on disk is
// modified.
func FromDir(dir string) (*Extension, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, invalid(ReasonNotADirectory, abs, "not a directory", nil)
	}

	manifestPath := filepath.Join(abs, ManifestFileName)
	data, err := os.ReadFile(manifestPath) //nolint:gosec // G304: manifest path is derived from the validated package root
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, invalid(ReasonMissingManifest, abs, "missing "+ManifestFileName, nil)
		}
		return nil, invalid(ReasonMissingManifest, abs, "failed to read "+ManifestFileName, err)
	}

	manifest, err := ParseManifest(data)
	if err != nil {
		var pkgErr *InvalidPackageError
		if errors.As(err, &pkgErr) {
			pkgErr.Path = abs
			return nil, pkgErr
		}
		return nil, err
	}

	if err := checkEntryPoint(abs, manifest.EntryPoint); err != nil {
		return nil, err
	}

	return &Extension{path: abs, manifest: *manifest}, nil
}

// ParseManifest parses and validates manifest content: syntax, schema, name,
// version and permissions. Entry point existence is checked by FromDir.
func ParseManifest(data []byte) (*Manifest, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, invalid(ReasonMalformedManifest, "", "failed to parse "+ManifestFileName, err)
	}
	if err := validateDocument(doc); err != nil {
		return nil, invalid(ReasonMalformedManifest, "", "invalid "+ManifestFileName, err)
	}

	var manifest Manifest
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, invalid(ReasonMalformedManifest, "", "failed to decode "+ManifestFileName, err)
	}

	if err := values.ValidateName(manifest.Name); err != nil {
		return nil, invalid(ReasonInvalidName, "", err.Error(), nil)
	}

	if manifest.Version != "" {
		if _, err := semver.StrictNewVersion(manifest.Version); err != nil {
			return nil, invalid(ReasonInvalidVersion, "", fmt.Sprintf("invalid version %q", manifest.Version), err)
		}
	}

	if err := manifest.Permissions.Validate(); err != nil {
		return nil, invalid(ReasonInvalidPermissions, "", "invalid permissions", err)
	}

	return &manifest, nil
}

func checkEntryPoint(root, entryPoint string) error {
	if entryPoint == "" || filepath.IsAbs(entryPoint) {
		return invalid(ReasonEntryPointEscapes, root, "entry point must be a relative path inside the package", nil)
	}

	target := filepath.Join(root, filepath.FromSlash(entryPoint))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return invalid(ReasonEntryPointEscapes, root, "entry point must be a relative path inside the package", nil)
	}

	// Install skips symlinks, so none may lie on the way to the entry point.
	var info fs.FileInfo
	cur := root
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		cur = filepath.Join(cur, part)
		if info, err = os.Lstat(cur); err != nil {
			return invalid(ReasonMissingEntryPoint, root, "entry point does not exist", nil)
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return invalid(ReasonEntryPointSymlink, root, "entry point must not be reached through a symlink", nil)
		}
	}
	if !info.Mode().IsRegular() {
		return invalid(ReasonEntryPointNotFile, root, "entry point is not a file", nil)
	}
	return nil
}

// Path returns the absolute package root.
func (e *Extension) Path() string { return e.path }

// Manifest returns a copy of the validated manifest.
func (e *Extension) Manifest() Manifest { return e.manifest }

// Name returns the declared extension name.
func (e *Extension) Name() string { return e.manifest.Name }

// Description returns the declared description, possibly empty.
func (e *Extension) Description() string { return e.manifest.Description }

// Version returns the declared version, possibly empty.
func (e *Extension) Version() string { return e.manifest.Version }

// EntryPoint returns the absolute path of the entry script.
func (e *Extension) EntryPoint() string {
	return filepath.Join(e.path, filepath.FromSlash(e.manifest.EntryPoint))
}

// Permissions returns the declared permission set.
func (e *Extension) Permissions() capabilities.Permissions { return e.manifest.Permissions }

// Grant translates the declared permissions into engine grants.
func (e *Extension) Grant() (capabilities.Grant, error) {
	return e.manifest.Permissions.ToGrant()
}
