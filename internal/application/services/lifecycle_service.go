package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/expr-lang/expr/vm"
	apperrors "github.com/reglet-dev/lantern/internal/application/errors"
	"github.com/reglet-dev/lantern/internal/application/ports"
	"github.com/reglet-dev/lantern/internal/domain/extension"
	"github.com/reglet-dev/lantern/internal/domain/values"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentLoads bounds how many installed packages List validates at once.
const maxConcurrentLoads = 8

// InstallOptions tune a single install.
type InstallOptions struct {
	// AssumeYes approves the requested permissions without prompting.
	AssumeYes bool
}

// FilteredEntry is a storage entry List left out, with the reason.
type FilteredEntry struct {
	Err  error
	Name string
}

// ListResult is the outcome of List: valid extensions sorted by name and
// the entries that failed to load.
type ListResult struct {
	Extensions []*extension.Extension
	Filtered   []FilteredEntry
}

// LifecycleService installs, removes, loads and lists extensions in
// canonical storage.
type LifecycleService struct {
	store      ports.ExtensionStore
	gatekeeper *CapabilityGatekeeper
}

// NewLifecycleService creates a lifecycle service. gatekeeper may be nil,
// in which case installs are not reviewed.
func NewLifecycleService(store ports.ExtensionStore, gatekeeper *CapabilityGatekeeper) *LifecycleService {
	return &LifecycleService{store: store, gatekeeper: gatekeeper}
}

// Install copies a validated package into canonical storage and returns the
// installed extension.
func (s *LifecycleService) Install(ctx context.Context, ext *extension.Extension, opts InstallOptions) (*extension.Extension, error) {
	name := ext.Name()
	target := s.store.PathFor(name)

	if samePath(ext.Path(), target) {
		return nil, apperrors.NewLifecycleError(apperrors.LifecycleIdenticalPath, name,
			"extension path and installation path are identical, skipping", nil)
	}

	exists, err := s.store.Exists(name)
	if err != nil {
		return nil, fmt.Errorf("failed to check installation path: %w", err)
	}
	if exists {
		return nil, apperrors.NewLifecycleError(apperrors.LifecycleAlreadyInstalled, name,
			fmt.Sprintf("extension %s already exists, skipping", name), nil)
	}

	if s.gatekeeper != nil {
		if _, err := s.gatekeeper.Review(ctx, ext, opts.AssumeYes); err != nil {
			return nil, err
		}
	}

	slog.DebugContext(ctx, "installing extension", "extension", name, "source", ext.Path(), "path", target)
	if err := s.store.Materialize(ctx, ext.Path(), name); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, apperrors.NewLifecycleError(apperrors.LifecycleFileConflict, name,
				"failed to install extension "+name, err)
		}
		return nil, apperrors.NewLifecycleError(apperrors.LifecyclePartialInstall, name,
			fmt.Sprintf("failed to install extension %s; run 'lantern extension uninstall %s' if anything was left behind", name, name), err)
	}

	installed, err := extension.FromDir(target)
	if err != nil {
		return nil, apperrors.NewLifecycleError(apperrors.LifecyclePartialInstall, name,
			"installed extension failed validation", err)
	}
	slog.InfoContext(ctx, "extension installed", "extension", name, "path", target)
	return installed, nil
}

// Uninstall removes ext from storage. ext must be the installed copy, not a
// package elsewhere on disk that happens to share the name.
func (s *LifecycleService) Uninstall(ctx context.Context, ext *extension.Extension) error {
	name := ext.Name()
	if !samePath(ext.Path(), s.store.PathFor(name)) {
		return apperrors.NewLifecycleError(apperrors.LifecycleNotInstalled, name,
			fmt.Sprintf("extension %s is not installed, skipping", name), nil)
	}
	if err := s.store.Remove(name); err != nil {
		return fmt.Errorf("failed to remove extension %s: %w", name, err)
	}
	slog.InfoContext(ctx, "extension uninstalled", "extension", name)
	return nil
}

// UninstallByName removes the extension installed under name. An entry that
// no longer validates is removed too, which is how a broken install is
// cleaned up.
func (s *LifecycleService) UninstallByName(ctx context.Context, name string) error {
	extName, err := parseName(name)
	if err != nil {
		return err
	}

	ext, err := s.load(extName)
	if err == nil {
		return s.Uninstall(ctx, ext)
	}

	var pkgErr *extension.InvalidPackageError
	if !errors.As(err, &pkgErr) {
		return err
	}
	slog.WarnContext(ctx, "removing invalid extension", "extension", extName.String(), "error", err)
	if err := s.store.Remove(extName.String()); err != nil {
		return fmt.Errorf("failed to remove extension %s: %w", extName, err)
	}
	return nil
}

// Load returns the installed extension called name.
func (s *LifecycleService) Load(_ context.Context, name string) (*extension.Extension, error) {
	extName, err := parseName(name)
	if err != nil {
		return nil, err
	}
	return s.load(extName)
}

func parseName(name string) (values.ExtensionName, error) {
	extName, err := values.NewExtensionName(name)
	if err != nil {
		return values.ExtensionName{}, apperrors.NewValidationError("name", err.Error())
	}
	return extName, nil
}

func (s *LifecycleService) load(name values.ExtensionName) (*extension.Extension, error) {
	exists, err := s.store.Exists(name.String())
	if err != nil {
		return nil, fmt.Errorf("failed to check installation path: %w", err)
	}
	if !exists {
		return nil, apperrors.NewLifecycleError(apperrors.LifecycleNotInstalled, name.String(),
			fmt.Sprintf("extension %s is not installed", name), nil)
	}
	return s.loadEntry(name)
}

// loadEntry validates the storage entry for name; the manifest must declare
// the same name as its directory.
func (s *LifecycleService) loadEntry(name values.ExtensionName) (*extension.Extension, error) {
	ext, err := extension.FromDir(s.store.PathFor(name.String()))
	if err != nil {
		return nil, err
	}
	if ext.Name() != name.String() {
		return nil, &extension.InvalidPackageError{
			Reason:  extension.ReasonNameMismatch,
			Path:    ext.Path(),
			Message: fmt.Sprintf("manifest name %q does not match directory name %q", ext.Name(), name),
		}
	}
	return ext, nil
}

// List validates every entry in storage concurrently. Entries that fail are
// reported in Filtered and never abort the listing. A non-nil filter further
// restricts the result to matching extensions; a filter that fails to
// evaluate aborts the listing with a ValidationError.
func (s *LifecycleService) List(ctx context.Context, filter *vm.Program) (*ListResult, error) {
	names, err := s.store.Entries()
	if err != nil {
		return nil, fmt.Errorf("failed to read extensions directory: %w", err)
	}

	var (
		mu     sync.Mutex
		result ListResult
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLoads)
	for _, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var ext *extension.Extension
			extName, err := values.NewExtensionName(name)
			if err == nil {
				ext, err = s.loadEntry(extName)
			}
			if err == nil {
				ok, filterErr := matchesFilter(filter, ext)
				if filterErr != nil {
					return apperrors.NewValidationError("filter",
						fmt.Sprintf("failed to evaluate --filter for extension %s: %v", name, filterErr))
				}
				if !ok {
					return nil
				}
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.WarnContext(ctx, "extension was filtered out", "extension", name, "error", err)
				result.Filtered = append(result.Filtered, FilteredEntry{Name: name, Err: err})
				return nil
			}
			result.Extensions = append(result.Extensions, ext)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(result.Extensions, func(i, j int) bool {
		return result.Extensions[i].Name() < result.Extensions[j].Name()
	})
	sort.Slice(result.Filtered, func(i, j int) bool {
		return result.Filtered[i].Name < result.Filtered[j].Name
	})
	return &result, nil
}

// samePath compares two directories after resolving symlinks where possible.
func samePath(a, b string) bool {
	return realPath(a) == realPath(b)
}

func realPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	if real, err := filepath.EvalSymlinks(p); err == nil {
		return real
	}
	return filepath.Clean(p)
}
