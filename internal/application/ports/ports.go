// Package ports defines interfaces for infrastructure dependencies.
// These are the "ports" in hexagonal architecture - abstractions that
// the application layer depends on but doesn't implement.
package ports

import (
	"context"

	"github.com/reglet-dev/lantern/internal/domain/capabilities"
	"github.com/reglet-dev/lantern/internal/domain/extension"
)

// ExtensionStore owns canonical extension storage: one directory per
// installed extension, named after it.
type ExtensionStore interface {
	// Root returns the canonical storage directory.
	Root() string

	// PathFor returns the canonical install path for name.
	PathFor(name string) string

	// Exists reports whether anything occupies the install path for name.
	Exists(name string) (bool, error)

	// Materialize copies the package tree at sourceDir to the install path
	// for name.
	Materialize(ctx context.Context, sourceDir, name string) error

	// Remove deletes the install path for name recursively.
	Remove(name string) error

	// Entries lists the directory names found in storage.
	Entries() ([]string, error)
}

// PermissionPrompter asks a human to approve the permissions an extension
// requests at install time.
type PermissionPrompter interface {
	IsInteractive() bool
	ConfirmPermissions(extensionName string, requested capabilities.Grant) (bool, error)
	FormatNonInteractiveError(extensionName string, requested capabilities.Grant) error
}

// ExtensionRunner executes a validated extension to completion.
type ExtensionRunner interface {
	Run(ctx context.Context, ext *extension.Extension, grant capabilities.Grant, args []string) error
}
