// Package values contains domain value objects that encapsulate
// primitive types with validation.
package values

import (
	"errors"
	"fmt"
	"regexp"
)

// extensionNamePattern is compiled once and shared read-only by every caller.
var extensionNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]+$`)

// ErrInvalidExtensionName is wrapped by every name validation failure.
var ErrInvalidExtensionName = errors.New("invalid extension name, must be lowercase alphanumeric or dash (-) and start with a letter")

// ExtensionName represents a validated extension identifier. It doubles as the
// directory name in canonical storage and as the CLI subcommand name.
type ExtensionName struct {
	value string
}

// ValidateName reports whether name is an acceptable extension name.
func ValidateName(name string) error {
	if !extensionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidExtensionName, name)
	}
	return nil
}

// NewExtensionName creates an ExtensionName with validation.
func NewExtensionName(name string) (ExtensionName, error) {
	if err := ValidateName(name); err != nil {
		return ExtensionName{}, err
	}
	return ExtensionName{value: name}, nil
}

// String returns the string representation
func (n ExtensionName) String() string {
	return n.value
}
