// Package apperrors defines application-level error types.
package apperrors

import (
	"fmt"

	"github.com/reglet-dev/lantern/internal/domain/capabilities"
)

// ValidationError indicates user input (flags, filters, names) failed validation.
type ValidationError struct {
	Field   string   // Field that failed validation
	Message string   // Error message
	Details []string // Additional details
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s: %s (%d issues)", e.Field, e.Message, len(e.Details))
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string, details ...string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Details: details,
	}
}

// LifecycleKind distinguishes lifecycle conflicts.
type LifecycleKind string

const (
	LifecycleAlreadyInstalled LifecycleKind = "already_installed"
	LifecycleIdenticalPath    LifecycleKind = "identical_path"
	LifecycleNotInstalled     LifecycleKind = "not_installed"
	LifecycleFileConflict     LifecycleKind = "file_conflict"
	LifecyclePartialInstall   LifecycleKind = "partial_install"
	LifecycleDeclined         LifecycleKind = "declined"
)

// LifecycleError indicates install or uninstall could not proceed.
type LifecycleError struct {
	Cause     error
	Kind      LifecycleKind
	Extension string
	Message   string
}

func (e *LifecycleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *LifecycleError) Unwrap() error {
	return e.Cause
}

// NewLifecycleError creates a new lifecycle error.
func NewLifecycleError(kind LifecycleKind, extension, message string, cause error) *LifecycleError {
	return &LifecycleError{
		Kind:      kind,
		Extension: extension,
		Message:   message,
		Cause:     cause,
	}
}

// SandboxViolation distinguishes module loader policy failures.
type SandboxViolation string

const (
	ViolationOutsidePackage SandboxViolation = "outside_package"
	ViolationSymlink        SandboxViolation = "symlink"
	ViolationHostDenied     SandboxViolation = "host_denied"
	ViolationScheme         SandboxViolation = "unsupported_scheme"
	ViolationFormat         SandboxViolation = "unknown_format"
	ViolationSpecifier      SandboxViolation = "bad_specifier"
	ViolationFetch          SandboxViolation = "fetch_failed"
)

// SandboxError indicates the module loader refused to hand code to the engine.
// It is always fatal to the run.
type SandboxError struct {
	Cause     error
	Violation SandboxViolation
	Locator   string
	Message   string
}

func (e *SandboxError) Error() string {
	msg := e.Message
	if e.Locator != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Locator)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *SandboxError) Unwrap() error {
	return e.Cause
}

// NewSandboxError creates a new sandbox error.
func NewSandboxError(violation SandboxViolation, locator, message string, cause error) *SandboxError {
	return &SandboxError{
		Violation: violation,
		Locator:   locator,
		Message:   message,
		Cause:     cause,
	}
}

// CapabilityError indicates a host API call was not covered by the run's grant.
type CapabilityError struct {
	Reason    string
	Requested capabilities.Capability
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("permission denied: %s (%s)", e.Requested.String(), e.Reason)
}

// NewCapabilityError creates a new capability error.
func NewCapabilityError(reason string, requested capabilities.Capability) *CapabilityError {
	return &CapabilityError{
		Requested: requested,
		Reason:    reason,
	}
}

// ExecutionError indicates an extension run failed after validation.
type ExecutionError struct {
	Cause     error
	Extension string
	Message   string
	ExitCode  int
	// Exited is set when the extension chose its exit code itself.
	Exited bool
}

func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extension %s: %s: %v", e.Extension, e.Message, e.Cause)
	}
	return fmt.Sprintf("extension %s: %s", e.Extension, e.Message)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// NewExecutionError creates a new execution error with exit code 1.
func NewExecutionError(extension, message string, cause error) *ExecutionError {
	return &ExecutionError{
		Extension: extension,
		Message:   message,
		Cause:     cause,
		ExitCode:  1,
	}
}

// ConfigurationError indicates system config or setup issue.
type ConfigurationError struct {
	Cause   error
	Aspect  string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error (%s): %s: %v", e.Aspect, e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error (%s): %s", e.Aspect, e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(aspect, message string, cause error) *ConfigurationError {
	return &ConfigurationError{
		Aspect:  aspect,
		Message: message,
		Cause:   cause,
	}
}
