package extension

import "fmt"

// Reason tags each way a package can fail validation.
type Reason string

const (
	ReasonNotADirectory      Reason = "not_a_directory"
	ReasonMissingManifest    Reason = "missing_manifest"
	ReasonMalformedManifest  Reason = "malformed_manifest"
	ReasonInvalidName        Reason = "invalid_name"
	ReasonInvalidVersion     Reason = "invalid_version"
	ReasonInvalidPermissions Reason = "invalid_permissions"
	ReasonEntryPointEscapes  Reason = "entry_point_escapes"
	ReasonMissingEntryPoint  Reason = "missing_entry_point"
	ReasonEntryPointNotFile  Reason = "entry_point_not_file"
	ReasonEntryPointSymlink  Reason = "entry_point_symlink"
	ReasonNameMismatch       Reason = "name_mismatch"
)

// InvalidPackageError reports why a directory is not a valid extension.
type InvalidPackageError struct {
	Cause   error
	Reason  Reason
	Path    string
	Message string
}

func (e *InvalidPackageError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Path == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Path, msg)
}

func (e *InvalidPackageError) Unwrap() error {
	return e.Cause
}

func invalid(reason Reason, path, message string, cause error) *InvalidPackageError {
	return &InvalidPackageError{Reason: reason, Path: path, Message: message, Cause: cause}
}
