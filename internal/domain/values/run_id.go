package values

import (
	"github.com/google/uuid"
)

// RunID uniquely identifies one extension invocation. It is attached to host
// log records and exposed to the script for correlation.
type RunID struct {
	value uuid.UUID
}

// NewRunID creates a new random run ID
func NewRunID() RunID {
	return RunID{value: uuid.New()}
}

// String returns the string representation
func (r RunID) String() string {
	return r.value.String()
}
