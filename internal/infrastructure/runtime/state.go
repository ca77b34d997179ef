package runtime

import (
	"context"
	"slices"
	"sync"

	"github.com/reglet-dev/lantern/internal/domain/values"
	"github.com/reglet-dev/lantern/internal/infrastructure/hostapi"
)

// ExtensionState is the per-invocation state shared by the host operations
// of one run.
type ExtensionState struct {
	api   func() (*hostapi.Backend, error)
	args  []string
	runID values.RunID
}

// NewExtensionState creates the state for one run. open is called at most
// once, the first time a host operation needs the backend.
func NewExtensionState(args []string, open func(values.RunID) (*hostapi.Backend, error)) *ExtensionState {
	s := &ExtensionState{
		args:  slices.Clone(args),
		runID: values.NewRunID(),
	}
	s.api = sync.OnceValues(func() (*hostapi.Backend, error) {
		return open(s.runID)
	})
	return s
}

// API returns the run's host API backend, opening it on first use.
func (s *ExtensionState) API() (*hostapi.Backend, error) {
	return s.api()
}

// Args returns a copy of the arguments passed to the extension.
func (s *ExtensionState) Args() []string {
	return slices.Clone(s.args)
}

// RunID identifies the run in logs and host info.
func (s *ExtensionState) RunID() values.RunID {
	return s.runID
}

type stateKey struct{}

// WithState stores the run's state in ctx.
func WithState(ctx context.Context, s *ExtensionState) context.Context {
	return context.WithValue(ctx, stateKey{}, s)
}

// StateFromContext retrieves the run's state from ctx.
func StateFromContext(ctx context.Context) (*ExtensionState, bool) {
	s, ok := ctx.Value(stateKey{}).(*ExtensionState)
	return s, ok
}
