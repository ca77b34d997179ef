package services

import (
	"context"
	"log/slog"

	"github.com/reglet-dev/lantern/internal/application/ports"
)

// RunService runs installed extensions by name.
type RunService struct {
	lifecycle *LifecycleService
	runner    ports.ExtensionRunner
}

// NewRunService creates a run service.
func NewRunService(lifecycle *LifecycleService, runner ports.ExtensionRunner) *RunService {
	return &RunService{lifecycle: lifecycle, runner: runner}
}

// Run loads the extension called name and executes it with args passed
// through verbatim. The manifest's permissions are the run's only grant.
func (s *RunService) Run(ctx context.Context, name string, args []string) error {
	ext, err := s.lifecycle.Load(ctx, name)
	if err != nil {
		return err
	}
	grant, err := ext.Grant()
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "running extension", "extension", name, "grant", grant.Strings(), "args", len(args))
	return s.runner.Run(ctx, ext, grant, args)
}
