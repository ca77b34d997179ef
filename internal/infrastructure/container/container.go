// Package container provides dependency injection for the application.
package container

import (
	"io"
	"log/slog"
	"os"
	"time"

	apperrors "github.com/reglet-dev/lantern/internal/application/errors"
	"github.com/reglet-dev/lantern/internal/application/ports"
	"github.com/reglet-dev/lantern/internal/application/services"
	"github.com/reglet-dev/lantern/internal/infrastructure/capabilities"
	"github.com/reglet-dev/lantern/internal/infrastructure/output"
	"github.com/reglet-dev/lantern/internal/infrastructure/runtime"
	"github.com/reglet-dev/lantern/internal/infrastructure/storage"
	"github.com/reglet-dev/lantern/internal/infrastructure/system"
	"github.com/reglet-dev/lantern/internal/version"
)

// Container holds all application dependencies.
type Container struct {
	store      *storage.FSExtensionStore
	lifecycle  *services.LifecycleService
	runService *services.RunService
	formatters *output.FormatterFactory
	systemCfg  *system.Config
	logger     *slog.Logger
}

// Options configure the container. Non-zero values take precedence over the
// system config file.
type Options struct {
	Logger           *slog.Logger
	Prompter         ports.PermissionPrompter
	Stdout           io.Writer
	Stderr           io.Writer
	SystemConfigPath string
	SecurityLevel    string
	ExtensionsDir    string
	Timeout          time.Duration
	KeepHostLogs     bool
}

// New creates a new dependency injection container.
func New(opts Options) (*Container, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Prompter == nil {
		opts.Prompter = capabilities.NewTerminalPrompter()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	systemCfg, err := system.NewConfigLoader().Load(opts.SystemConfigPath)
	if err != nil {
		return nil, apperrors.NewConfigurationError("system config", "failed to load "+opts.SystemConfigPath, err)
	}

	// Command-line values take precedence over the config file.
	if opts.SecurityLevel != "" {
		systemCfg.Security.Level = opts.SecurityLevel
	}
	if opts.ExtensionsDir != "" {
		systemCfg.ExtensionsDir = opts.ExtensionsDir
	}
	if opts.Timeout > 0 {
		systemCfg.Run.Timeout = opts.Timeout
	}

	store, err := storage.NewFSExtensionStore(systemCfg.ExtensionsDir, opts.Logger)
	if err != nil {
		return nil, apperrors.NewConfigurationError("storage", "failed to resolve extensions directory", err)
	}

	gatekeeper := services.NewCapabilityGatekeeper(opts.Prompter, string(systemCfg.Security.GetSecurityLevel()))
	lifecycle := services.NewLifecycleService(store, gatekeeper)

	runner := runtime.NewRunner(runtime.RunnerOptions{
		Stdout:       opts.Stdout,
		Stderr:       opts.Stderr,
		Version:      version.Get(),
		Timeout:      systemCfg.Run.Timeout,
		HTTPTimeout:  systemCfg.HTTP.Timeout,
		HTTPRetries:  systemCfg.HTTP.Retries,
		KeepHostLogs: opts.KeepHostLogs,
	})

	opts.Logger.Debug("container initialized",
		"extensions_dir", store.Root(),
		"security_level", systemCfg.Security.GetSecurityLevel(),
		"timeout", systemCfg.Run.Timeout)

	return &Container{
		store:      store,
		lifecycle:  lifecycle,
		runService: services.NewRunService(lifecycle, runner),
		formatters: output.NewFormatterFactory(),
		systemCfg:  systemCfg,
		logger:     opts.Logger,
	}, nil
}

// LifecycleService returns the install/uninstall/list service.
func (c *Container) LifecycleService() *services.LifecycleService {
	return c.lifecycle
}

// RunService returns the service that executes installed extensions.
func (c *Container) RunService() *services.RunService {
	return c.runService
}

// Formatters returns the list output formatter factory.
func (c *Container) Formatters() *output.FormatterFactory {
	return c.formatters
}

// ExtensionsDir returns the canonical storage directory.
func (c *Container) ExtensionsDir() string {
	return c.store.Root()
}

// SystemConfig returns the system configuration.
func (c *Container) SystemConfig() *system.Config {
	return c.systemCfg
}

// Logger returns the configured logger.
func (c *Container) Logger() *slog.Logger {
	return c.logger
}
