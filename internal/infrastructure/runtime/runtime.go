// Package runtime runs extension entry points in an isolated goja VM: one
// VM, one event loop and one module registry per run, with host operations
// reached only through the run's ExtensionState.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	goruntime "runtime"
	"time"

	"github.com/dop251/goja"
	apperrors "github.com/reglet-dev/lantern/internal/application/errors"
	"github.com/reglet-dev/lantern/internal/domain/capabilities"
	"github.com/reglet-dev/lantern/internal/domain/extension"
	"github.com/reglet-dev/lantern/internal/domain/values"
	"github.com/reglet-dev/lantern/internal/infrastructure/hostapi"
	"github.com/reglet-dev/lantern/internal/infrastructure/modules"
	"github.com/reglet-dev/lantern/internal/version"
	"golang.org/x/term"
)

// Options configure one run.
type Options struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Version version.Info
	// Timeout bounds the whole run; zero means no limit.
	Timeout time.Duration
	// KeepHostLogs leaves the host's default logger active during the run.
	KeepHostLogs bool
}

// Run executes ext's entry point and drives the event loop until no timers
// or host operations remain. Every failure is returned as an
// *apperrors.ExecutionError.
func Run(ctx context.Context, state *ExtensionState, ext *extension.Extension, loader ModuleLoader, opts Options) error {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	if !opts.KeepHostLogs {
		prev := slog.Default()
		slog.SetDefault(slog.New(slog.DiscardHandler))
		defer slog.SetDefault(prev)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(WithState(ctx, state))
	defer cancel()

	isTTY := term.IsTerminal(int(os.Stdout.Fd()))
	info := bootInfo{
		Version:   opts.Version.Version,
		UserAgent: opts.Version.UserAgent(),
		RunID:     state.RunID().String(),
		CPUCount:  goruntime.NumCPU(),
		IsTTY:     isTTY,
		NoColor:   os.Getenv("NO_COLOR") != "" || !isTTY,
	}

	// goja is not goroutine safe; the VM lives and dies on one locked thread.
	errCh := make(chan error, 1)
	go func() {
		goruntime.LockOSThread()
		defer goruntime.UnlockOSThread()
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("engine panic: %v", r)
			}
		}()
		errCh <- execute(ctx, ext, loader, info, opts)
	}()
	err := <-errCh

	return classify(ctx, ext.Name(), opts.Timeout, err)
}

func execute(ctx context.Context, ext *extension.Extension, loader ModuleLoader, info bootInfo, opts Options) error {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	loop := newEventLoop(vm)
	defer close(loop.done)
	defer loop.stopTimers()

	wasm := newWasmHost(opts.Stdout, opts.Stderr)
	defer wasm.close(context.WithoutCancel(ctx))

	entry := loader.EntryLocator(ext.Manifest().EntryPoint)
	info.Main = entry.String()

	if err := installGlobals(ctx, loop, info, opts.Stdout, opts.Stderr); err != nil {
		return fmt.Errorf("failed to bootstrap engine: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	reg := newRegistry(ctx, loop, loader, wasm)
	if err := loop.enter(func() error {
		_, err := reg.load(entry)
		return err
	}); err != nil {
		return err
	}
	return loop.run(ctx)
}

func classify(ctx context.Context, name string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}

	var exit *exitRequest
	if errors.As(err, &exit) {
		if exit.code == 0 {
			return nil
		}
		execErr := apperrors.NewExecutionError(name, fmt.Sprintf("exited with code %d", exit.code), nil)
		execErr.ExitCode = exit.code
		execErr.Exited = true
		return execErr
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.NewExecutionError(name, fmt.Sprintf("run timed out after %s", timeout), nil)
	case errors.Is(ctx.Err(), context.Canceled):
		return apperrors.NewExecutionError(name, "run cancelled", ctx.Err())
	}

	var (
		sandboxErr *apperrors.SandboxError
		exception  *goja.Exception
	)
	switch {
	case errors.As(err, &sandboxErr):
		return apperrors.NewExecutionError(name, "module sandbox violation", err)
	case errors.As(err, &exception):
		return apperrors.NewExecutionError(name, "uncaught exception", err)
	default:
		return apperrors.NewExecutionError(name, "run failed", err)
	}
}

// RunnerOptions configure a Runner.
type RunnerOptions struct {
	Stdout       io.Writer
	Stderr       io.Writer
	Version      version.Info
	Timeout      time.Duration
	HTTPTimeout  time.Duration
	HTTPRetries  int
	KeepHostLogs bool
}

// Runner runs extensions with a fresh loader, state and host backend per
// invocation.
type Runner struct {
	opts RunnerOptions
}

// NewRunner creates a Runner.
func NewRunner(opts RunnerOptions) *Runner {
	return &Runner{opts: opts}
}

// Run executes ext with grant enforced on every host operation and args
// passed through verbatim.
func (r *Runner) Run(ctx context.Context, ext *extension.Extension, grant capabilities.Grant, args []string) error {
	userAgent := r.opts.Version.UserAgent()

	loader, err := modules.NewLoader(ext.Path(), modules.Options{
		UserAgent: userAgent,
		Timeout:   r.opts.HTTPTimeout,
		Retries:   r.opts.HTTPRetries,
	})
	if err != nil {
		return apperrors.NewExecutionError(ext.Name(), "failed to prepare module loader", err)
	}

	state := NewExtensionState(args, func(runID values.RunID) (*hostapi.Backend, error) {
		return hostapi.New(grant, hostapi.Options{
			Version:   r.opts.Version.Version,
			UserAgent: userAgent,
			Extension: ext.Name(),
			RunID:     runID.String(),
			Timeout:   r.opts.HTTPTimeout,
		})
	})

	return Run(ctx, state, ext, loader, Options{
		Stdout:       r.opts.Stdout,
		Stderr:       r.opts.Stderr,
		Version:      r.opts.Version,
		Timeout:      r.opts.Timeout,
		KeepHostLogs: r.opts.KeepHostLogs,
	})
}
