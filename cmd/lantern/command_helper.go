package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reglet-dev/lantern/internal/infrastructure/container"
	"github.com/spf13/cobra"
)

// CommandContext provides common command dependencies.
type CommandContext struct {
	Container *container.Container
	Logger    *slog.Logger
	Context   context.Context
}

// CommandHandler is a function that executes with initialized dependencies.
type CommandHandler func(*CommandContext, *cobra.Command, []string) error

// withContainer wraps a command handler with container initialization from
// flags, LANTERN_* environment variables and the system config file.
func (a *app) withContainer(handler CommandHandler) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logger := slog.Default()

		c, err := container.New(container.Options{
			Logger:           logger,
			Stdout:           a.stdout,
			Stderr:           a.stderr,
			SystemConfigPath: a.v.GetString("config"),
			SecurityLevel:    a.v.GetString("security-level"),
			ExtensionsDir:    a.v.GetString("extensions-dir"),
			Timeout:          a.v.GetDuration("timeout"),
			KeepHostLogs:     a.v.GetBool("verbose"),
		})
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}

		return handler(&CommandContext{
			Container: c,
			Logger:    logger,
			Context:   cmd.Context(),
		}, cmd, args)
	}
}
