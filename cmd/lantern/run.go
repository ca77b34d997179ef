package main

import (
	apperrors "github.com/reglet-dev/lantern/internal/application/errors"
	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run <name> [args...]",
		Short: "Run an installed extension",
		Long: `Run an installed extension. Everything after the name is passed to the
extension unchanged, flags included. "lantern <name> [args...]" is a shorthand
for this command.`,
		Example: `  lantern run my-tool --test -x a
  lantern my-tool --test -x a`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Flag parsing is off so extension flags pass through untouched;
			// global flags before the name are parsed here instead.
			global := cmd.InheritedFlags()
			flags, rest := splitLeadingFlags(global, args)
			if err := global.Parse(flags); err != nil {
				return apperrors.NewValidationError("flags", err.Error())
			}
			if len(rest) == 0 {
				return apperrors.NewValidationError("name", "requires an extension name")
			}
			a.setupLogging()

			return a.withContainer(func(ctx *CommandContext, _ *cobra.Command, _ []string) error {
				return ctx.Container.RunService().Run(ctx.Context, rest[0], rest[1:])
			})(cmd, rest)
		},
	}
}
