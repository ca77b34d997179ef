package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries per-invocation CLI state.
type app struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: viper.New(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "lantern",
		Short: "Run sandboxed script extensions",
		Long: `Lantern installs and runs script extensions written in JavaScript or
TypeScript. Each extension runs in an isolated engine and can only reach the
files, hosts, commands and environment variables its LanternExt.toml declares.

Run an installed extension with:
  lantern <name> [args...]`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			a.setupLogging()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.String("config", "", "system config file (default is ~/.config/lantern/config.yaml)")
	flags.BoolP("verbose", "v", false, "enable verbose output")
	flags.String("extensions-dir", "", "override the extensions storage directory")
	flags.String("security-level", "", "install review policy: strict, standard or permissive")
	flags.Duration("timeout", 0, "abort extension runs after this duration (0 disables)")

	a.v.SetEnvPrefix("LANTERN")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	_ = a.v.BindPFlags(flags)

	root.AddCommand(
		newExtensionCmd(a),
		newRunCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) setupLogging() {
	level := slog.LevelInfo
	if a.v.GetBool("verbose") {
		level = slog.LevelDebug
	}

	// Using TextHandler for CLI friendliness
	logger := slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
