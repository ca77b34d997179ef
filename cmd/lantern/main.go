// Command lantern installs, lists and runs sandboxed script extensions.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	apperrors "github.com/reglet-dev/lantern/internal/application/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(Execute(os.Args[1:], os.Stdout, os.Stderr))
}

// Execute runs the CLI and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd(stdout, stderr)
	root.SetArgs(routeArgs(root, args))
	if err := root.ExecuteContext(ctx); err != nil {
		return reportError(stderr, err)
	}
	return 0
}

// routeArgs turns "lantern [flags] <name> args..." into
// "lantern run [flags] <name> args..." when <name> is not a built-in command.
// Only root persistent flags may precede <name>.
func routeArgs(root *cobra.Command, args []string) []string {
	_, rest := splitLeadingFlags(root.PersistentFlags(), args)
	if len(rest) == 0 || strings.HasPrefix(rest[0], "-") {
		return args
	}
	root.InitDefaultHelpCmd()
	root.InitDefaultCompletionCmd()
	if cmd, _, err := root.Find(rest); err == nil && cmd != root {
		return args
	}
	return append([]string{"run"}, args...)
}

// splitLeadingFlags separates the flags of fs (with their values) at the
// start of args from the rest. It stops at the first argument that is not a
// known flag; a "--" terminator is consumed.
func splitLeadingFlags(fs *pflag.FlagSet, args []string) (flags, rest []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return args[:i], args[i+1:]
		}
		if len(arg) < 2 || arg[0] != '-' {
			return args[:i], args[i:]
		}

		name, _, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		var flag *pflag.Flag
		if strings.HasPrefix(arg, "--") {
			flag = fs.Lookup(name)
		} else if len(name) == 1 {
			flag = fs.ShorthandLookup(name)
		}
		if flag == nil {
			return args[:i], args[i:]
		}
		if !hasValue && flag.NoOptDefVal == "" {
			i++
		}
	}
	return args, nil
}

func reportError(stderr io.Writer, err error) int {
	var execErr *apperrors.ExecutionError
	if errors.As(err, &execErr) {
		if !execErr.Exited {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		if execErr.ExitCode > 0 {
			return execErr.ExitCode
		}
		return 1
	}
	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}
