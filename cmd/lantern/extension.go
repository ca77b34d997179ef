package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/expr-lang/expr/vm"
	"github.com/reglet-dev/lantern/internal/application/services"
	"github.com/reglet-dev/lantern/internal/domain/capabilities"
	"github.com/reglet-dev/lantern/internal/domain/extension"
	"github.com/reglet-dev/lantern/internal/domain/values"
	"github.com/reglet-dev/lantern/internal/infrastructure/output"
	"github.com/reglet-dev/lantern/internal/templates"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newExtensionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "extension",
		Aliases: []string{"ext"},
		Short:   "Manage extensions",
		Long:    `Install, uninstall, list and scaffold extensions.`,
	}
	cmd.AddCommand(
		newExtensionInstallCmd(a),
		newExtensionUninstallCmd(a),
		newExtensionListCmd(a),
		newExtensionNewCmd(a),
		newExtensionSchemaCmd(a),
	)
	return cmd
}

func newExtensionInstallCmd(a *app) *cobra.Command {
	var assumeYes bool

	cmd := &cobra.Command{
		Use:   "install <path>",
		Short: "Install an extension from a local directory",
		Long: `Validate the package at <path>, review the permissions it requests and
copy it into the extensions directory.`,
		Example: `  lantern extension install ./my-tool
  lantern extension install ./my-tool --yes`,
		Args: cobra.ExactArgs(1),
		RunE: a.withContainer(func(ctx *CommandContext, _ *cobra.Command, args []string) error {
			ext, err := extension.FromDir(args[0])
			if err != nil {
				return err
			}

			installed, err := ctx.Container.LifecycleService().Install(ctx.Context, ext, services.InstallOptions{AssumeYes: assumeYes})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(a.stdout, "✓ Installed extension '%s' in %s\n", installed.Name(), installed.Path())
			return err
		}),
	}

	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "approve requested permissions without prompting")
	return cmd
}

func newExtensionUninstallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall <name>",
		Aliases: []string{"remove", "rm"},
		Short:   "Remove an installed extension",
		Args:    cobra.ExactArgs(1),
		RunE: a.withContainer(func(ctx *CommandContext, _ *cobra.Command, args []string) error {
			if err := ctx.Container.LifecycleService().UninstallByName(ctx.Context, args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(a.stdout, "✓ Uninstalled extension '%s'\n", args[0])
			return err
		}),
	}
}

func newExtensionListCmd(a *app) *cobra.Command {
	var (
		format     string
		filterExpr string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed extensions",
		Long: `List installed extensions. Entries that fail validation are skipped with a
warning.

The --filter expression sees name, description, version, risk and
permissions (e.g. "fs:read:./data", "network:api.github.com").`,
		Example: `  lantern extension list
  lantern extension list --format json
  lantern extension list --filter "risk == 'high'"
  lantern extension list --filter "'network:*' in permissions"`,
		Args: cobra.NoArgs,
		RunE: a.withContainer(func(ctx *CommandContext, _ *cobra.Command, _ []string) error {
			formatter, err := ctx.Container.Formatters().Create(format, a.stdout, output.Options{
				Indent: true,
				Color:  colorEnabled(a),
			})
			if err != nil {
				return err
			}

			program, err := compileFilter(filterExpr)
			if err != nil {
				return err
			}

			result, err := ctx.Container.LifecycleService().List(ctx.Context, program)
			if err != nil {
				return fmt.Errorf("failed to list extensions: %w", err)
			}
			ctx.Logger.Debug("listed extensions",
				"dir", ctx.Container.ExtensionsDir(),
				"valid", len(result.Extensions),
				"filtered", len(result.Filtered))

			return formatter.Format(output.NewExtensionViews(result.Extensions))
		}),
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table, json or yaml")
	cmd.Flags().StringVar(&filterExpr, "filter", "", "filter expression (e.g. \"risk == 'high'\")")
	return cmd
}

func newExtensionNewCmd(a *app) *cobra.Command {
	var (
		description string
		lang        string
		outputDir   string
		force       bool
		perms       capabilities.Permissions
	)

	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Create a new extension scaffold",
		Long: `Generate a new extension package with a manifest, an entry point and a
README. The generated package is validated before the command returns.`,
		Example: `  lantern extension new my-tool
  lantern extension new my-tool --lang js --description "Does a thing"
  lantern extension new gh-stats --net api.github.com --env GITHUB_TOKEN`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			name := args[0]
			if err := values.ValidateName(name); err != nil {
				return err
			}
			if err := perms.Validate(); err != nil {
				return fmt.Errorf("invalid permissions: %w", err)
			}
			if outputDir == "" {
				outputDir = "./" + name
			}
			if description == "" {
				description = toTitleCase(name) + " extension"
			}

			dir, err := scaffold(lang, outputDir, force, templates.ExtensionData{
				Name:        name,
				Title:       toTitleCase(name),
				Description: description,
				Read:        perms.Read,
				Write:       perms.Write,
				Net:         perms.Net,
				Run:         perms.Run,
				Env:         perms.Env,
			})
			if err != nil {
				return err
			}

			if _, err := extension.FromDir(dir); err != nil {
				return fmt.Errorf("generated package is invalid: %w", err)
			}

			_, _ = fmt.Fprintf(a.stdout, "✓ Created extension '%s' in %s\n\n", name, dir)
			_, _ = fmt.Fprintln(a.stdout, "Next steps:")
			_, _ = fmt.Fprintf(a.stdout, "  1. Edit %s/main.%s\n", outputDir, lang)
			_, _ = fmt.Fprintf(a.stdout, "  2. Declare permissions in %s/%s\n", outputDir, extension.ManifestFileName)
			_, _ = fmt.Fprintf(a.stdout, "  3. lantern extension install %s\n", outputDir)
			_, err = fmt.Fprintf(a.stdout, "  4. lantern %s\n", name)
			return err
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "extension description")
	cmd.Flags().StringVarP(&lang, "lang", "l", "ts", "entry point language: ts or js")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default: ./<name>)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing files")
	cmd.Flags().StringSliceVar(&perms.Read, "read", nil, "paths the extension may read")
	cmd.Flags().StringSliceVar(&perms.Write, "write", nil, "paths the extension may write")
	cmd.Flags().StringSliceVar(&perms.Net, "net", nil, "hosts the extension may connect to")
	cmd.Flags().StringSliceVar(&perms.Run, "run", nil, "commands the extension may run")
	cmd.Flags().StringSliceVar(&perms.Env, "env", nil, "environment variables the extension may read")
	return cmd
}

func scaffold(lang, outputDir string, force bool, data templates.ExtensionData) (string, error) {
	tmpl, err := templates.Templates(lang)
	if err != nil {
		return "", err
	}
	files, err := templates.TemplateFiles(lang)
	if err != nil {
		return "", err
	}

	dir, err := filepath.Abs(outputDir)
	if err != nil {
		return "", fmt.Errorf("resolving output path: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	for _, file := range files {
		outputPath := filepath.Join(dir, file)

		if !force {
			if _, err := os.Stat(outputPath); err == nil {
				return "", fmt.Errorf("file already exists: %s (use --force to overwrite)", outputPath)
			}
		}

		var buf bytes.Buffer
		if err := tmpl.ExecuteTemplate(&buf, file, data); err != nil {
			return "", fmt.Errorf("rendering %s: %w", file, err)
		}

		//nolint:gosec // G306: scaffolded sources are meant to be shared
		if err := os.WriteFile(outputPath, buf.Bytes(), 0o644); err != nil {
			return "", fmt.Errorf("writing %s: %w", outputPath, err)
		}
		slog.Debug("created file", "path", outputPath)
	}
	return dir, nil
}

func newExtensionSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of " + extension.ManifestFileName,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			schema, err := extension.ManifestSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.stdout, string(schema))
			return err
		},
	}
}

// toTitleCase converts "my-tool" to "My Tool".
func toTitleCase(s string) string {
	words := strings.Split(s, "-")
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(string(word[0])) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

// compileFilter compiles --filter once, before anything is loaded. An
// empty expression matches everything.
func compileFilter(filter string) (*vm.Program, error) {
	if filter == "" {
		return nil, nil
	}
	return services.CompileFilter(filter)
}

func colorEnabled(a *app) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := a.stdout.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
