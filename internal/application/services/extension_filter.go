package services

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/reglet-dev/lantern/internal/domain/extension"
)

// ExtensionEnv is the environment --filter expressions are evaluated against.
type ExtensionEnv struct {
	Name        string   `expr:"name"`
	Description string   `expr:"description"`
	Version     string   `expr:"version"`
	Risk        string   `expr:"risk"`
	Permissions []string `expr:"permissions"`
}

// NewExtensionEnv builds the filter environment for ext.
func NewExtensionEnv(ext *extension.Extension) ExtensionEnv {
	env := ExtensionEnv{
		Name:        ext.Name(),
		Description: ext.Description(),
		Version:     ext.Version(),
		Risk:        "low",
	}
	if grant, err := ext.Grant(); err == nil {
		env.Permissions = grant.Strings()
		env.Risk = grant.HighestRisk().String()
	}
	return env
}

// CompileFilter compiles a boolean filter expression once, before any
// extension is evaluated.
func CompileFilter(filter string) (*vm.Program, error) {
	program, err := expr.Compile(filter, expr.Env(ExtensionEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid --filter expression: %w\nExample: risk == 'high' || 'network:*' in permissions", err)
	}
	return program, nil
}

// matchesFilter reports whether ext satisfies program. A nil program matches
// everything.
func matchesFilter(program *vm.Program, ext *extension.Extension) (bool, error) {
	if program == nil {
		return true, nil
	}
	out, err := expr.Run(program, NewExtensionEnv(ext))
	if err != nil {
		return false, err
	}
	ok, _ := out.(bool)
	return ok, nil
}
