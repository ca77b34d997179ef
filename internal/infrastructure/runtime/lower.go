package runtime

import (
	"github.com/reglet-dev/lantern/internal/infrastructure/modules"
)

const importMetaName = "__import_meta"

const (
	moduleWrapperHead = "(function (exports, require, module, __filename, __dirname, " + importMetaName + ") {"
	moduleWrapperTail = "\n})"
)

// wrapModule lowers a script module and wraps it in a function taking the
// CommonJS module scope.
func wrapModule(code []byte, locator string) (string, error) {
	lowered, err := modules.LowerToCommonJS(code, locator, importMetaName)
	if err != nil {
		return "", err
	}
	return moduleWrapperHead + string(lowered) + moduleWrapperTail, nil
}
