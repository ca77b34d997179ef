package modules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// transpile strips type annotations and lowers JSX, leaving ES module syntax
// for the engine to link.
func transpile(code []byte, sourcefile string, loader api.Loader) ([]byte, error) {
	result := api.Transform(string(code), api.TransformOptions{
		Loader:     loader,
		Sourcefile: sourcefile,
		Target:     api.ESNext,
		Format:     api.FormatDefault,
		Sourcemap:  api.SourceMapInline,
		LogLevel:   api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return nil, messagesError(result.Errors)
	}
	return result.Code, nil
}

// messagesError folds esbuild diagnostics into one error.
func messagesError(msgs []api.Message) error {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			lines = append(lines, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		lines = append(lines, m.Text)
	}
	return errors.New(strings.Join(lines, "\n"))
}

// LowerToCommonJS rewrites ES module syntax into CommonJS for engines
// without native module support. Dynamic import() becomes a promise around
// require(), and import.meta is replaced by the free identifier metaName.
// Top-level await has no CommonJS equivalent and is reported as an error.
func LowerToCommonJS(code []byte, sourcefile, metaName string) ([]byte, error) {
	result := api.Transform(string(code), api.TransformOptions{
		Loader:     api.LoaderJS,
		Sourcefile: sourcefile,
		Format:     api.FormatCommonJS,
		Target:     api.ES2020,
		Platform:   api.PlatformNeutral,
		Sourcemap:  api.SourceMapInline,
		LogLevel:   api.LogLevelSilent,
		Define: map[string]string{
			"import.meta": metaName,
		},
		Supported: map[string]bool{
			"dynamic-import": false,
		},
	})
	if len(result.Errors) > 0 {
		return nil, messagesError(result.Errors)
	}
	return result.Code, nil
}
