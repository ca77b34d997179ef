// Package templates provides embedded templates for extension scaffolding.
package templates

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"
	"text/template"
)

//go:embed ts/*.tmpl js/*.tmpl
var files embed.FS

// ExtensionData contains the data used to render extension templates.
type ExtensionData struct {
	// Name is the extension name (e.g., "my-tool")
	Name string
	// Title is the title case name (e.g., "My Tool")
	Title       string
	Description string
	Read        []string
	Write       []string
	Net         []string
	Run         []string
	Env         []string
}

// Templates returns the parsed templates for lang ("ts" or "js").
func Templates(lang string) (*template.Template, error) {
	if _, err := TemplateFiles(lang); err != nil {
		return nil, err
	}

	tmpl := template.New("").Funcs(template.FuncMap{
		"tomlList": tomlList,
		"tomlString": func(s string) (string, error) {
			out, err := json.Marshal(s)
			return string(out), err
		},
	})

	err := fs.WalkDir(files, lang, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".tmpl") {
			return nil
		}

		content, err := files.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading template %s: %w", path, err)
		}

		// Use filename without .tmpl as template name
		name := strings.TrimPrefix(path, lang+"/")
		name = strings.TrimSuffix(name, ".tmpl")

		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return fmt.Errorf("parsing template %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}
	return tmpl, nil
}

// TemplateFiles returns the list of files generated for a language.
func TemplateFiles(lang string) ([]string, error) {
	switch lang {
	case "ts":
		return []string{"LanternExt.toml", "main.ts", "README.md"}, nil
	case "js":
		return []string{"LanternExt.toml", "main.js", "README.md"}, nil
	default:
		return nil, fmt.Errorf("unsupported language: %s (supported: ts, js)", lang)
	}
}

// tomlList renders a string slice as a TOML inline array. JSON string
// escapes are a subset of TOML basic string escapes.
func tomlList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	out, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(string(out), `","`, `", "`), nil
}
