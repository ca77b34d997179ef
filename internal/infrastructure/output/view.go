// Package output renders extension listings for the CLI.
package output

import "github.com/reglet-dev/lantern/internal/domain/extension"

// ExtensionView is the serialized form of an installed extension.
type ExtensionView struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string   `json:"version,omitempty" yaml:"version,omitempty"`
	Path        string   `json:"path" yaml:"path"`
	EntryPoint  string   `json:"entry_point" yaml:"entry_point"`
	Risk        string   `json:"risk" yaml:"risk"`
	Permissions []string `json:"permissions" yaml:"permissions"`
}

// NewExtensionViews converts extensions for rendering, preserving order.
func NewExtensionViews(exts []*extension.Extension) []ExtensionView {
	views := make([]ExtensionView, 0, len(exts))
	for _, ext := range exts {
		view := ExtensionView{
			Name:        ext.Name(),
			Description: ext.Description(),
			Version:     ext.Version(),
			Path:        ext.Path(),
			EntryPoint:  ext.Manifest().EntryPoint,
			Risk:        "low",
			Permissions: []string{},
		}
		if grant, err := ext.Grant(); err == nil {
			view.Permissions = grant.Strings()
			view.Risk = grant.HighestRisk().String()
		}
		views = append(views, view)
	}
	return views
}

// Formatter renders a list of extensions.
type Formatter interface {
	Format(views []ExtensionView) error
}
