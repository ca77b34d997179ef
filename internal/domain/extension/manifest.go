// Package extension defines the Extension aggregate: a package directory on
// disk whose LanternExt.toml manifest has been validated.
package extension

import (
	"github.com/reglet-dev/lantern/internal/domain/capabilities"
)

// ManifestFileName is the fixed manifest filename at the package root.
const ManifestFileName = "LanternExt.toml"

// Manifest is the parsed content of LanternExt.toml.
type Manifest struct {
	Name        string                   `json:"name" toml:"name" yaml:"name" jsonschema:"description=Extension name; also the CLI subcommand and install directory"`
	Description string                   `json:"description,omitempty" toml:"description,omitempty" yaml:"description,omitempty" jsonschema:"description=One-line summary shown by extension list"`
	Version     string                   `json:"version,omitempty" toml:"version,omitempty" yaml:"version,omitempty" jsonschema:"description=Semantic version of the extension"`
	EntryPoint  string                   `json:"entry_point" toml:"entry_point" yaml:"entry_point" jsonschema:"description=Script executed when the extension is invoked, relative to the package root"`
	Permissions capabilities.Permissions `json:"permissions,omitempty" toml:"permissions,omitempty" yaml:"permissions,omitempty" jsonschema:"description=Runtime permissions requested by the extension; everything else is denied"`
}
