package output

import (
	"io"

	"github.com/goccy/go-yaml"
)

// YAMLFormatter formats extension listings as YAML.
type YAMLFormatter struct {
	writer io.Writer
}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter(w io.Writer) *YAMLFormatter {
	return &YAMLFormatter{writer: w}
}

// Format writes the listing as a YAML sequence.
func (f *YAMLFormatter) Format(views []ExtensionView) error {
	if views == nil {
		views = []ExtensionView{}
	}
	encoder := yaml.NewEncoder(f.writer, yaml.Indent(2), yaml.IndentSequence(true))

	if err := encoder.Encode(views); err != nil {
		return err
	}

	return encoder.Close()
}
