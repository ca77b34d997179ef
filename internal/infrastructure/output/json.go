package output

import (
	"encoding/json"
	"io"
)

// JSONFormatter formats extension listings as JSON.
type JSONFormatter struct {
	writer io.Writer
	indent bool
}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter(w io.Writer, indent bool) *JSONFormatter {
	return &JSONFormatter{
		writer: w,
		indent: indent,
	}
}

// Format writes the listing as a JSON array followed by a newline.
func (f *JSONFormatter) Format(views []ExtensionView) error {
	if views == nil {
		views = []ExtensionView{}
	}

	var data []byte
	var err error
	if f.indent {
		data, err = json.MarshalIndent(views, "", "  ")
	} else {
		data, err = json.Marshal(views)
	}
	if err != nil {
		return err
	}

	_, err = f.writer.Write(append(data, '\n'))
	return err
}
