package output

import (
	"fmt"
	"io"
	"text/tabwriter"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
)

// EmptyMessage is printed when no extension is installed.
const EmptyMessage = "No extensions installed."

// TableFormatter formats extension listings as aligned columns, one
// extension per line.
type TableFormatter struct {
	writer      io.Writer
	EnableColor bool
}

// NewTableFormatter creates a new table formatter with color disabled.
func NewTableFormatter(w io.Writer) *TableFormatter {
	return &TableFormatter{writer: w}
}

// colorize returns the string wrapped in ANSI color codes if enabled.
func (f *TableFormatter) colorize(text, code string) string {
	if !f.EnableColor {
		return text
	}
	return code + text + colorReset
}

// Format writes the listing as a table.
func (f *TableFormatter) Format(views []ExtensionView) error {
	if len(views) == 0 {
		_, err := fmt.Fprintln(f.writer, EmptyMessage)
		return err
	}

	w := tabwriter.NewWriter(f.writer, 0, 0, 3, ' ', 0)
	if _, err := fmt.Fprintln(w, "NAME\tVERSION\tDESCRIPTION\tRISK"); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, v := range views {
		version := v.Version
		if version == "" {
			version = "-"
		}
		// Risk is last so its escape codes never skew column widths.
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.Name, version, v.Description, f.risk(v.Risk)); err != nil {
			return fmt.Errorf("failed to write extension info: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	return nil
}

func (f *TableFormatter) risk(level string) string {
	switch level {
	case "high":
		return f.colorize(level, colorRed)
	case "medium":
		return f.colorize(level, colorYellow)
	default:
		return level
	}
}
