// Package capabilities provides the terminal side of permission review.
package capabilities

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/reglet-dev/lantern/internal/domain/capabilities"
	"golang.org/x/term"
)

// TerminalPrompter asks for install-time permission approval on the terminal.
type TerminalPrompter struct {
	in *os.File
}

// NewTerminalPrompter creates a new TerminalPrompter reading stdin.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{in: os.Stdin}
}

// IsInteractive checks if we're running in an interactive terminal.
func (p *TerminalPrompter) IsInteractive() bool {
	return term.IsTerminal(int(p.in.Fd()))
}

// ConfirmPermissions shows the requested permissions with their risk and
// asks whether to continue. Aborting the form counts as no.
func (p *TerminalPrompter) ConfirmPermissions(extensionName string, requested capabilities.Grant) (bool, error) {
	confirmed := false
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Extension %s requests the following permissions", extensionName)).
		Description(p.describeGrant(requested)).
		Affirmative("Install").
		Negative("Cancel").
		Value(&confirmed).
		Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return confirmed, nil
}

func (p *TerminalPrompter) describeGrant(grant capabilities.Grant) string {
	var b strings.Builder
	for _, c := range grant {
		fmt.Fprintf(&b, "  [%s] %s\n", c.RiskLevel(), p.describeCapability(c))
		if c.IsBroad() {
			fmt.Fprintf(&b, "         %s\n", c.RiskDescription())
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// describeCapability returns a human-readable description of a capability.
func (p *TerminalPrompter) describeCapability(c capabilities.Capability) string {
	switch c.Kind {
	case capabilities.KindNetwork:
		if c.Pattern == "*" {
			return "Network access to any host"
		}
		return fmt.Sprintf("Network access to %s", c.Pattern)
	case capabilities.KindFS:
		if path, ok := strings.CutPrefix(c.Pattern, capabilities.ClassRead+":"); ok {
			return fmt.Sprintf("Read files: %s", path)
		}
		if path, ok := strings.CutPrefix(c.Pattern, capabilities.ClassWrite+":"); ok {
			return fmt.Sprintf("Write files: %s", path)
		}
		return fmt.Sprintf("Filesystem: %s", c.Pattern)
	case capabilities.KindExec:
		if c.Pattern == "/bin/sh" || c.Pattern == "sh" || c.Pattern == "bash" {
			return "Shell execution (executes shell commands)"
		}
		return fmt.Sprintf("Execute commands: %s", c.Pattern)
	case capabilities.KindEnv:
		return fmt.Sprintf("Read environment variables: %s", c.Pattern)
	default:
		return fmt.Sprintf("%s: %s", c.Kind, c.Pattern)
	}
}

// FormatNonInteractiveError creates a helpful error message for non-interactive mode.
func (p *TerminalPrompter) FormatNonInteractiveError(extensionName string, requested capabilities.Grant) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "extension %s requires permissions (running in non-interactive mode)\n\n", extensionName)
	msg.WriteString("Requested permissions:\n")
	for _, c := range requested {
		fmt.Fprintf(&msg, "  - %s\n", p.describeCapability(c))
	}
	msg.WriteString("\nTo grant these permissions:\n")
	msg.WriteString("  1. Run interactively and approve when prompted\n")
	msg.WriteString("  2. Use the --yes flag\n")
	msg.WriteString("  3. Set security.level to permissive in ~/.config/lantern/config.yaml\n")

	return errors.New(msg.String())
}
