// Package capabilities defines the permission model for extensions: the
// manifest-level Permissions, the engine-level Capability grants they
// translate into, and the policy that matches runtime requests against them.
package capabilities

import "strings"

// Capability kinds.
const (
	KindFS      = "fs"
	KindNetwork = "network"
	KindEnv     = "env"
	KindExec    = "exec"
)

var (
	// Filesystem patterns that expose the whole system or user homes.
	broadFilesystemPatterns = []string{
		"read:/", "write:/",
		"read:/etc", "write:/etc",
		"read:/root", "write:/root",
		"read:/home", "write:/home",
		"read:~", "write:~",
	}

	dangerousShells = []string{"bash", "sh", "zsh", "fish", "dash", "ksh", "/bin/bash", "/bin/sh"}

	// Matches base and versioned variants (python3, python3.11, ...).
	dangerousInterpreters = []string{
		"python", "perl", "ruby", "node", "nodejs", "deno", "bun",
		"php", "lua", "awk", "gawk", "mawk", "nawk",
		"tclsh", "wish", "expect", "irb",
	}

	broadEnvPatterns = []string{"*", "AWS_*", "AZURE_*", "GCP_*", "GITHUB_*"}
)

// RiskLevel represents the security risk level of a capability.
type RiskLevel int

const (
	// RiskLevelLow represents specific, narrow permissions.
	RiskLevelLow RiskLevel = iota
	// RiskLevelMedium represents network access or command execution.
	RiskLevelMedium
	// RiskLevelHigh represents broad permissions or arbitrary code execution.
	RiskLevelHigh
)

// String returns a human-readable representation of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLevelLow:
		return "low"
	case RiskLevelMedium:
		return "medium"
	case RiskLevelHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Capability is a single engine-level grant or request.
type Capability struct {
	Kind    string // fs, network, env, exec
	Pattern string // e.g. "read:/tmp/data", "api.github.com:443", "HOME", "git"
}

// Equals checks if two capabilities are equal.
func (c Capability) Equals(other Capability) bool {
	return c.Kind == other.Kind && c.Pattern == other.Pattern
}

// String returns "kind:pattern".
func (c Capability) String() string {
	return c.Kind + ":" + c.Pattern
}

// IsBroad returns true if this capability pattern is overly permissive.
func (c Capability) IsBroad() bool {
	switch c.Kind {
	case KindFS:
		if strings.Contains(c.Pattern, "**") {
			return true
		}
		return matchesAny(strings.TrimSuffix(c.Pattern, "/"), broadFilesystemPatterns) ||
			c.Pattern == "read:/" || c.Pattern == "write:/"

	case KindExec:
		if c.Pattern == "**" || c.Pattern == "*" {
			return true
		}
		return matchesAny(c.Pattern, dangerousShells) || matchesInterpreter(c.Pattern)

	case KindNetwork:
		return c.Pattern == "*"

	case KindEnv:
		return matchesAny(c.Pattern, broadEnvPatterns)

	default:
		return false
	}
}

// RiskLevel returns the security risk level of this capability.
func (c Capability) RiskLevel() RiskLevel {
	if c.IsBroad() {
		return RiskLevelHigh
	}

	if c.Kind == KindNetwork || c.Kind == KindExec {
		return RiskLevelMedium
	}

	if c.Kind == KindFS && (strings.HasPrefix(c.Pattern, "write:") || strings.HasPrefix(c.Pattern, "read:/etc/")) {
		return RiskLevelMedium
	}

	return RiskLevelLow
}

// RiskDescription returns a human-readable explanation of the security risk.
func (c Capability) RiskDescription() string {
	switch c.Kind {
	case KindFS:
		if strings.Contains(c.Pattern, "**") || c.Pattern == "read:/" || c.Pattern == "write:/" {
			return "Extension can access ALL files on the system"
		}
		if strings.Contains(c.Pattern, "/etc") {
			return "Extension can access sensitive system configuration"
		}
		if strings.Contains(c.Pattern, "/root") || strings.Contains(c.Pattern, "/home") || strings.Contains(c.Pattern, "~") {
			return "Extension can access user home directories and private files"
		}
		if strings.HasPrefix(c.Pattern, "write:") {
			return "Extension can modify files under " + strings.TrimPrefix(c.Pattern, "write:")
		}
		return "Extension can read files under " + strings.TrimPrefix(c.Pattern, "read:")

	case KindExec:
		if matchesAny(c.Pattern, dangerousShells) {
			return "Extension can execute arbitrary shell commands"
		}
		if matchesInterpreter(c.Pattern) {
			return "Extension can execute arbitrary code via " + extractInterpreterName(c.Pattern) + " interpreter"
		}
		if c.Pattern == "*" || c.Pattern == "**" {
			return "Extension can execute any command"
		}
		return "Extension can execute specific command: " + c.Pattern

	case KindNetwork:
		if c.Pattern == "*" {
			return "Extension can connect to any host on the internet"
		}
		return "Extension can make network requests to: " + c.Pattern

	case KindEnv:
		if c.Pattern == "*" {
			return `Grants access to ALL environment variables including:
    • Secrets and API keys from other tools
    • Shell configuration (PATH, HOME, etc.)

Recommendation: Grant only specific variables`
		}
		if strings.HasSuffix(c.Pattern, "_*") {
			return "Extension can read every environment variable starting with " + strings.TrimSuffix(c.Pattern, "*")
		}
		return "Extension can access environment variable: " + c.Pattern

	default:
		return "Extension requires capability: " + c.String()
	}
}

func matchesAny(pattern string, list []string) bool {
	for _, item := range list {
		if pattern == item {
			return true
		}
	}
	return false
}

func matchesInterpreter(pattern string) bool {
	for _, base := range dangerousInterpreters {
		if isInterpreterVariant(pattern, base) {
			return true
		}
	}
	return false
}

// extractInterpreterName returns the base interpreter name from a pattern
// e.g., "python3.11" -> "python", "node:/script.js" -> "node"
func extractInterpreterName(pattern string) string {
	pattern = pattern[strings.LastIndex(pattern, "/")+1:]
	for i, ch := range pattern {
		if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')) {
			return pattern[:i]
		}
	}
	return pattern
}

// isInterpreterVariant reports whether pattern names baseInterpreter itself,
// a versioned variant ("python3.11") or a path to one ("/usr/bin/python3").
// Unrelated names sharing a prefix ("pythonista") do not match.
func isInterpreterVariant(pattern, baseInterpreter string) bool {
	pattern = pattern[strings.LastIndex(pattern, "/")+1:]
	if pattern == baseInterpreter {
		return true
	}

	if !strings.HasPrefix(pattern, baseInterpreter) {
		return false
	}

	suffix := pattern[len(baseInterpreter):]
	if len(suffix) > 0 {
		first := suffix[0]
		return (first >= '0' && first <= '9') || first == '.' || first == ':'
	}

	return false
}
