// Package hostapi implements the host operations extensions reach through the
// "lantern" module. Every operation is checked against the run's grant before
// it touches the network, the filesystem, the environment or a child process.
package hostapi

import (
	"net"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/reglet-dev/lantern/internal/application/errors"
	"github.com/reglet-dev/lantern/internal/domain/capabilities"
)

// CapabilityChecker checks if operations are allowed based on granted capabilities
type CapabilityChecker struct {
	policy *capabilities.Policy
	grant  capabilities.Grant
}

// NewCapabilityChecker creates a checker for one run. Relative filesystem
// grants are anchored at cwd, "~" grants at the user's home directory.
func NewCapabilityChecker(grant capabilities.Grant, cwd string) *CapabilityChecker {
	home, _ := os.UserHomeDir()
	normalized := capabilities.NewGrant()
	for _, c := range grant {
		if c.Kind == capabilities.KindFS {
			c = anchorFilesystem(c, cwd, home)
		}
		normalized.Add(c)
	}
	return &CapabilityChecker{
		policy: capabilities.NewPolicy(),
		grant:  normalized,
	}
}

func anchorFilesystem(c capabilities.Capability, cwd, home string) capabilities.Capability {
	op, p, ok := strings.Cut(c.Pattern, ":")
	if !ok {
		return c
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		// Without a home directory the grant stays unexpanded and matches nothing.
		if home == "" {
			return c
		}
		p = filepath.Join(home, filepath.FromSlash(strings.TrimPrefix(p[1:], "/")))
	} else if !filepath.IsAbs(p) {
		p = filepath.Join(cwd, p)
	}
	return capabilities.Capability{Kind: c.Kind, Pattern: op + ":" + filepath.ToSlash(filepath.Clean(p))}
}

// Grant returns the normalized grant the checker enforces.
func (c *CapabilityChecker) Grant() capabilities.Grant {
	return c.grant
}

// Check verifies if the requested capability is granted.
func (c *CapabilityChecker) Check(kind, pattern string) error {
	requested := capabilities.Capability{Kind: kind, Pattern: pattern}
	if c.policy.IsGranted(requested, c.grant) {
		return nil
	}
	return apperrors.NewCapabilityError("no matching grant", requested)
}

// CheckRead verifies an absolute path may be read.
func (c *CapabilityChecker) CheckRead(path string) error {
	return c.Check(capabilities.KindFS, "read:"+filepath.ToSlash(path))
}

// CheckWrite verifies an absolute path may be written.
func (c *CapabilityChecker) CheckWrite(path string) error {
	return c.Check(capabilities.KindFS, "write:"+filepath.ToSlash(path))
}

// CheckEnv verifies an environment variable may be read.
func (c *CapabilityChecker) CheckEnv(name string) error {
	return c.Check(capabilities.KindEnv, name)
}

// CheckNetwork verifies host:port may be contacted.
func (c *CapabilityChecker) CheckNetwork(host, port string) error {
	target := host
	if strings.Contains(host, ":") {
		target = "[" + host + "]"
	}
	if port != "" {
		target += ":" + port
	}
	return c.Check(capabilities.KindNetwork, target)
}

// CheckExec verifies a command may be spawned. Shell and interpreter
// invocations that carry inline code need a grant naming the command; a bare
// "*" grant does not cover them.
func (c *CapabilityChecker) CheckExec(command string, args []string) error {
	execType := detectExecutionType(command, args)
	if execType == execTypeSafe {
		return c.Check(capabilities.KindExec, command)
	}

	requested := capabilities.Capability{Kind: capabilities.KindExec, Pattern: command}
	named := capabilities.NewGrant()
	for _, g := range c.grant.OfKind(capabilities.KindExec) {
		if g.Pattern != "*" {
			named = append(named, g)
		}
	}
	if c.policy.IsGranted(requested, named) {
		return nil
	}
	return apperrors.NewCapabilityError(string(execType)+" requires a run permission naming the command", requested)
}

// NamesHost reports whether a network grant names host literally, which is
// what unlocks private and loopback destinations.
func (c *CapabilityChecker) NamesHost(host string) bool {
	host = strings.ToLower(strings.Trim(host, "[]"))
	for _, g := range c.grant.OfKind(capabilities.KindNetwork) {
		grantHost, _ := capabilities.SplitHostPort(g.Pattern)
		if strings.ToLower(grantHost) == host {
			return true
		}
		// Grants may spell an IP differently (e.g. "::1" vs "0:0::1").
		if gip, hip := net.ParseIP(grantHost), net.ParseIP(host); gip != nil && hip != nil && gip.Equal(hip) {
			return true
		}
	}
	return false
}
