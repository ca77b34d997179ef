package capabilities

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/bmatcuk/doublestar/v4"
)

// Permission classes as they appear in the manifest's [permissions] table.
const (
	ClassRead  = "read"
	ClassWrite = "write"
	ClassEnv   = "env"
	ClassRun   = "run"
	ClassNet   = "net"
)

var envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*\*?$`)

// Permissions is the declarative permission set of an extension manifest.
// The zero value denies everything.
type Permissions struct {
	Read  []string `json:"read,omitempty" toml:"read,omitempty" yaml:"read,omitempty" jsonschema:"description=Filesystem paths the extension may read (the path and everything beneath it)"`
	Write []string `json:"write,omitempty" toml:"write,omitempty" yaml:"write,omitempty" jsonschema:"description=Filesystem paths the extension may write"`
	Env   []string `json:"env,omitempty" toml:"env,omitempty" yaml:"env,omitempty" jsonschema:"description=Environment variables the extension may read (NAME or PREFIX_*)"`
	Run   []string `json:"run,omitempty" toml:"run,omitempty" yaml:"run,omitempty" jsonschema:"description=Commands the extension may spawn"`
	Net   []string `json:"net,omitempty" toml:"net,omitempty" yaml:"net,omitempty" jsonschema:"description=Hosts the extension may connect to (host or host:port)"`
}

// PermissionError reports a malformed permission entry.
type PermissionError struct {
	Class  string
	Entry  string
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("invalid %s permission %q: %s", e.Class, e.Entry, e.Reason)
}

// IsEmpty reports whether no permission is declared at all.
func (p Permissions) IsEmpty() bool {
	return len(p.Read)+len(p.Write)+len(p.Env)+len(p.Run)+len(p.Net) == 0
}

// Validate checks every entry; the first malformed one is returned.
func (p Permissions) Validate() error {
	for _, entry := range p.Read {
		if err := validatePath(ClassRead, entry); err != nil {
			return err
		}
	}
	for _, entry := range p.Write {
		if err := validatePath(ClassWrite, entry); err != nil {
			return err
		}
	}
	for _, entry := range p.Env {
		if entry != "*" && !envNamePattern.MatchString(entry) {
			return &PermissionError{Class: ClassEnv, Entry: entry, Reason: "must be a variable name, a NAME_* prefix or *"}
		}
	}
	for _, entry := range p.Run {
		if strings.TrimSpace(entry) == "" {
			return &PermissionError{Class: ClassRun, Entry: entry, Reason: "empty command"}
		}
		if strings.ContainsRune(entry, 0) || strings.TrimSpace(entry) != entry {
			return &PermissionError{Class: ClassRun, Entry: entry, Reason: "command must not contain NUL or surrounding whitespace"}
		}
	}
	for _, entry := range p.Net {
		if err := validateHost(entry); err != nil {
			return err
		}
	}
	return nil
}

// ToGrant translates the permission set into engine grants. Translation is
// total: a valid Permissions always yields a Grant, and PermissionsFromGrant
// reverses it.
func (p Permissions) ToGrant() (Grant, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	grant := NewGrant()
	for _, entry := range p.Read {
		grant.Add(Capability{Kind: KindFS, Pattern: ClassRead + ":" + entry})
	}
	for _, entry := range p.Write {
		grant.Add(Capability{Kind: KindFS, Pattern: ClassWrite + ":" + entry})
	}
	for _, entry := range p.Env {
		grant.Add(Capability{Kind: KindEnv, Pattern: entry})
	}
	for _, entry := range p.Run {
		grant.Add(Capability{Kind: KindExec, Pattern: entry})
	}
	for _, entry := range p.Net {
		grant.Add(Capability{Kind: KindNetwork, Pattern: entry})
	}
	return grant, nil
}

// PermissionsFromGrant rebuilds the manifest form of a grant.
func PermissionsFromGrant(g Grant) (Permissions, error) {
	var p Permissions
	for _, c := range g {
		switch c.Kind {
		case KindFS:
			op, path, ok := strings.Cut(c.Pattern, ":")
			switch {
			case ok && op == ClassRead:
				p.Read = append(p.Read, path)
			case ok && op == ClassWrite:
				p.Write = append(p.Write, path)
			default:
				return Permissions{}, fmt.Errorf("filesystem capability %q has no read/write operation", c.Pattern)
			}
		case KindEnv:
			p.Env = append(p.Env, c.Pattern)
		case KindExec:
			p.Run = append(p.Run, c.Pattern)
		case KindNetwork:
			p.Net = append(p.Net, c.Pattern)
		default:
			return Permissions{}, fmt.Errorf("unknown capability kind %q", c.Kind)
		}
	}
	return p, p.Validate()
}

func validatePath(class, entry string) error {
	if strings.TrimSpace(entry) == "" {
		return &PermissionError{Class: class, Entry: entry, Reason: "empty path"}
	}
	if strings.ContainsRune(entry, 0) {
		return &PermissionError{Class: class, Entry: entry, Reason: "path contains NUL"}
	}
	if !doublestar.ValidatePattern(entry) {
		return &PermissionError{Class: class, Entry: entry, Reason: "malformed glob pattern"}
	}
	return nil
}

func validateHost(entry string) error {
	fail := func(reason string) error {
		return &PermissionError{Class: ClassNet, Entry: entry, Reason: reason}
	}

	if entry == "*" {
		return nil
	}
	if entry == "" {
		return fail("empty host")
	}
	if strings.Contains(entry, "://") || strings.ContainsAny(entry, "/?#@") {
		return fail("expected host or host:port, not a URL")
	}
	if strings.IndexFunc(entry, unicode.IsSpace) >= 0 {
		return fail("host contains whitespace")
	}

	host, port := SplitHostPort(entry)
	if host == "" {
		return fail("empty host")
	}
	if strings.Contains(host, "*") && !(strings.HasPrefix(host, "*.") && !strings.Contains(host[2:], "*")) {
		return fail("wildcards are only allowed as a leading *. label")
	}
	if port != "" || strings.HasSuffix(entry, ":") {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return fail("port must be between 1 and 65535")
		}
	}
	return nil
}
