package capabilities

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Policy decides whether a requested capability is covered by a grant.
// Filesystem grants cover the named path and everything beneath it; the
// other kinds match with doublestar glob semantics plus a bare "*" wildcard.
type Policy struct{}

// NewPolicy creates a new domain policy.
func NewPolicy() *Policy {
	return &Policy{}
}

// IsGranted checks if request is covered by any of the granted capabilities.
func (p *Policy) IsGranted(request Capability, granted []Capability) bool {
	for _, grant := range granted {
		if grant.Kind != request.Kind {
			continue
		}

		var matches bool
		switch request.Kind {
		case KindFS:
			matches = matchFilesystem(request.Pattern, grant.Pattern)
		case KindNetwork:
			matches = matchNetwork(request.Pattern, grant.Pattern)
		case KindEnv, KindExec:
			matches = matchGlob(request.Pattern, grant.Pattern)
		default:
			// Unknown kinds never match.
		}

		if matches {
			return true
		}
	}
	return false
}

// matchFilesystem compares "read:/a/b" style patterns. Both sides must use
// the same operation and absolute, slash-separated paths.
func matchFilesystem(requested, granted string) bool {
	reqOp, reqPath, ok := strings.Cut(requested, ":")
	if !ok {
		return false
	}
	grantOp, grantPath, ok := strings.Cut(granted, ":")
	if !ok || reqOp != grantOp {
		return false
	}

	reqPath = path.Clean(reqPath)
	grantPath = path.Clean(grantPath)

	if grantPath == "/" || reqPath == grantPath || strings.HasPrefix(reqPath, grantPath+"/") {
		return true
	}

	if hasGlobMeta(grantPath) {
		if ok, _ := doublestar.Match(grantPath, reqPath); ok {
			return true
		}
		ok, _ := doublestar.Match(strings.TrimSuffix(grantPath, "/")+"/**", reqPath)
		return ok
	}

	return false
}

// matchNetwork compares "host:port" requests against "host", "host:port",
// "*.domain[:port]" or "*" grants.
func matchNetwork(requested, granted string) bool {
	if granted == "*" {
		return true
	}

	reqHost, reqPort := SplitHostPort(requested)
	grantHost, grantPort := SplitHostPort(granted)

	if grantPort != "" && grantPort != reqPort {
		return false
	}

	reqHost = strings.ToLower(reqHost)
	grantHost = strings.ToLower(grantHost)
	if reqHost == grantHost {
		return true
	}

	// "*.example.com" also covers subdomains at any depth.
	if strings.HasPrefix(grantHost, "*.") {
		return strings.HasSuffix(reqHost, grantHost[1:])
	}
	return false
}

func matchGlob(requested, granted string) bool {
	if granted == "*" || granted == requested {
		return true
	}
	if !hasGlobMeta(granted) {
		return false
	}
	ok, err := doublestar.Match(granted, requested)
	return err == nil && ok
}

func hasGlobMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// SplitHostPort splits "host", "host:port" and "[v6]:port" forms without
// failing on a missing port.
func SplitHostPort(hostport string) (host, port string) {
	if strings.HasPrefix(hostport, "[") {
		end := strings.Index(hostport, "]")
		if end < 0 {
			return hostport, ""
		}
		host = hostport[1:end]
		rest := hostport[end+1:]
		if strings.HasPrefix(rest, ":") {
			port = rest[1:]
		}
		return host, port
	}

	if strings.Count(hostport, ":") == 1 {
		host, port, _ = strings.Cut(hostport, ":")
		return host, port
	}
	return hostport, ""
}
