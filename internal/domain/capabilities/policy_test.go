package capabilities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_IsGranted(t *testing.T) {
	p := NewPolicy()

	tests := []struct {
		name    string
		request Capability
		granted []Capability
		want    bool
	}{
		{"nothing granted", Capability{KindFS, "read:/tmp/a"}, nil, false},
		{"exact path", Capability{KindFS, "read:/tmp/a"}, []Capability{{KindFS, "read:/tmp/a"}}, true},
		{"subtree", Capability{KindFS, "read:/tmp/a/b/c.txt"}, []Capability{{KindFS, "read:/tmp/a"}}, true},
		{"sibling prefix", Capability{KindFS, "read:/tmp/ab"}, []Capability{{KindFS, "read:/tmp/a"}}, false},
		{"write does not imply read", Capability{KindFS, "read:/tmp/a"}, []Capability{{KindFS, "write:/tmp/a"}}, false},
		{"glob", Capability{KindFS, "read:/var/log/app.log"}, []Capability{{KindFS, "read:/var/log/*.log"}}, true},
		{"dotdot cleaned", Capability{KindFS, "read:/tmp/a/../b"}, []Capability{{KindFS, "read:/tmp/a"}}, false},

		{"host any port", Capability{KindNetwork, "deno.land:443"}, []Capability{{KindNetwork, "deno.land"}}, true},
		{"host wrong port", Capability{KindNetwork, "deno.land:80"}, []Capability{{KindNetwork, "deno.land:443"}}, false},
		{"host case", Capability{KindNetwork, "Deno.Land:443"}, []Capability{{KindNetwork, "deno.land"}}, true},
		{"subdomain wildcard", Capability{KindNetwork, "api.x.example.com:443"}, []Capability{{KindNetwork, "*.example.com"}}, true},
		{"wildcard excludes apex", Capability{KindNetwork, "example.com:443"}, []Capability{{KindNetwork, "*.example.com"}}, false},
		{"network star", Capability{KindNetwork, "10.0.0.1:22"}, []Capability{{KindNetwork, "*"}}, true},
		{"ipv6", Capability{KindNetwork, "[::1]:8080"}, []Capability{{KindNetwork, "[::1]:8080"}}, true},

		{"env exact", Capability{KindEnv, "HOME"}, []Capability{{KindEnv, "HOME"}}, true},
		{"env prefix", Capability{KindEnv, "APP_TOKEN"}, []Capability{{KindEnv, "APP_*"}}, true},
		{"env other", Capability{KindEnv, "PATH"}, []Capability{{KindEnv, "APP_*"}}, false},

		{"exec exact", Capability{KindExec, "git"}, []Capability{{KindExec, "git"}}, true},
		{"exec dir glob", Capability{KindExec, "/usr/bin/git"}, []Capability{{KindExec, "/usr/bin/*"}}, true},
		{"exec star", Capability{KindExec, "/opt/tool"}, []Capability{{KindExec, "*"}}, true},
		{"kind mismatch", Capability{KindExec, "git"}, []Capability{{KindEnv, "git"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.IsGranted(tt.request, tt.granted))
		})
	}
}

func TestSplitHostPort(t *testing.T) {
	cases := map[string][2]string{
		"deno.land":     {"deno.land", ""},
		"deno.land:443": {"deno.land", "443"},
		"[::1]:8080":    {"::1", "8080"},
		"[::1]":         {"::1", ""},
		"::1":           {"::1", ""},
		"*.example.com": {"*.example.com", ""},
	}
	for in, want := range cases {
		host, port := SplitHostPort(in)
		assert.Equal(t, want[0], host, in)
		assert.Equal(t, want[1], port, in)
	}
}

func FuzzPolicyIsGranted(f *testing.F) {
	seeds := []string{"read:/tmp", "write:/", "deno.land:443", "*", "[::1]:", "APP_*", "/usr/bin/*", "{a,b", "read:[", ""}
	for _, s := range seeds {
		f.Add(s, s)
	}

	p := NewPolicy()
	f.Fuzz(func(t *testing.T, request, grant string) {
		for _, kind := range []string{KindFS, KindNetwork, KindEnv, KindExec} {
			_ = p.IsGranted(Capability{Kind: kind, Pattern: request}, []Capability{{Kind: kind, Pattern: grant}})
		}
	})
}
