package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliResult struct {
	stdout string
	stderr string
	code   int
}

// setupHome points storage and config at a temp dir. Tests using it cannot
// run in parallel because they set environment variables.
func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("XDG_DATA_HOME", home)
	t.Setenv("LANTERN_CONFIG", filepath.Join(home, "config.yaml"))
	t.Setenv("NO_COLOR", "1")
	return home
}

func runCLI(t *testing.T, args ...string) cliResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(args, &stdout, &stderr)
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

func writeExtension(t *testing.T, name, description, main string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(dir, 0o700))
	manifest := "name = \"" + name + "\"\ndescription = \"" + description + "\"\nentry_point = \"main.js\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "LanternExt.toml"), []byte(manifest), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.js"), []byte(main), 0o600))
	return dir
}

func TestVersion(t *testing.T) {
	setupHome(t)
	res := runCLI(t, "version")
	assert.Equal(t, 0, res.code)
	assert.True(t, strings.HasPrefix(res.stdout, "lantern version "))
}

func TestExtensionLifecycle(t *testing.T) {
	home := setupHome(t)
	src := writeExtension(t, "sample", "This extension does a thing", `console.log(JSON.stringify(Lantern.args));`)

	res := runCLI(t, "extension", "list")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "No extensions installed.\n", res.stdout)

	res = runCLI(t, "extension", "install", src)
	require.Equal(t, 0, res.code, res.stderr)
	assert.DirExists(t, filepath.Join(home, "lantern", "extensions", "sample"))

	res = runCLI(t, "extension", "install", src)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "Error: extension sample already exists, skipping")

	res = runCLI(t, "extension", "install", filepath.Join(home, "lantern", "extensions", "sample"))
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "extension path and installation path are identical, skipping")

	res = runCLI(t, "extension", "list")
	require.Equal(t, 0, res.code, res.stderr)
	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "sample")
	assert.Contains(t, lines[1], "This extension does a thing")

	res = runCLI(t, "sample", "--test", "-x", "a")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "[\"--test\",\"-x\",\"a\"]\n", res.stdout)

	res = runCLI(t, "run", "sample", "--help")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "[\"--help\"]\n", res.stdout)

	res = runCLI(t, "extension", "uninstall", "sample")
	require.Equal(t, 0, res.code, res.stderr)
	assert.NoDirExists(t, filepath.Join(home, "lantern", "extensions", "sample"))

	res = runCLI(t, "sample")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "extension sample is not installed")
}

func TestInstall_PermissionsNeedApproval(t *testing.T) {
	setupHome(t)
	src := writeExtension(t, "netty", "Talks to the network", `console.log("ok");`)
	manifest := filepath.Join(src, "LanternExt.toml")
	data, err := os.ReadFile(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(manifest, append(data, []byte("[permissions]\nnet = [\"api.github.com\"]\n")...), 0o600))

	res := runCLI(t, "extension", "install", src)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "non-interactive mode")

	res = runCLI(t, "extension", "install", "--yes", src)
	require.Equal(t, 0, res.code, res.stderr)

	res = runCLI(t, "extension", "list", "--format", "json", "--filter", "'network:api.github.com' in permissions")
	require.Equal(t, 0, res.code, res.stderr)
	var listed []map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "netty", listed[0]["name"])
	assert.Equal(t, "medium", listed[0]["risk"])
}

func TestList_FilteredEntry(t *testing.T) {
	home := setupHome(t)
	good := writeExtension(t, "good", "Fine", `1;`)
	require.Equal(t, 0, runCLI(t, "extension", "install", good).code)

	bad := filepath.Join(home, "lantern", "extensions", "mismatch")
	require.NoError(t, os.MkdirAll(bad, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(bad, "LanternExt.toml"), []byte("name = \"other\"\nentry_point = \"main.js\"\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(bad, "main.js"), nil, 0o600))

	res := runCLI(t, "extension", "list")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "good")
	assert.NotContains(t, res.stdout, "mismatch")
	assert.Contains(t, res.stderr, "extension was filtered out")
	assert.Contains(t, res.stderr, "mismatch")

	res = runCLI(t, "extension", "list", "--filter", "name +")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "invalid --filter expression")
}

func TestRun_ExitCodes(t *testing.T) {
	setupHome(t)
	for name, main := range map[string]string{
		"quits":  `Lantern.exit(3);`,
		"throws": `throw new Error("boom");`,
	} {
		require.Equal(t, 0, runCLI(t, "extension", "install", writeExtension(t, name, name, main)).code)
	}

	res := runCLI(t, "quits")
	assert.Equal(t, 3, res.code)
	assert.NotContains(t, res.stderr, "Error:")

	res = runCLI(t, "throws")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "Error: extension throws: uncaught exception")
	assert.Contains(t, res.stderr, "boom")
}

func TestRun_GlobalFlags(t *testing.T) {
	setupHome(t)
	src := writeExtension(t, "sample", "Prints args", `console.log(JSON.stringify(Lantern.args));`)
	require.Equal(t, 0, runCLI(t, "extension", "install", src).code)
	require.Equal(t, 0, runCLI(t, "extension", "install", writeExtension(t, "sleeper", "Never ends", `setInterval(() => {}, 1000);`)).code)

	for _, args := range [][]string{
		{"--timeout", "5s", "sample", "a"},
		{"--timeout", "5s", "run", "sample", "a"},
		{"-v", "sample", "a"},
		{"run", "--verbose", "sample", "a"},
		{"run", "--", "sample", "a"},
	} {
		res := runCLI(t, args...)
		require.Equal(t, 0, res.code, "%v: %s", args, res.stderr)
		assert.Equal(t, "[\"a\"]\n", res.stdout, "%v", args)
	}

	res := runCLI(t, "--timeout", "100ms", "sleeper")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "timed out")

	res = runCLI(t, "run", "--timeout", "soon", "sample")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "invalid argument")

	res = runCLI(t, "run", "--timeout", "5s")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "requires an extension name")
}

func TestSplitLeadingFlags(t *testing.T) {
	t.Parallel()
	fs := newRootCmd(&bytes.Buffer{}, &bytes.Buffer{}).PersistentFlags()

	flags, rest := splitLeadingFlags(fs, []string{"-v", "--timeout", "1s", "--config=x.yaml", "sample", "--timeout", "2s"})
	assert.Equal(t, []string{"-v", "--timeout", "1s", "--config=x.yaml"}, flags)
	assert.Equal(t, []string{"sample", "--timeout", "2s"}, rest)

	flags, rest = splitLeadingFlags(fs, []string{"--", "-v"})
	assert.Empty(t, flags)
	assert.Equal(t, []string{"-v"}, rest)

	flags, rest = splitLeadingFlags(fs, []string{"--timeout"})
	assert.Equal(t, []string{"--timeout"}, flags)
	assert.Empty(t, rest)
}

func TestExtensionNew(t *testing.T) {
	setupHome(t)
	out := filepath.Join(t.TempDir(), "my-tool")

	res := runCLI(t, "extension", "new", "my-tool", "--output", out, "--net", "api.github.com", "--env", "GITHUB_TOKEN")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Created extension 'my-tool'")
	assert.FileExists(t, filepath.Join(out, "main.ts"))
	assert.FileExists(t, filepath.Join(out, "README.md"))

	manifest, err := os.ReadFile(filepath.Join(out, "LanternExt.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(manifest), `net = ["api.github.com"]`)

	res = runCLI(t, "extension", "new", "my-tool", "--output", out)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "file already exists")

	res = runCLI(t, "extension", "new", "@@@")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "invalid extension name")

	res = runCLI(t, "extension", "install", "--yes", out)
	require.Equal(t, 0, res.code, res.stderr)
	res = runCLI(t, "my-tool", "--help")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "usage: lantern my-tool [args...]\n", res.stdout)
}

func TestExtensionSchema(t *testing.T) {
	setupHome(t)
	res := runCLI(t, "extension", "schema")
	require.Equal(t, 0, res.code, res.stderr)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &schema))
	assert.Contains(t, schema["properties"], "entry_point")
}

func TestRouteArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"empty", nil, nil},
		{"builtin", []string{"version"}, []string{"version"}},
		{"nested builtin", []string{"extension", "list"}, []string{"extension", "list"}},
		{"help", []string{"help"}, []string{"help"}},
		{"flag only", []string{"--verbose"}, []string{"--verbose"}},
		{"unknown flag", []string{"--nope", "sample"}, []string{"--nope", "sample"}},
		{"flags before builtin", []string{"--timeout", "5s", "extension", "list"}, []string{"--timeout", "5s", "extension", "list"}},
		{"extension", []string{"sample", "--test", "-x", "a"}, []string{"run", "sample", "--test", "-x", "a"}},
		{"timeout before extension", []string{"--timeout", "5s", "sample", "a"}, []string{"run", "--timeout", "5s", "sample", "a"}},
		{"inline value", []string{"--timeout=5s", "sample"}, []string{"run", "--timeout=5s", "sample"}},
		{"shorthand bool", []string{"-v", "sample", "a"}, []string{"run", "-v", "sample", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			root := newRootCmd(&bytes.Buffer{}, &bytes.Buffer{})
			assert.Equal(t, tt.want, routeArgs(root, tt.args))
		})
	}
}
