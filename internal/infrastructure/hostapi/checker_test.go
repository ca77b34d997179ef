package hostapi

import (
	"errors"
	"path/filepath"
	"testing"

	apperrors "github.com/reglet-dev/lantern/internal/application/errors"
	"github.com/reglet-dev/lantern/internal/domain/capabilities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grantOf(t *testing.T, p capabilities.Permissions) capabilities.Grant {
	t.Helper()
	g, err := p.ToGrant()
	require.NoError(t, err)
	return g
}

func TestCapabilityChecker_Filesystem(t *testing.T) {
	t.Parallel()
	cwd := t.TempDir()
	checker := NewCapabilityChecker(grantOf(t, capabilities.Permissions{
		Read:  []string{"./data"},
		Write: []string{filepath.Join(cwd, "out")},
	}), cwd)

	assert.NoError(t, checker.CheckRead(filepath.Join(cwd, "data")))
	assert.NoError(t, checker.CheckRead(filepath.Join(cwd, "data", "nested", "file.txt")))
	assert.Error(t, checker.CheckRead(filepath.Join(cwd, "database")))
	assert.Error(t, checker.CheckWrite(filepath.Join(cwd, "data", "file.txt")), "read does not imply write")
	assert.NoError(t, checker.CheckWrite(filepath.Join(cwd, "out", "report.json")))

	err := checker.CheckRead("/etc/passwd")
	var capErr *apperrors.CapabilityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, capabilities.KindFS, capErr.Requested.Kind)
}

func TestCapabilityChecker_HomeGrants(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cwd := t.TempDir()

	checker := NewCapabilityChecker(grantOf(t, capabilities.Permissions{
		Read:  []string{"~/notes"},
		Write: []string{"~"},
	}), cwd)

	assert.NoError(t, checker.CheckRead(filepath.Join(home, "notes", "a.txt")))
	assert.Error(t, checker.CheckRead(filepath.Join(home, "other.txt")))
	assert.Error(t, checker.CheckRead(filepath.Join(cwd, "~", "notes", "a.txt")))
	assert.NoError(t, checker.CheckWrite(filepath.Join(home, "out", "report.json")))
	assert.Contains(t, checker.Grant().Strings(), "fs:read:"+filepath.ToSlash(filepath.Join(home, "notes")))
}

func TestCapabilityChecker_Network(t *testing.T) {
	t.Parallel()
	checker := NewCapabilityChecker(grantOf(t, capabilities.Permissions{
		Net: []string{"api.github.com", "*.example.com:443", "::1"},
	}), t.TempDir())

	assert.NoError(t, checker.CheckNetwork("api.github.com", "443"))
	assert.NoError(t, checker.CheckNetwork("API.GITHUB.COM", "8080"))
	assert.NoError(t, checker.CheckNetwork("www.example.com", "443"))
	assert.Error(t, checker.CheckNetwork("www.example.com", "80"))
	assert.Error(t, checker.CheckNetwork("github.com", "443"))
	assert.NoError(t, checker.CheckNetwork("::1", "8080"))

	assert.True(t, checker.NamesHost("api.github.com"))
	assert.True(t, checker.NamesHost("[::1]"))
	assert.True(t, checker.NamesHost("0:0::1"))
	assert.False(t, checker.NamesHost("www.example.com"), "wildcards do not name a host")
}

func TestCapabilityChecker_Exec(t *testing.T) {
	t.Parallel()

	wildcard := NewCapabilityChecker(grantOf(t, capabilities.Permissions{Run: []string{"*"}}), t.TempDir())
	assert.NoError(t, wildcard.CheckExec("git", []string{"status"}))
	assert.Error(t, wildcard.CheckExec("sh", []string{"-c", "id"}))
	assert.Error(t, wildcard.CheckExec("python3", []string{"-c", "print(1)"}))
	assert.Error(t, wildcard.CheckExec("unknown-tool", []string{"--eval", "x"}))
	assert.NoError(t, wildcard.CheckExec("python3", []string{"script.py"}))

	named := NewCapabilityChecker(grantOf(t, capabilities.Permissions{Run: []string{"sh"}}), t.TempDir())
	assert.NoError(t, named.CheckExec("sh", []string{"-c", "id"}))
	assert.Error(t, named.CheckExec("bash", []string{"-c", "id"}))
}

func TestCapabilityChecker_Env(t *testing.T) {
	t.Parallel()
	checker := NewCapabilityChecker(grantOf(t, capabilities.Permissions{Env: []string{"HOME", "GITHUB_*"}}), t.TempDir())

	assert.NoError(t, checker.CheckEnv("HOME"))
	assert.NoError(t, checker.CheckEnv("GITHUB_TOKEN"))
	assert.Error(t, checker.CheckEnv("AWS_SECRET_ACCESS_KEY"))
}

func TestCapabilityChecker_DenyAll(t *testing.T) {
	t.Parallel()
	checker := NewCapabilityChecker(capabilities.NewGrant(), t.TempDir())

	assert.Error(t, checker.CheckRead("/"))
	assert.Error(t, checker.CheckEnv("PATH"))
	assert.Error(t, checker.CheckNetwork("example.com", "443"))
	assert.Error(t, checker.CheckExec("ls", nil))
}
