// Package storage implements canonical extension storage on the local
// filesystem.
package storage

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

// AppName is the directory under the data home that holds lantern data.
const AppName = "lantern"

// DataHome returns $XDG_DATA_HOME when set to an absolute path, otherwise
// the platform's per-user data directory.
func DataHome() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" && filepath.IsAbs(xdg) {
		return xdg, nil
	}

	switch runtime.GOOS {
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return local, nil
		}
		return "", errors.New("%LOCALAPPDATA% is not set")
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support"), nil
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share"), nil
	}
}

// DefaultExtensionsDir returns <data home>/lantern/extensions.
func DefaultExtensionsDir() (string, error) {
	home, err := DataHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, AppName, "extensions"), nil
}
