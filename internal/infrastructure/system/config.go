// Package system provides infrastructure for system-level configuration,
// loaded from ~/.config/lantern/config.yaml.
package system

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
)

// Config represents the global configuration file.
type Config struct {
	ExtensionsDir string         `yaml:"extensions_dir"`
	Security      SecurityConfig `yaml:"security"`
	Run           RunConfig      `yaml:"run"`
	HTTP          HTTPConfig     `yaml:"http"`
}

// SecurityConfig configures install-time permission review.
type SecurityConfig struct {
	// Level defines the security policy: "strict", "standard", or "permissive"
	// - strict: refuse extensions requesting broad permissions
	// - standard: show requested permissions and ask (default)
	// - permissive: install without asking
	Level string `yaml:"level"`
}

// RunConfig configures extension execution.
type RunConfig struct {
	// Timeout bounds a whole extension run; zero disables it.
	Timeout time.Duration `yaml:"timeout"`
}

// HTTPConfig configures remote module fetches and the fetch host API.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

// SecurityLevel represents the security enforcement level.
type SecurityLevel string

const (
	// SecurityLevelStrict denies broad capabilities
	SecurityLevelStrict SecurityLevel = "strict"

	// SecurityLevelStandard prompts for capabilities (default)
	SecurityLevelStandard SecurityLevel = "standard"

	// SecurityLevelPermissive allows all capabilities without prompting
	SecurityLevelPermissive SecurityLevel = "permissive"
)

// GetSecurityLevel returns the configured security level, defaulting to Standard.
func (c *SecurityConfig) GetSecurityLevel() SecurityLevel {
	switch c.Level {
	case "strict":
		return SecurityLevelStrict
	case "permissive":
		return SecurityLevelPermissive
	default:
		return SecurityLevelStandard
	}
}

// ConfigLoader loads system configuration from disk.
type ConfigLoader struct{}

// NewConfigLoader creates a new system config loader.
func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

// DefaultConfig returns a Config with safe defaults for all fields.
func DefaultConfig() *Config {
	return &Config{
		Security: SecurityConfig{
			Level: string(SecurityLevelStandard),
		},
		HTTP: HTTPConfig{
			Timeout: 30 * time.Second,
			Retries: 3,
		},
	}
}

// DefaultConfigPath returns ~/.config/lantern/config.yaml (or the platform
// equivalent).
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "lantern", "config.yaml"), nil
}

// Load loads the system configuration from the specified path. An empty
// path means DefaultConfigPath. A missing file yields DefaultConfig.
func (l *ConfigLoader) Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return DefaultConfig(), nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	//nolint:gosec // G304: path is user-provided config file, validated to exist above
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read system config: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse system config: %w", err)
	}

	return config, nil
}
