// Package deploy implements building, installing, and registering the
// mailing server as a systemd service on bare-metal Linux hosts.
package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultBinaryName is the name of the installed binary and the stem for
// every derived path.
const DefaultBinaryName = "mailing_server"

// DefaultBinDir is the directory the binary is installed into.
const DefaultBinDir = "/usr/local/bin"

// DefaultUnitDir is the systemd unit directory.
const DefaultUnitDir = "/etc/systemd/system"

// DefaultUser is the unit's owning user.
const DefaultUser = "root"

// DefaultGroup is the unit's owning group.
const DefaultGroup = "root"

// DefaultRestartSec is the systemd restart delay in seconds.
const DefaultRestartSec = 10

// DefaultDescription is the unit's description text.
const DefaultDescription = "Artisan Hosting mailing server"

// ConfigDocuments are the configuration files copied verbatim into the
// config directory on install. The daemon reads them from its working
// directory, which the unit sets to the config directory.
var ConfigDocuments = []string{"Config.toml", "Overrides.toml"}

// InstallConfig holds the configuration for installing the mailing server
// as a systemd service. Every installed path is derived from BinaryName so
// the unit descriptor and the installer can never disagree.
type InstallConfig struct {
	// BinaryName is the service binary name.
	// Default: mailing_server
	BinaryName string `yaml:"binary_name"`

	// BinDir is the directory the binary is installed into.
	// Default: /usr/local/bin
	BinDir string `yaml:"bin_dir"`

	// ConfigDir is the configuration directory and the unit's working
	// directory. Default: /etc/<binary_name>
	ConfigDir string `yaml:"config_dir"`

	// LogDir is the directory stdout/stderr are redirected into.
	// Default: /var/log/<binary_name>
	LogDir string `yaml:"log_dir"`

	// UnitDir is the systemd unit directory.
	// Default: /etc/systemd/system
	UnitDir string `yaml:"unit_dir"`

	// Description is the unit's description text.
	Description string `yaml:"description"`

	// User and Group own the service process.
	// Default: root/root
	User  string `yaml:"user"`
	Group string `yaml:"group"`

	// RestartSec is the restart delay in seconds for the on-failure
	// restart policy. Default: 10
	RestartSec int `yaml:"restart_sec"`

	// SourceDir is the working tree the build runs in and the directory
	// the config documents are copied from. Default: .
	SourceDir string `yaml:"source_dir"`

	// BuildOutput is the build artifact path relative to SourceDir.
	// Default: bin/<binary_name>
	BuildOutput string `yaml:"build_output"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *InstallConfig) ApplyDefaults() {
	if c.BinaryName == "" {
		c.BinaryName = DefaultBinaryName
	}
	if c.BinDir == "" {
		c.BinDir = DefaultBinDir
	}
	if c.ConfigDir == "" {
		c.ConfigDir = filepath.Join("/etc", c.BinaryName)
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join("/var/log", c.BinaryName)
	}
	if c.UnitDir == "" {
		c.UnitDir = DefaultUnitDir
	}
	if c.Description == "" {
		c.Description = DefaultDescription
	}
	if c.User == "" {
		c.User = DefaultUser
	}
	if c.Group == "" {
		c.Group = DefaultGroup
	}
	if c.RestartSec == 0 {
		c.RestartSec = DefaultRestartSec
	}
	if c.SourceDir == "" {
		c.SourceDir = "."
	}
	if c.BuildOutput == "" {
		c.BuildOutput = filepath.Join("bin", c.BinaryName)
	}
}

// Validate checks that required fields are set and values are acceptable.
func (c *InstallConfig) Validate() error {
	if c.BinaryName == "" {
		return fmt.Errorf("deploy: config: binary_name must not be empty")
	}
	if strings.ContainsAny(c.BinaryName, "/ ") {
		return fmt.Errorf("deploy: config: invalid binary_name %q", c.BinaryName)
	}
	if c.RestartSec < 0 {
		return fmt.Errorf("deploy: config: restart_sec must not be negative")
	}
	for _, dir := range []string{c.BinDir, c.ConfigDir, c.LogDir, c.UnitDir} {
		if !filepath.IsAbs(dir) {
			return fmt.Errorf("deploy: config: path %q must be absolute", dir)
		}
	}
	return nil
}

// BinaryPath is the installed binary path.
func (c InstallConfig) BinaryPath() string {
	return filepath.Join(c.BinDir, c.BinaryName)
}

// UnitName is the systemd unit name.
func (c InstallConfig) UnitName() string {
	return c.BinaryName + ".service"
}

// UnitFilePath is the installed unit file path.
func (c InstallConfig) UnitFilePath() string {
	return filepath.Join(c.UnitDir, c.UnitName())
}

// StdoutLogPath is the file the unit appends stdout to.
func (c InstallConfig) StdoutLogPath() string {
	return filepath.Join(c.LogDir, c.BinaryName+".log")
}

// StderrLogPath is the file the unit appends stderr to.
func (c InstallConfig) StderrLogPath() string {
	return filepath.Join(c.LogDir, c.BinaryName+".err")
}

// ParseManifest reads an optional deploy manifest from a YAML file and
// returns the resulting config with defaults applied and validated.
func ParseManifest(path string) (InstallConfig, error) {
	var cfg InstallConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("deploy: read manifest %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("deploy: parse manifest %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
