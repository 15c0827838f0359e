// Package config provides configuration management for vaultbak.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/randalmurphal/vaultbak/internal/archive"
	vberrors "github.com/randalmurphal/vaultbak/internal/errors"
)

// AppName names the config, data and state directories.
const AppName = "vaultbak"

// ConfigFileName is the user config file name.
const ConfigFileName = "config.yaml"

// Config represents vaultbak configuration.
type Config struct {
	// AgentPath overrides the agent binary location. Empty means
	// <install_dir>/bw.
	AgentPath string `yaml:"agent_path,omitempty"`
	// InstallDir is where a downloaded agent binary is installed.
	InstallDir string `yaml:"install_dir"`
	// StateDir holds the update stamp, run journal and PID file.
	StateDir string `yaml:"state_dir"`
	// OutputDir is the parent of the per-operator export directory.
	OutputDir string `yaml:"output_dir"`

	CheckUpdates   bool          `yaml:"check_updates"`
	UpdateInterval time.Duration `yaml:"update_interval"`

	ArchiveFormat string `yaml:"archive_format"`

	ReleaseOwner     string `yaml:"release_owner"`
	ReleaseRepo      string `yaml:"release_repo"`
	ReleaseTagPrefix string `yaml:"release_tag_prefix"`
	AssetPattern     string `yaml:"asset_pattern"`

	History   bool `yaml:"history"`
	Checksums bool `yaml:"checksums"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		InstallDir:       filepath.Join(dataHome(), AppName, "bin"),
		StateDir:         filepath.Join(stateHome(), AppName),
		OutputDir:        ".",
		CheckUpdates:     true,
		UpdateInterval:   10 * 24 * time.Hour,
		ArchiveFormat:    string(archive.FormatZip),
		ReleaseOwner:     "bitwarden",
		ReleaseRepo:      "clients",
		ReleaseTagPrefix: "cli-v",
		AssetPattern:     "bw-linux-%s.zip",
		History:          true,
		Checksums:        true,
	}
}

// AgentBinary returns the agent binary path.
func (c *Config) AgentBinary() string {
	if c.AgentPath != "" {
		return c.AgentPath
	}
	return filepath.Join(c.InstallDir, "bw")
}

// InstallTarget returns where a downloaded agent is written: the agent
// path when it names a file, otherwise <install_dir>/bw.
func (c *Config) InstallTarget() string {
	if bin := c.AgentBinary(); strings.ContainsRune(bin, filepath.Separator) {
		return bin
	}
	return filepath.Join(c.InstallDir, "bw")
}

// UpdateStampPath returns the last-update-check file path.
func (c *Config) UpdateStampPath() string {
	return filepath.Join(c.StateDir, "last-update-check")
}

// HistoryPath returns the run journal database path.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.StateDir, "history.db")
}

// Archive returns the parsed archive format.
func (c *Config) Archive() (archive.Format, error) {
	return archive.ParseFormat(c.ArchiveFormat)
}

// Validate checks the configuration for values no run could use.
func (c *Config) Validate() error {
	if _, err := c.Archive(); err != nil {
		return vberrors.ErrConfigInvalid("archive_format", err.Error())
	}
	if c.UpdateInterval <= 0 {
		return vberrors.ErrConfigInvalid("update_interval", "must be a positive duration")
	}
	if strings.Count(c.AssetPattern, "%s") != 1 {
		return vberrors.ErrConfigInvalid("asset_pattern", "must contain exactly one %s for the version")
	}
	if c.OutputDir == "" {
		return vberrors.ErrConfigInvalid("output_dir", "must not be empty")
	}
	if c.StateDir == "" {
		return vberrors.ErrConfigInvalid("state_dir", "must not be empty")
	}
	if c.AgentPath == "" && c.InstallDir == "" {
		return vberrors.ErrConfigInvalid("install_dir", "must not be empty when agent_path is unset")
	}
	return nil
}

// UserConfigPath returns ~/.config/vaultbak/config.yaml, honoring
// XDG_CONFIG_HOME.
func UserConfigPath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), AppName, ConfigFileName)
}

func dataHome() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

func stateHome() string {
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

func xdgDir(env, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("."+AppName, fallback)
	}
	return filepath.Join(home, fallback)
}
