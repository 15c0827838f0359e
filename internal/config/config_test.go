package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/randalmurphal/vaultbak/internal/archive"
	vberrors "github.com/randalmurphal/vaultbak/internal/errors"
)

func TestDefaultPathsFollowXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	t.Setenv("XDG_STATE_HOME", "/xdg/state")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")

	cfg := Default()
	assert.Equal(t, filepath.Join("/xdg/data", "vaultbak", "bin"), cfg.InstallDir)
	assert.Equal(t, filepath.Join("/xdg/state", "vaultbak"), cfg.StateDir)
	assert.Equal(t, filepath.Join("/xdg/config", "vaultbak", "config.yaml"), UserConfigPath())
	assert.Equal(t, filepath.Join("/xdg/data", "vaultbak", "bin", "bw"), cfg.AgentBinary())
	assert.Equal(t, filepath.Join("/xdg/state", "vaultbak", "history.db"), cfg.HistoryPath())
	assert.Equal(t, filepath.Join("/xdg/state", "vaultbak", "last-update-check"), cfg.UpdateStampPath())
}

func TestAgentBinaryOverride(t *testing.T) {
	cfg := Default()
	cfg.AgentPath = "/usr/local/bin/bw"
	assert.Equal(t, "/usr/local/bin/bw", cfg.AgentBinary())
	assert.Equal(t, "/usr/local/bin/bw", cfg.InstallTarget())

	cfg.AgentPath = "bw"
	assert.Equal(t, "bw", cfg.AgentBinary(), "bare names resolve through PATH")
	assert.Equal(t, filepath.Join(cfg.InstallDir, "bw"), cfg.InstallTarget())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"default is valid", func(*Config) {}, ""},
		{"archive format", func(c *Config) { c.ArchiveFormat = "7z" }, "archive_format"},
		{"update interval", func(c *Config) { c.UpdateInterval = 0 }, "update_interval"},
		{"asset pattern without version", func(c *Config) { c.AssetPattern = "bw.zip" }, "asset_pattern"},
		{"output dir", func(c *Config) { c.OutputDir = "" }, "output_dir"},
		{"state dir", func(c *Config) { c.StateDir = "" }, "state_dir"},
		{"install dir", func(c *Config) { c.InstallDir = "" }, "install_dir"},
		{"install dir unused", func(c *Config) { c.InstallDir = ""; c.AgentPath = "/bin/bw" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			vErr := vberrors.AsVaultError(err)
			if assert.NotNil(t, vErr) {
				assert.Equal(t, vberrors.CodeConfigInvalid, vErr.Code)
				assert.Contains(t, vErr.What, tt.field)
			}
		})
	}
}

func TestArchive(t *testing.T) {
	cfg := Default()
	cfg.ArchiveFormat = "tgz"
	f, err := cfg.Archive()
	assert.NoError(t, err)
	assert.Equal(t, archive.FormatTarGz, f)
}
