package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadWithSources loads configuration with source tracking.
// Load order (later sources override earlier):
//  1. Built-in defaults
//  2. User config (~/.config/vaultbak/config.yaml) - optional
//  3. Explicit config file (--config) - required when given
//  4. Environment variables (VAULTBAK_*)
func LoadWithSources(explicitPath string) (*TrackedConfig, error) {
	return LoadWithSourcesFrom(UserConfigPath(), explicitPath)
}

// LoadWithSourcesFrom is LoadWithSources with the user config path given.
func LoadWithSourcesFrom(userPath, explicitPath string) (*TrackedConfig, error) {
	tc := NewTrackedConfig()

	if userPath != "" {
		if _, err := os.Stat(userPath); err == nil {
			if err := mergeFromFile(tc, userPath, SourceUser); err != nil {
				slog.Warn("failed to load user config", "path", userPath, "error", err)
			}
		}
	}

	if explicitPath != "" {
		if err := mergeFromFile(tc, explicitPath, SourceFile); err != nil {
			return nil, err // an explicitly named file must load
		}
	}

	if _, err := ApplyEnvVars(tc); err != nil {
		return nil, err
	}

	if err := tc.Config.Validate(); err != nil {
		return nil, err
	}
	return tc, nil
}

// mergeFromFile merges configuration from a file into tc.
func mergeFromFile(tc *TrackedConfig, path string, source ConfigSource) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config file %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	// Parse YAML into a map to track which fields are set
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	mergeConfig(tc, &fileCfg, raw, source, path)
	return nil
}

// mergeConfig copies every key present in raw from fileCfg into tc.
func mergeConfig(tc *TrackedConfig, fileCfg *Config, raw map[string]any, source ConfigSource, path string) {
	cfg := tc.Config
	fields := []struct {
		key   string
		apply func()
	}{
		{"agent_path", func() { cfg.AgentPath = fileCfg.AgentPath }},
		{"install_dir", func() { cfg.InstallDir = fileCfg.InstallDir }},
		{"state_dir", func() { cfg.StateDir = fileCfg.StateDir }},
		{"output_dir", func() { cfg.OutputDir = fileCfg.OutputDir }},
		{"check_updates", func() { cfg.CheckUpdates = fileCfg.CheckUpdates }},
		{"update_interval", func() { cfg.UpdateInterval = fileCfg.UpdateInterval }},
		{"archive_format", func() { cfg.ArchiveFormat = fileCfg.ArchiveFormat }},
		{"release_owner", func() { cfg.ReleaseOwner = fileCfg.ReleaseOwner }},
		{"release_repo", func() { cfg.ReleaseRepo = fileCfg.ReleaseRepo }},
		{"release_tag_prefix", func() { cfg.ReleaseTagPrefix = fileCfg.ReleaseTagPrefix }},
		{"asset_pattern", func() { cfg.AssetPattern = fileCfg.AssetPattern }},
		{"history", func() { cfg.History = fileCfg.History }},
		{"checksums", func() { cfg.Checksums = fileCfg.Checksums }},
	}
	for _, f := range fields {
		if _, ok := raw[f.key]; ok {
			f.apply()
			tc.SetSource(f.key, source, path)
		}
	}
}
