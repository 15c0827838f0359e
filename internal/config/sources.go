package config

import "fmt"

// ConfigSource indicates where a configuration value came from.
type ConfigSource string

const (
	// SourceDefault indicates a built-in default value.
	SourceDefault ConfigSource = "default"
	// SourceUser indicates the user config file.
	SourceUser ConfigSource = "user"
	// SourceFile indicates a file passed with --config.
	SourceFile ConfigSource = "file"
	// SourceEnv indicates an environment variable override.
	SourceEnv ConfigSource = "env"
	// SourceFlag indicates a CLI flag override.
	SourceFlag ConfigSource = "flag"
)

// TrackedSource contains both the source type and the file path.
type TrackedSource struct {
	Source ConfigSource
	Path   string // File path or empty for defaults/env/flags
}

// String returns a human-readable source description.
func (ts TrackedSource) String() string {
	if ts.Path == "" {
		return string(ts.Source)
	}
	return fmt.Sprintf("%s: %s", ts.Source, ts.Path)
}

// TrackedConfig wraps a Config with source tracking.
type TrackedConfig struct {
	// Config is the merged configuration.
	Config *Config

	// Sources maps config keys to their full source info.
	Sources map[string]TrackedSource
}

// NewTrackedConfig creates a new TrackedConfig with defaults.
func NewTrackedConfig() *TrackedConfig {
	return &TrackedConfig{
		Config:  Default(),
		Sources: make(map[string]TrackedSource),
	}
}

// SetSource records the source and file path for a config key.
func (tc *TrackedConfig) SetSource(key string, source ConfigSource, filePath string) {
	tc.Sources[key] = TrackedSource{Source: source, Path: filePath}
}

// GetSource returns the source for a config key, SourceDefault if none
// was recorded.
func (tc *TrackedConfig) GetSource(key string) TrackedSource {
	if ts, ok := tc.Sources[key]; ok {
		return ts
	}
	return TrackedSource{Source: SourceDefault}
}

// ApplyFlag overrides key with a flag value.
func (tc *TrackedConfig) ApplyFlag(key, value string) error {
	if !applyValue(tc.Config, key, value) {
		return fmt.Errorf("invalid value %q for %s", value, key)
	}
	tc.SetSource(key, SourceFlag, "")
	return nil
}
