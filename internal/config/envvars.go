package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	vberrors "github.com/randalmurphal/vaultbak/internal/errors"
)

// EnvVarMapping defines the mapping between environment variables and
// config keys.
var EnvVarMapping = map[string]string{
	"VAULTBAK_AGENT_PATH":         "agent_path",
	"VAULTBAK_INSTALL_DIR":        "install_dir",
	"VAULTBAK_STATE_DIR":          "state_dir",
	"VAULTBAK_OUTPUT_DIR":         "output_dir",
	"VAULTBAK_CHECK_UPDATES":      "check_updates",
	"VAULTBAK_UPDATE_INTERVAL":    "update_interval",
	"VAULTBAK_ARCHIVE_FORMAT":     "archive_format",
	"VAULTBAK_RELEASE_OWNER":      "release_owner",
	"VAULTBAK_RELEASE_REPO":       "release_repo",
	"VAULTBAK_RELEASE_TAG_PREFIX": "release_tag_prefix",
	"VAULTBAK_ASSET_PATTERN":      "asset_pattern",
	"VAULTBAK_HISTORY":            "history",
	"VAULTBAK_CHECKSUMS":          "checksums",
}

// ApplyEnvVars applies environment variable overrides to a TrackedConfig.
// Returns the keys that were overridden. Values that cannot be parsed are
// left unapplied and reported together as a config error.
func ApplyEnvVars(tc *TrackedConfig) ([]string, error) {
	var overridden, invalid []string

	for envVar, key := range EnvVarMapping {
		value := os.Getenv(envVar)
		if value == "" {
			continue
		}
		if !applyValue(tc.Config, key, value) {
			invalid = append(invalid, fmt.Sprintf("%s=%q", envVar, value))
			continue
		}
		tc.SetSource(key, SourceEnv, "")
		overridden = append(overridden, key)
	}

	if len(invalid) > 0 {
		sort.Strings(invalid)
		return overridden, vberrors.ErrConfigInvalid("environment", "cannot parse "+strings.Join(invalid, ", "))
	}
	return overridden, nil
}

// applyValue sets one config key from its string form. Returns true if
// the value was applied.
func applyValue(cfg *Config, key, value string) bool {
	switch key {
	case "agent_path":
		cfg.AgentPath = value
	case "install_dir":
		cfg.InstallDir = value
	case "state_dir":
		cfg.StateDir = value
	case "output_dir":
		cfg.OutputDir = value
	case "check_updates":
		b, ok := parseBool(value)
		if !ok {
			return false
		}
		cfg.CheckUpdates = b
	case "update_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return false
		}
		cfg.UpdateInterval = d
	case "archive_format":
		cfg.ArchiveFormat = value
	case "release_owner":
		cfg.ReleaseOwner = value
	case "release_repo":
		cfg.ReleaseRepo = value
	case "release_tag_prefix":
		cfg.ReleaseTagPrefix = value
	case "asset_pattern":
		cfg.AssetPattern = value
	case "history":
		b, ok := parseBool(value)
		if !ok {
			return false
		}
		cfg.History = b
	case "checksums":
		b, ok := parseBool(value)
		if !ok {
			return false
		}
		cfg.Checksums = b
	default:
		return false
	}
	return true
}

// parseBool parses a boolean string value.
func parseBool(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	}
	return false, false
}
