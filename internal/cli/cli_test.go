package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/vaultbak/internal/archive"
	"github.com/randalmurphal/vaultbak/internal/config"
	vberrors "github.com/randalmurphal/vaultbak/internal/errors"
	"github.com/randalmurphal/vaultbak/internal/history"
)

// isolateConfig points the user config at an empty directory and clears
// VAULTBAK_* variables.
func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	for envVar := range config.EnvVarMapping {
		t.Setenv(envVar, "")
	}
}

// resetFlags restores the global flags after a test parsed them.
func resetFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	})
}

func parsedRunCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	resetFlags(t)
	cmd := newRunCmd()
	cmd.Flags().AddFlagSet(rootCmd.PersistentFlags())
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolateConfig(t)
	cmd := parsedRunCmd(t)

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, ".", cfg.OutputDir)
	assert.True(t, cfg.CheckUpdates)
	assert.Equal(t, string(archive.FormatZip), cfg.ArchiveFormat)
}

func TestLoadConfig_FlagsOverrideEnvironment(t *testing.T) {
	isolateConfig(t)
	t.Setenv("VAULTBAK_OUTPUT_DIR", "/from/env")
	t.Setenv("VAULTBAK_ARCHIVE_FORMAT", "tar.gz")
	cmd := parsedRunCmd(t, "--output-dir", "/from/flag", "--no-update-check")

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "/from/flag", cfg.OutputDir)
	assert.Equal(t, "tar.gz", cfg.ArchiveFormat, "unset flags leave the environment value")
	assert.False(t, cfg.CheckUpdates)
}

func TestLoadConfig_InvalidArchiveFlag(t *testing.T) {
	isolateConfig(t)
	cmd := parsedRunCmd(t, "--archive-format", "rar")

	_, err := loadConfig(cmd)
	require.Error(t, err)
	assert.True(t, vberrors.HasCode(err, vberrors.CodeConfigInvalid))
}

func TestLoadConfig_ExplicitFileMustExist(t *testing.T) {
	isolateConfig(t)
	cmd := parsedRunCmd(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := loadConfig(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestFormatError(t *testing.T) {
	t.Run("structured error uses the operator message", func(t *testing.T) {
		err := vberrors.ErrPasswordMismatch()
		got := formatError(err, false)
		assert.Equal(t, err.UserMessage(), got)
		assert.True(t, strings.HasPrefix(got, "ERROR: encryption passwords do not match"))
	})

	t.Run("wrapped structured error", func(t *testing.T) {
		err := errors.Join(vberrors.ErrExport("organization Acme (org-1)", errors.New("exit status 1")))
		assert.Contains(t, formatError(err, false), "ERROR: export of organization Acme (org-1) failed")
	})

	t.Run("plain error", func(t *testing.T) {
		assert.Equal(t, "ERROR: boom", formatError(errors.New("boom"), false))
	})

	t.Run("color keeps the message", func(t *testing.T) {
		assert.Contains(t, formatError(errors.New("boom"), true), "boom")
	})
}

func TestPrintHistory(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	runs := []history.Run{
		{
			StartedAt:          now.Add(-2 * time.Hour),
			FinishedAt:         now.Add(-2*time.Hour + 95*time.Second),
			Outcome:            history.OutcomeSuccess,
			TargetsExported:    3,
			AttachmentsFetched: 2,
			AttachmentFailures: 1,
			TrashCount:         4,
			ArchivePath:        "/bak/alice@example.com.zip",
		},
		{
			StartedAt:  now.Add(-48 * time.Hour),
			FinishedAt: now.Add(-48*time.Hour + 5*time.Second),
			Outcome:    history.OutcomeFailed,
			ErrorCode:  string(vberrors.CodeAuth),
		},
	}

	var buf bytes.Buffer
	printHistory(&buf, runs, now)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)

	assert.True(t, strings.HasPrefix(lines[0], "STARTED"))
	assert.Contains(t, lines[1], "2 hours ago")
	assert.Contains(t, lines[1], "success")
	assert.Contains(t, lines[1], "1m35s")
	assert.Contains(t, lines[1], "2 (1 failed)")
	assert.Contains(t, lines[1], "/bak/alice@example.com.zip")
	assert.Contains(t, lines[2], "2 days ago")
	assert.Contains(t, lines[2], "failed (AUTH)")
	assert.True(t, strings.HasSuffix(lines[2], "-"))
}

func TestPrintHistory_Empty(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, nil, time.Now())
	assert.Equal(t, "No backup runs recorded yet.\n", buf.String())
}

type fakeVersioner struct {
	installed bool
	version   string
	err       error
}

func (f fakeVersioner) Installed() bool { return f.installed }

func (f fakeVersioner) Version(context.Context) (string, error) { return f.version, f.err }

func TestPrintVersion(t *testing.T) {
	tests := []struct {
		name  string
		agent fakeVersioner
		want  string
	}{
		{"installed", fakeVersioner{installed: true, version: "2024.9.0"}, "agent: 2024.9.0\n"},
		{"missing", fakeVersioner{}, "agent: not installed\n"},
		{"broken", fakeVersioner{installed: true, err: errors.New("exit status 2")}, "agent: installed, version unknown (exit status 2)\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printVersion(context.Background(), &buf, tt.agent)
			assert.Equal(t, "vaultbak version "+Version+"\n"+tt.want, buf.String())
		})
	}
}

func TestSetupSignalHandler(t *testing.T) {
	var stderr bytes.Buffer
	ctx, stop := setupSignalHandler(context.Background(), &stderr)

	select {
	case <-ctx.Done():
		t.Fatal("context should not be cancelled initially")
	default:
	}

	stop()
	stop()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context should be cancelled after stop")
	}
}

func TestSetupSignalHandler_ParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := setupSignalHandler(parent, &bytes.Buffer{})
	defer stop()

	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("parent cancellation should propagate")
	}
}

// syncBuffer is a bytes.Buffer safe for the signal goroutine to write.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSetupSignalHandler_RepeatedInterruptDoesNotExit(t *testing.T) {
	var stderr syncBuffer
	ctx, stop := setupSignalHandler(context.Background(), &stderr)
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("first interrupt should cancel the run")
	}

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))
	assert.Eventually(t, func() bool {
		return strings.Contains(stderr.String(), "still locking the vault")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, stderr.String(), "locking the vault and exiting")
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "history", "version"})
	assert.NotNil(t, rootCmd.RunE, "the bare command runs a backup")
}
