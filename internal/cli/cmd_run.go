package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/randalmurphal/vaultbak/internal/agent"
	"github.com/randalmurphal/vaultbak/internal/backup"
	"github.com/randalmurphal/vaultbak/internal/config"
	"github.com/randalmurphal/vaultbak/internal/history"
	"github.com/randalmurphal/vaultbak/internal/lock"
	"github.com/randalmurphal/vaultbak/internal/progress"
	"github.com/randalmurphal/vaultbak/internal/prompt"
	"github.com/randalmurphal/vaultbak/internal/update"
	"github.com/randalmurphal/vaultbak/internal/update/github"
)

// newRunCmd creates the run command, an explicit spelling of the root
// command's default action.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a backup",
		Long: `Run a backup: make sure the agent is installed and current, log in,
unlock, export the personal vault and every organization vault, retrieve
attachments, warn about trashed items, then lock and log out.

The export directory is <output-dir>/<email>. At the end you are asked
whether to bundle it into an archive; the directory is removed once the
archive has been written.`,
		Args: cobra.NoArgs,
		RunE: runBackup,
	}
}

func runBackup(cmd *cobra.Command, _ []string) error {
	logger := newLogger(os.Stderr)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := cfg.Archive()
	if err != nil {
		return err
	}

	guard := lock.NewPIDGuard(cfg.StateDir)
	if err := guard.Acquire(); err != nil {
		return err
	}
	defer guard.Release()

	ctx, stop := setupSignalHandler(cmd.Context(), os.Stderr)
	defer stop()

	bw := agent.NewBW(cfg.AgentBinary(), agent.NewExecRunner(logger), logger,
		agent.WithTerminal(os.Stdin, os.Stderr))

	deps := backup.Deps{
		Client:   bw,
		Prompter: prompt.NewTerminal(os.Stdin, os.Stderr),
		Updater:  newChecker(cfg, bw, logger),
		Display:  progress.New(os.Stdout, viper.GetBool("quiet")),
		Logger:   logger,
	}

	if cfg.History {
		journal, err := history.Open(ctx, cfg.HistoryPath())
		if err != nil {
			logger.Warn("run history disabled", "path", cfg.HistoryPath(), "error", err)
		} else {
			defer func() { _ = journal.Close() }()
			deps.Journal = journal
		}
	}

	runner := backup.NewRunner(deps, backup.Options{
		OutputDir:     cfg.OutputDir,
		ArchiveFormat: format,
		Checksums:     cfg.Checksums,
	})
	_, err = runner.Run(ctx)
	return err
}

// newChecker wires the agent reconciler to the configured release stream.
func newChecker(cfg *config.Config, bw *agent.BW, logger *slog.Logger) *update.Checker {
	source := github.NewSource(github.Options{
		Owner:        cfg.ReleaseOwner,
		Repo:         cfg.ReleaseRepo,
		TagPrefix:    cfg.ReleaseTagPrefix,
		AssetPattern: cfg.AssetPattern,
		Dest:         cfg.InstallTarget(),
	}, logger)

	return update.NewChecker(update.Config{
		Agent:     bw,
		Releases:  source,
		Installer: source,
		Stamp:     update.NewStampFile(cfg.UpdateStampPath()),
		Enabled:   cfg.CheckUpdates,
		Interval:  cfg.UpdateInterval,
		Logger:    logger,
	})
}

