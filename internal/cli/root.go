// Package cli implements the vaultbak command-line interface.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/randalmurphal/vaultbak/internal/config"
	vberrors "github.com/randalmurphal/vaultbak/internal/errors"
)

var (
	cfgFile       string
	verbose       bool
	quiet         bool
	outputDir     string
	archiveFormat string
	noUpdateCheck bool
)

// rootCmd represents the base command when called without any subcommands.
// Without a subcommand it runs a backup.
var rootCmd = &cobra.Command{
	Use:   "vaultbak",
	Short: "Back up a password vault through its command-line agent",
	Long: `vaultbak exports a password vault, every organization vault and all
file attachments into a local directory, driving the vault's own
command-line agent. The agent is installed and kept current automatically.

Each run prompts for the vault email and master password, asks whether
the exports should be encrypted, and ends by locking the vault and
logging out. The export directory can then be bundled into an archive.

Quick start:
  vaultbak                       Run a backup into ./<email>
  vaultbak --output-dir ~/bak    Run a backup into ~/bak/<email>
  vaultbak history               Show recent runs
  vaultbak version               Show tool and agent versions`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBackup,
}

// Execute runs the root command and prints any error for the operator.
// The caller maps the returned error to an exit status.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err, isatty.IsTerminal(os.Stderr.Fd())))
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ~/.config/vaultbak/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log agent calls and decisions to stderr")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress progress output; warnings and errors are still shown")
	flags.StringVar(&outputDir, "output-dir", "", "parent directory of the export directory")
	flags.StringVar(&archiveFormat, "archive-format", "", "archive format: zip, tar.gz, tar.zst or tar.lz4")
	flags.BoolVar(&noUpdateCheck, "no-update-check", false, "skip the periodic agent update check")

	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = viper.BindPFlag("quiet", flags.Lookup("quiet"))

	// Add subcommands
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig binds VAULTBAK_VERBOSE and VAULTBAK_QUIET. The remaining
// settings are loaded with source tracking by internal/config.
func initConfig() {
	viper.SetEnvPrefix("VAULTBAK")
	viper.AutomaticEnv()
}

// loadConfig loads layered configuration and applies command-line flags,
// which take precedence over every other source.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	tc, err := config.LoadWithSources(cfgFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("output-dir") {
		if err := tc.ApplyFlag("output_dir", outputDir); err != nil {
			return nil, err
		}
	}
	if flags.Changed("archive-format") {
		if err := tc.ApplyFlag("archive_format", archiveFormat); err != nil {
			return nil, err
		}
	}
	if noUpdateCheck {
		if err := tc.ApplyFlag("check_updates", "false"); err != nil {
			return nil, err
		}
	}

	if err := tc.Config.Validate(); err != nil {
		return nil, err
	}

	if viper.GetBool("verbose") {
		for _, key := range []string{"output_dir", "archive_format", "check_updates", "agent_path"} {
			slog.Debug("config", "key", key, "source", tc.GetSource(key).String())
		}
	}
	return tc.Config, nil
}

// newLogger creates the process logger. Agent calls and decisions are
// logged at debug level and only shown with --verbose.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

var errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

// formatError renders err for stderr. Structured errors use their
// operator-facing message.
func formatError(err error, color bool) string {
	msg := "ERROR: " + err.Error()
	if vErr := vberrors.AsVaultError(err); vErr != nil {
		msg = vErr.UserMessage()
		if viper.GetBool("verbose") {
			msg += fmt.Sprintf("\n\nCode: %s", vErr.Code)
		}
	}
	if color {
		return errorStyle.Render(msg)
	}
	return msg
}
