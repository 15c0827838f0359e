package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/vaultbak/internal/agent"
)

// Version is the vaultbak release, set at build time with
// -ldflags "-X github.com/randalmurphal/vaultbak/internal/cli.Version=...".
var Version = "0.1.0-dev"

// agentVersioner reports the installed agent.
type agentVersioner interface {
	Installed() bool
	Version(ctx context.Context) (string, error)
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show vaultbak and agent versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(os.Stderr)
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			bw := agent.NewBW(cfg.AgentBinary(), agent.NewExecRunner(logger), logger)
			printVersion(cmd.Context(), cmd.OutOrStdout(), bw)
			return nil
		},
	}
}

func printVersion(ctx context.Context, w io.Writer, a agentVersioner) {
	fmt.Fprintf(w, "vaultbak version %s\n", Version)

	if !a.Installed() {
		fmt.Fprintln(w, "agent: not installed")
		return
	}
	v, err := a.Version(ctx)
	if err != nil {
		fmt.Fprintf(w, "agent: installed, version unknown (%v)\n", err)
		return
	}
	fmt.Fprintf(w, "agent: %s\n", v)
}
