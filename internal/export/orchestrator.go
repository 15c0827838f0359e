package export

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/vaultbak/internal/agent"
	vberrors "github.com/randalmurphal/vaultbak/internal/errors"
	"github.com/randalmurphal/vaultbak/internal/prompt"
	"github.com/randalmurphal/vaultbak/internal/secret"
)

// SecretSource issues tracked secret handles.
type SecretSource interface {
	PromptSecret(ctx context.Context, label string) (*secret.Buffer, error)
}

// Orchestrator runs the export phase.
type Orchestrator struct {
	client   agent.Client
	prompter prompt.Prompter
	secrets  SecretSource
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(client agent.Client, p prompt.Prompter, secrets SecretSource, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{client: client, prompter: p, secrets: secrets, logger: logger}
}

// DecideEncryption asks whether to encrypt. Declining requires an explicit
// "continue unencrypted" confirmation; declining that aborts the run.
// Choosing encryption requires two matching password entries. The
// encryption password is independent of the master password.
func (o *Orchestrator) DecideEncryption(ctx context.Context) (Mode, error) {
	encrypt, err := o.prompter.Confirm(ctx, "Encrypt backup?")
	if err != nil {
		return Mode{}, err
	}

	if !encrypt {
		proceed, err := o.prompter.Confirm(ctx, "Continue unencrypted?")
		if err != nil {
			return Mode{}, err
		}
		if !proceed {
			return Mode{}, vberrors.ErrUserAbort("unencrypted backup declined")
		}
		o.logger.Info("exporting without encryption")
		return Plain(), nil
	}

	first, err := o.secrets.PromptSecret(ctx, "Encryption password")
	if err != nil {
		return Mode{}, err
	}
	second, err := o.secrets.PromptSecret(ctx, "Confirm encryption password")
	if err != nil {
		return Mode{}, err
	}
	if !first.Equal(second) {
		return Mode{}, vberrors.ErrPasswordMismatch()
	}
	// The confirmation entry is no longer needed.
	if err := second.Close(); err != nil {
		o.logger.Warn("releasing confirmation entry failed", "error", err)
	}

	return Encrypted(first), nil
}

// ListOrganizations returns one target per organization, in the order the
// agent lists them. An empty result is not an error.
func (o *Orchestrator) ListOrganizations(ctx context.Context, sess agent.Session) ([]Target, error) {
	orgs, err := o.client.ListOrganizations(ctx, sess)
	if err != nil {
		return nil, vberrors.ErrAgent("list organizations", err)
	}
	targets := make([]Target, 0, len(orgs))
	for _, org := range orgs {
		targets = append(targets, Target{Kind: KindOrganization, ID: org.ID, Name: org.Name})
	}
	return targets, nil
}

// Targets returns the personal vault followed by every organization.
func Targets(orgs []Target) []Target {
	return append([]Target{Personal()}, orgs...)
}

// RunExports issues one export per target in order. The first failure
// stops the phase with an export error naming the target.
func (o *Orchestrator) RunExports(ctx context.Context, sess agent.Session, root string, mode Mode, targets []Target) ([]Job, error) {
	jobs := Plan(root, mode, targets)
	done := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		o.logger.Info("exporting", "target", job.Target.String(), "mode", mode.String())
		if err := o.client.Export(ctx, sess, job.Request()); err != nil {
			return done, vberrors.ErrExport(job.Target.String(), err)
		}
		done = append(done, job)
	}
	return done, nil
}
