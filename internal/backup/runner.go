// Package backup sequences a complete backup run: agent reconciliation,
// credential collection, login and unlock, exports, attachments, the
// trash audit, teardown and the optional archive.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/clock"

	"github.com/randalmurphal/vaultbak/internal/agent"
	"github.com/randalmurphal/vaultbak/internal/archive"
	"github.com/randalmurphal/vaultbak/internal/attachment"
	"github.com/randalmurphal/vaultbak/internal/credential"
	vberrors "github.com/randalmurphal/vaultbak/internal/errors"
	"github.com/randalmurphal/vaultbak/internal/export"
	"github.com/randalmurphal/vaultbak/internal/history"
	"github.com/randalmurphal/vaultbak/internal/progress"
	"github.com/randalmurphal/vaultbak/internal/prompt"
	"github.com/randalmurphal/vaultbak/internal/session"
	"github.com/randalmurphal/vaultbak/internal/trash"
	"github.com/randalmurphal/vaultbak/internal/update"
)

// TeardownTimeout bounds the lock and logout calls at the end of a run.
const TeardownTimeout = 30 * time.Second

// Reconciler makes sure the agent binary is present and current.
type Reconciler interface {
	Reconcile(ctx context.Context) (update.Outcome, error)
}

// Journal records finished runs.
type Journal interface {
	Record(ctx context.Context, run history.Run) (string, error)
}

// Deps are the collaborators of a Runner. Updater and Journal are
// optional.
type Deps struct {
	Client   agent.Client
	Prompter prompt.Prompter
	Updater  Reconciler
	Journal  Journal
	Display  *progress.Display
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Options configure a run.
type Options struct {
	// OutputDir is the parent of the per-operator export root.
	OutputDir     string
	ArchiveFormat archive.Format
	Checksums     bool
}

// Report summarizes what a run produced. It is filled in as far as the
// run got, so a failed run still reports its partial progress.
type Report struct {
	ExportRoot    string
	Encrypted     bool
	Organizations int
	Exported      []export.Job
	Attachments   attachment.Result
	TrashCount    int
	ChecksumFiles int
	Archive       *archive.Result
}

// Runner executes backup runs.
type Runner struct {
	deps Deps
	opts Options
}

// NewRunner creates a Runner.
func NewRunner(deps Deps, opts Options) *Runner {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clock.WallClock
	}
	if deps.Display == nil {
		deps.Display = progress.New(os.Stdout, false)
	}
	if opts.ArchiveFormat == "" {
		opts.ArchiveFormat = archive.FormatZip
	}
	return &Runner{deps: deps, opts: opts}
}

// ExportRoot returns the export directory for email.
func (r *Runner) ExportRoot(email string) string {
	return filepath.Join(r.opts.OutputDir, email)
}

// Run performs one backup and records it in the journal. Every secret
// collected during the run is zeroed and the agent is locked and logged
// out before Run returns, whatever the outcome.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	started := r.deps.Clock.Now()
	report := &Report{}
	err := r.run(ctx, report)
	r.record(ctx, started, report, err)
	return report, err
}

func (r *Runner) run(ctx context.Context, report *Report) error {
	d := r.deps.Display
	log := r.deps.Logger

	if r.deps.Updater != nil {
		d.Stage("Checking vault agent")
		outcome, err := r.deps.Updater.Reconcile(ctx)
		if err != nil {
			return err
		}
		switch outcome {
		case update.OutcomeInstalled:
			d.Info("vault agent installed")
		case update.OutcomeUpdated:
			d.Info("vault agent updated")
		case update.OutcomeCheckFailed:
			d.Warning("could not check for a newer vault agent; using the installed one")
		}
	}

	creds := credential.NewManager(r.deps.Prompter, log)
	defer func() {
		if zerr := creds.Zeroize(); zerr != nil {
			log.Warn("zeroing secrets failed", "error", zerr)
		}
	}()

	email, err := creds.PromptEmail(ctx)
	if err != nil {
		return err
	}
	password, err := creds.PromptSecret(ctx, "Master password")
	if err != nil {
		return err
	}

	ctl := session.NewController(r.deps.Client, creds, log)
	defer r.teardown(ctx, ctl)

	d.Stage("Logging in")
	if err := ctl.Login(ctx, email, password); err != nil {
		return err
	}
	sess, err := ctl.Unlock(ctx, password)
	if err != nil {
		return err
	}
	// The master password is not needed past unlock.
	if err := password.Close(); err != nil {
		log.Warn("releasing master password failed", "error", err)
	}

	orch := export.NewOrchestrator(r.deps.Client, r.deps.Prompter, creds, log)
	mode, err := orch.DecideEncryption(ctx)
	if err != nil {
		return err
	}
	report.Encrypted = mode.Encrypted()

	root := r.ExportRoot(email)
	if err := os.MkdirAll(root, 0o700); err != nil {
		return vberrors.ErrExport("export directory", err)
	}
	report.ExportRoot = root

	d.Stage("Exporting vaults")
	orgs, err := orch.ListOrganizations(ctx, sess)
	if err != nil {
		return err
	}
	report.Organizations = len(orgs)
	if len(orgs) == 0 {
		d.Info("no organizations: nothing to export beyond the personal vault")
	}
	jobs, err := orch.RunExports(ctx, sess, root, mode, export.Targets(orgs))
	report.Exported = jobs
	for _, job := range jobs {
		d.Exported(job.Target.String(), job.Output)
	}
	if err != nil {
		return err
	}

	d.Stage("Retrieving attachments")
	fetcher := attachment.NewFetcher(r.deps.Client, log)
	items, err := fetcher.ListItemsWithAttachments(ctx, sess)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		d.Info("no attachments: nothing to retrieve")
	} else {
		report.Attachments = fetcher.FetchAll(ctx, sess, root, items)
		d.Attachments(len(report.Attachments.Fetched), len(report.Attachments.Failures))
		for _, failure := range report.Attachments.Failures {
			if failure.Severity() == vberrors.SeverityFatal {
				return failure
			}
			d.Error(failure.Label())
		}
	}

	count, err := trash.NewAuditor(r.deps.Client, log).Count(ctx, sess)
	if err != nil {
		// The count is informational; the backup itself is complete.
		d.Warning(fmt.Sprintf("could not count trashed items: %v", err))
	} else {
		report.TrashCount = count
		if msg, ok := trash.Warning(count); ok {
			d.Warning(msg)
		}
	}

	if r.opts.Checksums {
		n, err := WriteManifest(root)
		if err != nil {
			return vberrors.Wrap(err, "writing checksum manifest failed")
		}
		report.ChecksumFiles = n
	}

	// The session is no longer needed; end it before the archive step.
	r.teardown(ctx, ctl)

	bundle, err := r.deps.Prompter.Confirm(ctx, "Compress backup?")
	if err != nil {
		return err
	}
	location := root
	if bundle {
		d.Stage("Compressing backup")
		res, err := archive.NewFinalizer(r.opts.ArchiveFormat, log).Bundle(root)
		if err != nil {
			return err
		}
		report.Archive = &res
		location = res.Path
		d.Archived(res.Path, res.Size)
	}

	d.Complete(location)
	return nil
}

// teardown locks and logs out. It runs even when ctx was cancelled, bounded
// by TeardownTimeout so a hung agent cannot hold the process.
func (r *Runner) teardown(ctx context.Context, ctl *session.Controller) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), TeardownTimeout)
	defer cancel()
	if err := ctl.Teardown(tctx); err != nil {
		r.deps.Logger.Warn("session teardown incomplete", "error", err)
	}
}

// record writes the run to the journal. Journal failures are logged and
// never change the run's outcome.
func (r *Runner) record(ctx context.Context, started time.Time, report *Report, runErr error) {
	if r.deps.Journal == nil {
		return
	}
	run := history.Run{
		StartedAt:          started,
		FinishedAt:         r.deps.Clock.Now(),
		Outcome:            outcomeOf(runErr),
		Encrypted:          report.Encrypted,
		TargetsExported:    len(report.Exported),
		AttachmentsFetched: len(report.Attachments.Fetched),
		AttachmentFailures: len(report.Attachments.Failures),
		TrashCount:         report.TrashCount,
	}
	if vErr := vberrors.AsVaultError(runErr); vErr != nil {
		run.ErrorCode = string(vErr.Code)
	}
	if report.Archive != nil {
		run.ArchivePath = report.Archive.Path
	}
	if _, err := r.deps.Journal.Record(context.WithoutCancel(ctx), run); err != nil {
		r.deps.Logger.Warn("could not record run history", "error", err)
	}
}

func outcomeOf(err error) history.Outcome {
	switch {
	case err == nil:
		return history.OutcomeSuccess
	case vberrors.HasCode(err, vberrors.CodeUserAbort), errors.Is(err, prompt.ErrNoInput),
		errors.Is(err, context.Canceled):
		return history.OutcomeAborted
	default:
		return history.OutcomeFailed
	}
}
