// Package update keeps the vault agent binary installed and, at most once
// per check interval, in step with the latest published release.
package update

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/juju/clock"

	vberrors "github.com/randalmurphal/vaultbak/internal/errors"
)

// CheckInterval is the default minimum time between remote version checks.
const CheckInterval = 10 * 24 * time.Hour

// LocalAgent is the installed agent binary.
type LocalAgent interface {
	Installed() bool
	Version(ctx context.Context) (string, error)
}

// ReleaseSource reports the latest published agent version.
type ReleaseSource interface {
	LatestVersion(ctx context.Context) (string, error)
}

// Installer puts a given agent version in place.
type Installer interface {
	Install(ctx context.Context, version string) error
}

// Outcome says what Reconcile did.
type Outcome int

const (
	// OutcomeSkipped means the check interval has not elapsed or checks
	// are disabled.
	OutcomeSkipped Outcome = iota
	// OutcomeInstalled means the agent was missing and has been installed.
	OutcomeInstalled
	// OutcomeCurrent means the installed version matches the latest release.
	OutcomeCurrent
	// OutcomeUpdated means a different version was installed.
	OutcomeUpdated
	// OutcomeCheckFailed means the latest version could not be determined
	// and the installed agent is used as is.
	OutcomeCheckFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeInstalled:
		return "installed"
	case OutcomeCurrent:
		return "current"
	case OutcomeUpdated:
		return "updated"
	case OutcomeCheckFailed:
		return "check failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// ShouldCheckRemoteVersion reports whether more than interval has passed
// since last. A zero last (no record, or an unparsable one) always checks,
// as does a last later than now (clock skew or a hand-edited stamp).
func ShouldCheckRemoteVersion(now, last time.Time, interval time.Duration) bool {
	if last.IsZero() || last.After(now) {
		return true
	}
	return now.Sub(last) > interval
}

// Config configures a Checker.
type Config struct {
	Agent     LocalAgent
	Releases  ReleaseSource
	Installer Installer
	Stamp     *StampFile
	Clock     clock.Clock
	// Enabled turns on the periodic remote check. A missing agent is
	// installed regardless.
	Enabled  bool
	Interval time.Duration
	Logger   *slog.Logger
}

// Checker reconciles the installed agent with the release source.
type Checker struct {
	cfg Config
}

// NewChecker creates a Checker, filling in the wall clock, the default
// interval and the default logger when unset.
func NewChecker(cfg Config) *Checker {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Interval <= 0 {
		cfg.Interval = CheckInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Checker{cfg: cfg}
}

// Reconcile installs the agent when absent, and otherwise updates it when
// a due check finds a different published version. Install failures are
// returned as install errors; the agent is required for everything after.
func (c *Checker) Reconcile(ctx context.Context) (Outcome, error) {
	log := c.cfg.Logger
	now := c.cfg.Clock.Now()

	if !c.cfg.Agent.Installed() {
		latest, err := c.cfg.Releases.LatestVersion(ctx)
		if err != nil {
			return OutcomeSkipped, vberrors.ErrInstall(fmt.Errorf("resolve latest version: %w", err))
		}
		if err := c.install(ctx, latest); err != nil {
			return OutcomeSkipped, err
		}
		c.stamp(now)
		log.Info("agent installed", "version", latest)
		return OutcomeInstalled, nil
	}

	if !c.cfg.Enabled {
		return OutcomeSkipped, nil
	}
	last, err := c.cfg.Stamp.Read()
	if err != nil {
		log.Warn("update stamp unreadable", "error", err)
	}
	if !ShouldCheckRemoteVersion(now, last, c.cfg.Interval) {
		return OutcomeSkipped, nil
	}
	// Recorded before checking so a failing check is not retried every run.
	c.stamp(now)

	latest, err := c.cfg.Releases.LatestVersion(ctx)
	if err != nil {
		log.Warn("latest agent version unavailable, using installed agent", "error", err)
		return OutcomeCheckFailed, nil
	}
	local, err := c.cfg.Agent.Version(ctx)
	if err != nil {
		log.Warn("installed agent version unreadable, reinstalling", "error", err)
	}
	if err == nil && strings.TrimSpace(local) == strings.TrimSpace(latest) {
		log.Debug("agent up to date", "version", local)
		return OutcomeCurrent, nil
	}
	if err := c.install(ctx, latest); err != nil {
		return OutcomeSkipped, err
	}
	log.Info("agent updated", "from", local, "to", latest)
	return OutcomeUpdated, nil
}

func (c *Checker) install(ctx context.Context, version string) error {
	if err := c.cfg.Installer.Install(ctx, version); err != nil {
		return vberrors.ErrInstall(fmt.Errorf("install %s: %w", version, err))
	}
	if !c.cfg.Agent.Installed() {
		return vberrors.ErrInstall(fmt.Errorf("agent binary missing after installing %s", version))
	}
	return nil
}

func (c *Checker) stamp(now time.Time) {
	if err := c.cfg.Stamp.Write(now); err != nil {
		c.cfg.Logger.Warn("could not record update check", "error", err)
	}
}
