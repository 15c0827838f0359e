// Package session drives the agent through login, unlock, lock and logout
// and owns the run's single session key.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/vaultbak/internal/agent"
	vberrors "github.com/randalmurphal/vaultbak/internal/errors"
	"github.com/randalmurphal/vaultbak/internal/secret"
)

// State is the controller's position in the session lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateUnlocked
	StateLocked
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateUnlocked:
		return "unlocked"
	case StateLocked:
		return "locked"
	case StateLoggedOut:
		return "logged-out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Tracker receives the session key so it is zeroed with the run's other
// secrets.
type Tracker interface {
	Track(*secret.Buffer)
}

// Controller is the only owner of the session key. It is not safe for
// concurrent use; the backup drives it from one goroutine.
type Controller struct {
	client  agent.Client
	tracker Tracker
	logger  *slog.Logger

	state    State
	key      *secret.Buffer
	tornDown bool
}

// NewController creates a controller in the unauthenticated state.
func NewController(client agent.Client, tracker Tracker, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{client: client, tracker: tracker, logger: logger}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return c.state
}

// Login authenticates with the agent unless it already holds a login.
// It fails with an auth error if the agent still reports
// unauthenticated afterwards.
func (c *Controller) Login(ctx context.Context, email string, password *secret.Buffer) error {
	if c.state != StateUnauthenticated {
		return fmt.Errorf("login: session is %s", c.state)
	}

	status, err := c.client.Status(ctx)
	if err != nil {
		return vberrors.ErrAgent("status", err)
	}
	if status.Authenticated() {
		c.logger.Debug("agent already authenticated, skipping login")
		c.state = StateAuthenticated
		return nil
	}

	loginErr := c.client.Login(ctx, email, password)

	status, err = c.client.Status(ctx)
	if err != nil {
		return vberrors.ErrAgent("status", err)
	}
	if !status.Authenticated() {
		return vberrors.ErrAuth(loginErr)
	}
	if loginErr != nil {
		c.logger.Warn("agent login reported an error but the session is authenticated", "error", loginErr)
	}

	c.state = StateAuthenticated
	c.logger.Info("logged in to vault agent")
	return nil
}

// Unlock unlocks the vault and returns the session that authorizes every
// later agent call. An empty or whitespace-only key fails with an unlock
// error.
func (c *Controller) Unlock(ctx context.Context, password *secret.Buffer) (agent.Session, error) {
	if c.state != StateAuthenticated {
		return agent.Session{}, fmt.Errorf("unlock: session is %s", c.state)
	}

	raw, err := c.client.Unlock(ctx, password)
	if err != nil {
		secret.Zero(raw)
		return agent.Session{}, vberrors.ErrUnlock(err)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		secret.Zero(raw)
		return agent.Session{}, vberrors.ErrUnlock(nil)
	}

	key, err := secret.NewFromBytes(trimmed)
	secret.Zero(raw)
	if err != nil {
		return agent.Session{}, vberrors.ErrUnlock(err)
	}

	c.key = key
	if c.tracker != nil {
		c.tracker.Track(key)
	}
	c.state = StateUnlocked
	c.logger.Info("vault unlocked")
	return agent.NewSession(key), nil
}

// Session returns the live session. It fails unless the vault is unlocked.
func (c *Controller) Session() (agent.Session, error) {
	if c.state != StateUnlocked || c.key == nil || c.key.Closed() {
		return agent.Session{}, agent.ErrNoSession
	}
	return agent.NewSession(c.key), nil
}

// Teardown locks, then logs out, then empties the session key. It runs
// its body exactly once; later calls return nil. Lock is skipped when no
// session was unlocked. Logout runs whenever the agent is authenticated,
// including a login adopted by Login. Both are attempted even if the
// other fails.
func (c *Controller) Teardown(ctx context.Context) error {
	if c.tornDown {
		return nil
	}
	c.tornDown = true

	var errs []error

	if c.state == StateUnlocked {
		if err := c.client.Lock(ctx, agent.NewSession(c.key)); err != nil {
			c.logger.Warn("agent lock failed", "error", err)
			errs = append(errs, vberrors.ErrAgent("lock", err))
		}
		c.state = StateLocked
	}

	if c.state == StateAuthenticated || c.state == StateLocked {
		if err := c.client.Logout(ctx); err != nil {
			c.logger.Warn("agent logout failed", "error", err)
			errs = append(errs, vberrors.ErrAgent("logout", err))
		}
		c.state = StateLoggedOut
	}

	if c.key != nil {
		if err := c.key.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	c.logger.Debug("session torn down", "state", c.state)
	return errors.Join(errs...)
}
