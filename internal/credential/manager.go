// Package credential collects the operator's identity and secrets and
// guarantees every secret issued during a run is zeroed at the end.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	vberrors "github.com/randalmurphal/vaultbak/internal/errors"
	"github.com/randalmurphal/vaultbak/internal/prompt"
	"github.com/randalmurphal/vaultbak/internal/secret"
)

// emailPattern matches the whole string: local part of ASCII letters,
// digits and ._%+-, dot-separated domain labels, TLD of two or more
// letters.
var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9-]+(\.[A-Za-z0-9-]+)*\.[A-Za-z]{2,}$`)

// ValidateEmail returns a validation error unless email has the
// local@domain.tld shape.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return vberrors.ErrInvalidEmail(email)
	}
	return nil
}

// Manager issues secret handles and zeroes all of them on Zeroize.
type Manager struct {
	prompter prompt.Prompter
	logger   *slog.Logger

	mu     sync.Mutex
	issued []*secret.Buffer
}

// NewManager creates a Manager reading from p.
func NewManager(p prompt.Prompter, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{prompter: p, logger: logger}
}

// PromptEmail asks for the vault email and validates it.
func (m *Manager) PromptEmail(ctx context.Context) (string, error) {
	email, err := m.prompter.Line(ctx, "Vault email")
	if err != nil {
		return "", fmt.Errorf("read email: %w", err)
	}
	if err := ValidateEmail(email); err != nil {
		return "", err
	}
	return email, nil
}

// PromptSecret asks for a masked secret. The returned handle is tracked
// and zeroed by Zeroize; callers may Close it earlier.
func (m *Manager) PromptSecret(ctx context.Context, label string) (*secret.Buffer, error) {
	raw, err := m.prompter.Secret(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", label, err)
	}
	if len(raw) == 0 {
		return nil, vberrors.ErrEmptySecret(label)
	}
	buf, err := secret.NewFromBytes(raw)
	if err != nil {
		return nil, err
	}
	m.Track(buf)
	return buf, nil
}

// Track adds a handle issued elsewhere (the session key) to the set
// zeroed by Zeroize.
func (m *Manager) Track(buf *secret.Buffer) {
	if buf == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued = append(m.issued, buf)
}

// Zeroize closes every tracked handle. It is safe to call more than once.
func (m *Manager) Zeroize() error {
	m.mu.Lock()
	issued := m.issued
	m.issued = nil
	m.mu.Unlock()

	var errs []error
	for _, buf := range issued {
		if err := buf.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.logger.Debug("secrets zeroed", "count", len(issued))
	return errors.Join(errs...)
}
