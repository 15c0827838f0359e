package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/randalmurphal/vaultbak/internal/secret"
)

// Compile-time interface check.
var _ Client = (*Fake)(nil)

// ExportCall records one export the Fake received.
type ExportCall struct {
	Format         ExportFormat
	Output         string
	OrganizationID string
	// Password is a copy taken at call time so tests can assert on it
	// after the original buffer has been zeroed.
	Password string
}

// Fake is an in-memory agent. Exports and attachments are written as
// small files so callers can inspect the produced tree.
type Fake struct {
	mu sync.Mutex

	Email    string
	Password string
	// SessionKey is what Unlock prints. Whitespace-only simulates a
	// broken unlock.
	SessionKey string
	// RejectLogin makes Login succeed while the agent stays
	// unauthenticated.
	RejectLogin bool

	Organizations  []Organization
	Items          []Item
	Trash          []Item
	AgentVersion   string
	ExportErrs     map[string]error // keyed by organization ID, "" for personal
	AttachmentErrs map[string]error // keyed by itemID + "/" + fileName
	ListOrgsErr    error
	ListItemsErr   error

	status  Status
	Calls   []string
	Exports []ExportCall
	Fetched []string

	// Sessions holds every session presented to a session-scoped call.
	Sessions []Session

	// OnCall, if set, runs as each call is recorded, with the fake locked.
	OnCall func(op string)
}

// NewFake creates an unauthenticated fake agent accepting the given
// credentials.
func NewFake(email, password, sessionKey string) *Fake {
	return &Fake{
		Email:        email,
		Password:     password,
		SessionKey:   sessionKey,
		AgentVersion: "2024.9.0",
		status:       StatusUnauthenticated,
	}
}

// SetStatus forces the agent state, e.g. an already authenticated agent.
func (f *Fake) SetStatus(s Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
}

// CallLog returns a copy of the recorded call names.
func (f *Fake) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

// Count returns how many times op was called.
func (f *Fake) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *Fake) record(op string) {
	f.Calls = append(f.Calls, op)
	if f.OnCall != nil {
		f.OnCall(op)
	}
}

func (f *Fake) checkSession(sess Session) error {
	f.Sessions = append(f.Sessions, sess)
	if !sess.Valid() {
		return ErrNoSession
	}
	if f.status != StatusUnlocked || sess.key.String() != f.SessionKey {
		return fmt.Errorf("fake agent: session key rejected")
	}
	return nil
}

// Version returns AgentVersion.
func (f *Fake) Version(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("version")
	return f.AgentVersion, nil
}

// Status returns the current state.
func (f *Fake) Status(ctx context.Context) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("status")
	return f.status, nil
}

// Login checks the credentials.
func (f *Fake) Login(ctx context.Context, email string, password *secret.Buffer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("login")
	if email != f.Email || password.String() != f.Password {
		return fmt.Errorf("fake agent: username or password is incorrect")
	}
	if !f.RejectLogin {
		f.status = StatusLocked
	}
	return nil
}

// Unlock returns SessionKey as raw bytes.
func (f *Fake) Unlock(ctx context.Context, password *secret.Buffer) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("unlock")
	if !f.status.Authenticated() {
		return nil, fmt.Errorf("fake agent: you are not logged in")
	}
	if password.String() != f.Password {
		return nil, fmt.Errorf("fake agent: invalid master password")
	}
	f.status = StatusUnlocked
	return []byte(f.SessionKey + "\n"), nil
}

// Export writes a placeholder export file.
func (f *Fake) Export(ctx context.Context, sess Session, req ExportRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("export")
	if err := f.checkSession(sess); err != nil {
		return err
	}
	call := ExportCall{Format: req.Format, Output: req.Output, OrganizationID: req.OrganizationID}
	if req.Password != nil {
		call.Password = req.Password.String()
	}
	f.Exports = append(f.Exports, call)
	if err := f.ExportErrs[req.OrganizationID]; err != nil {
		return err
	}
	return os.WriteFile(req.Output, []byte(`{"encrypted":`+fmt.Sprint(req.Format == FormatEncryptedJSON)+`}`), 0o600)
}

// ListOrganizations returns Organizations.
func (f *Fake) ListOrganizations(ctx context.Context, sess Session) ([]Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list-organizations")
	if err := f.checkSession(sess); err != nil {
		return nil, err
	}
	if f.ListOrgsErr != nil {
		return nil, f.ListOrgsErr
	}
	return append([]Organization{}, f.Organizations...), nil
}

// ListItems returns Items, or Trash when trash is set.
func (f *Fake) ListItems(ctx context.Context, sess Session, trash bool) ([]Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if trash {
		f.record("list-trash")
	} else {
		f.record("list-items")
	}
	if err := f.checkSession(sess); err != nil {
		return nil, err
	}
	if f.ListItemsErr != nil {
		return nil, f.ListItemsErr
	}
	if trash {
		return append([]Item{}, f.Trash...), nil
	}
	return append([]Item{}, f.Items...), nil
}

// GetAttachment writes a placeholder attachment file.
func (f *Fake) GetAttachment(ctx context.Context, sess Session, fileName, itemID, output string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get-attachment")
	if err := f.checkSession(sess); err != nil {
		return err
	}
	if err := f.AttachmentErrs[itemID+"/"+fileName]; err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Dir(output)); err != nil {
		return fmt.Errorf("fake agent: output directory: %w", err)
	}
	f.Fetched = append(f.Fetched, output)
	return os.WriteFile(output, []byte(itemID+":"+fileName), 0o600)
}

// Lock moves an unlocked agent back to locked.
func (f *Fake) Lock(ctx context.Context, sess Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("lock")
	if f.status == StatusUnlocked {
		f.status = StatusLocked
	}
	return nil
}

// Logout ends the login.
func (f *Fake) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("logout")
	f.status = StatusUnauthenticated
	return nil
}
