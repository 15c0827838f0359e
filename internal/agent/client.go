// Package agent defines the vault agent contract and its implementations:
// BW drives the external command-line agent, Fake is an in-memory agent
// for tests.
package agent

import (
	"context"
	"errors"

	"github.com/randalmurphal/vaultbak/internal/secret"
)

// Status is the agent's authentication state.
type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusLocked          Status = "locked"
	StatusUnlocked        Status = "unlocked"
)

// Authenticated reports whether the agent holds a login.
func (s Status) Authenticated() bool {
	return s == StatusLocked || s == StatusUnlocked
}

// ExportFormat selects the agent's export encoding.
type ExportFormat string

const (
	FormatJSON          ExportFormat = "json"
	FormatEncryptedJSON ExportFormat = "encrypted_json"
)

// ExportRequest parameterizes one export call. OrganizationID is empty for
// the personal vault. Password is set only for FormatEncryptedJSON.
type ExportRequest struct {
	Format         ExportFormat
	Output         string
	OrganizationID string
	Password       *secret.Buffer
}

// Organization is a shared vault namespace.
type Organization struct {
	ID   string
	Name string
}

// Attachment is a file attached to an item.
type Attachment struct {
	ID       string
	FileName string
	Size     int64
}

// Item is a vault record. Only the fields backups need are decoded.
type Item struct {
	ID          string
	Name        string
	Attachments []Attachment
}

// ErrNoSession is returned for calls that need an unlocked session when
// none is present.
var ErrNoSession = errors.New("agent: no unlocked session")

// Session is the authorization value produced by unlock. It is passed
// explicitly to every call that needs it and never stored in the
// process environment.
type Session struct {
	key *secret.Buffer
}

// NewSession wraps an unlock key. The Session does not own the buffer.
func NewSession(key *secret.Buffer) Session {
	return Session{key: key}
}

// Valid reports whether the session still carries a key.
func (s Session) Valid() bool {
	return s.key != nil && !s.key.Closed() && s.key.Len() > 0
}

// Client is the vault agent capability set used by the backup.
type Client interface {
	Status(ctx context.Context) (Status, error)
	Login(ctx context.Context, email string, password *secret.Buffer) error
	// Unlock returns the raw session key as printed by the agent. The
	// caller owns and zeros the slice.
	Unlock(ctx context.Context, password *secret.Buffer) ([]byte, error)
	Export(ctx context.Context, sess Session, req ExportRequest) error
	ListOrganizations(ctx context.Context, sess Session) ([]Organization, error)
	ListItems(ctx context.Context, sess Session, trash bool) ([]Item, error)
	GetAttachment(ctx context.Context, sess Session, fileName, itemID, output string) error
	Lock(ctx context.Context, sess Session) error
	Logout(ctx context.Context) error
}
