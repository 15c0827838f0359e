package agent

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/randalmurphal/vaultbak/internal/secret"
)

const (
	// passwordEnv carries the master password to login/unlock children.
	passwordEnv = "VAULTBAK_AGENT_PASSWORD"
	// sessionEnv is the variable the agent reads its session key from.
	sessionEnv = "BW_SESSION"
)

// Compile-time interface check.
var _ Client = (*BW)(nil)

// BW drives the Bitwarden command-line agent.
type BW struct {
	path   string
	runner CommandRunner
	logger *slog.Logger
	// Terminal streams are attached to login so the agent can ask for a
	// second factor.
	stdin  *os.File
	stderr *os.File
}

// BWOption configures a BW client.
type BWOption func(*BW)

// WithTerminal attaches the operator's terminal to interactive calls.
func WithTerminal(stdin, stderr *os.File) BWOption {
	return func(b *BW) {
		b.stdin = stdin
		b.stderr = stderr
	}
}

// NewBW creates a client for the agent binary at path. A bare name is
// resolved through PATH at call time.
func NewBW(path string, runner CommandRunner, logger *slog.Logger, opts ...BWOption) *BW {
	if logger == nil {
		logger = slog.Default()
	}
	b := &BW{path: path, runner: runner, logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Path returns the configured agent path.
func (b *BW) Path() string {
	return b.path
}

// Installed reports whether the agent binary exists and is executable.
func (b *BW) Installed() bool {
	if !strings.ContainsRune(b.path, filepath.Separator) {
		_, err := exec.LookPath(b.path)
		return err == nil
	}
	info, err := os.Stat(b.path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}

// Version returns the installed agent's version string.
func (b *BW) Version(ctx context.Context) (string, error) {
	out, err := b.run(ctx, Command{Args: []string{"--version"}})
	if err != nil {
		return "", fmt.Errorf("agent version: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Status queries the agent's authentication state.
func (b *BW) Status(ctx context.Context) (Status, error) {
	out, err := b.run(ctx, Command{Args: []string{"status", "--nointeraction"}})
	if err != nil {
		return "", fmt.Errorf("agent status: %w", err)
	}
	if !gjson.ValidBytes(out) {
		return "", fmt.Errorf("agent status: invalid JSON output")
	}
	status := Status(gjson.GetBytes(out, "status").String())
	switch status {
	case StatusUnauthenticated, StatusLocked, StatusUnlocked:
		return status, nil
	default:
		return "", fmt.Errorf("agent status: unknown status %q", status)
	}
}

// Login authenticates email. The password reaches the child through its
// environment only.
func (b *BW) Login(ctx context.Context, email string, password *secret.Buffer) error {
	cmd := Command{
		Args: []string{"login", email, "--passwordenv", passwordEnv},
		Env:  []string{passwordEnv + "=" + password.String()},
	}
	if b.stdin != nil {
		cmd.Stdin = b.stdin
	}
	if b.stderr != nil {
		cmd.Stderr = b.stderr
	}
	if _, err := b.run(ctx, cmd); err != nil {
		return fmt.Errorf("agent login: %w", err)
	}
	return nil
}

// Unlock returns the raw session key printed by the agent.
func (b *BW) Unlock(ctx context.Context, password *secret.Buffer) ([]byte, error) {
	out, err := b.run(ctx, Command{
		Args: []string{"unlock", "--passwordenv", passwordEnv, "--raw", "--nointeraction"},
		Env:  []string{passwordEnv + "=" + password.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("agent unlock: %w", err)
	}
	return out, nil
}

// Export writes one vault export to req.Output.
func (b *BW) Export(ctx context.Context, sess Session, req ExportRequest) error {
	if !sess.Valid() {
		return ErrNoSession
	}
	args := []string{"export", "--format", string(req.Format), "--output", req.Output, "--nointeraction"}
	if req.OrganizationID != "" {
		args = append(args, "--organizationid", req.OrganizationID)
	}
	if req.Format == FormatEncryptedJSON {
		if req.Password == nil || req.Password.Closed() {
			return fmt.Errorf("agent export: encrypted export requires a password")
		}
		args = append(args, "--password", req.Password.String())
	}
	if _, err := b.run(ctx, Command{Args: args, Env: sessionEnvFor(sess)}); err != nil {
		return fmt.Errorf("agent export: %w", err)
	}
	return nil
}

// ListOrganizations lists the organizations the operator belongs to.
func (b *BW) ListOrganizations(ctx context.Context, sess Session) ([]Organization, error) {
	if !sess.Valid() {
		return nil, ErrNoSession
	}
	out, err := b.run(ctx, Command{
		Args: []string{"list", "organizations", "--nointeraction"},
		Env:  sessionEnvFor(sess),
	})
	if err != nil {
		return nil, fmt.Errorf("agent list organizations: %w", err)
	}
	return ParseOrganizations(out)
}

// ListItems lists vault items, or trashed items when trash is set.
func (b *BW) ListItems(ctx context.Context, sess Session, trash bool) ([]Item, error) {
	if !sess.Valid() {
		return nil, ErrNoSession
	}
	args := []string{"list", "items", "--nointeraction"}
	if trash {
		args = append(args, "--trash")
	}
	out, err := b.run(ctx, Command{Args: args, Env: sessionEnvFor(sess)})
	if err != nil {
		return nil, fmt.Errorf("agent list items: %w", err)
	}
	return ParseItems(out)
}

// GetAttachment downloads fileName of itemID to output.
func (b *BW) GetAttachment(ctx context.Context, sess Session, fileName, itemID, output string) error {
	if !sess.Valid() {
		return ErrNoSession
	}
	_, err := b.run(ctx, Command{
		Args: []string{"get", "attachment", fileName, "--itemid", itemID, "--output", output, "--nointeraction"},
		Env:  sessionEnvFor(sess),
	})
	if err != nil {
		return fmt.Errorf("agent get attachment: %w", err)
	}
	return nil
}

// Lock locks the vault.
func (b *BW) Lock(ctx context.Context, sess Session) error {
	var env []string
	if sess.Valid() {
		env = sessionEnvFor(sess)
	}
	if _, err := b.run(ctx, Command{Args: []string{"lock", "--nointeraction"}, Env: env}); err != nil {
		return fmt.Errorf("agent lock: %w", err)
	}
	return nil
}

// Logout ends the agent login.
func (b *BW) Logout(ctx context.Context) error {
	if _, err := b.run(ctx, Command{Args: []string{"logout", "--nointeraction"}}); err != nil {
		return fmt.Errorf("agent logout: %w", err)
	}
	return nil
}

func (b *BW) run(ctx context.Context, cmd Command) ([]byte, error) {
	cmd.Name = b.path
	return b.runner.Run(ctx, cmd)
}

func sessionEnvFor(sess Session) []string {
	return []string{sessionEnv + "=" + sess.key.String()}
}

// ParseOrganizations decodes the agent's organization list.
func ParseOrganizations(data []byte) ([]Organization, error) {
	data = bytes.TrimSpace(data)
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("parse organizations: invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, fmt.Errorf("parse organizations: expected a JSON array")
	}

	orgs := []Organization{}
	for _, org := range root.Array() {
		orgs = append(orgs, Organization{
			ID:   org.Get("id").String(),
			Name: org.Get("name").String(),
		})
	}
	return orgs, nil
}

// ParseItems decodes the agent's item list.
func ParseItems(data []byte) ([]Item, error) {
	data = bytes.TrimSpace(data)
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("parse items: invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, fmt.Errorf("parse items: expected a JSON array")
	}

	items := []Item{}
	for _, it := range root.Array() {
		item := Item{
			ID:   it.Get("id").String(),
			Name: it.Get("name").String(),
		}
		for _, att := range it.Get("attachments").Array() {
			item.Attachments = append(item.Attachments, Attachment{
				ID:       att.Get("id").String(),
				FileName: att.Get("fileName").String(),
				Size:     att.Get("size").Int(),
			})
		}
		items = append(items, item)
	}
	return items, nil
}
