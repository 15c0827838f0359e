// Package export decides the export encryption mode, enumerates the
// personal and organization vaults and exports each one in order.
package export

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/randalmurphal/vaultbak/internal/agent"
	"github.com/randalmurphal/vaultbak/internal/secret"
)

// Kind distinguishes the personal vault from organization vaults.
type Kind int

const (
	KindPersonal Kind = iota
	KindOrganization
)

// Target is one vault to export.
type Target struct {
	Kind Kind
	ID   string
	Name string
}

// Personal returns the implicit personal vault target.
func Personal() Target {
	return Target{Kind: KindPersonal}
}

// String identifies the target in messages and errors.
func (t Target) String() string {
	if t.Kind == KindPersonal {
		return "personal vault"
	}
	return fmt.Sprintf("organization %s (%s)", t.Name, t.ID)
}

// Mode is the export encryption mode shared by every job of a run.
type Mode struct {
	password *secret.Buffer
}

// Plain returns the unencrypted mode.
func Plain() Mode {
	return Mode{}
}

// Encrypted returns the password-encrypted mode.
func Encrypted(password *secret.Buffer) Mode {
	return Mode{password: password}
}

// Encrypted reports whether exports are password-encrypted.
func (m Mode) Encrypted() bool {
	return m.password != nil
}

// Format returns the agent export format for the mode.
func (m Mode) Format() agent.ExportFormat {
	if m.Encrypted() {
		return agent.FormatEncryptedJSON
	}
	return agent.FormatJSON
}

func (m Mode) String() string {
	if m.Encrypted() {
		return "encrypted"
	}
	return "plain"
}

// Job is one export call.
type Job struct {
	Target Target
	Mode   Mode
	Output string
}

// Request builds the agent request for the job.
func (j Job) Request() agent.ExportRequest {
	req := agent.ExportRequest{
		Format:         j.Mode.Format(),
		Output:         j.Output,
		OrganizationID: j.Target.ID,
	}
	if j.Mode.Encrypted() {
		req.Password = j.Mode.password
	}
	return req
}

// Plan returns one job per target, in target order, all sharing mode.
func Plan(root string, mode Mode, targets []Target) []Job {
	jobs := make([]Job, 0, len(targets))
	for _, t := range targets {
		jobs = append(jobs, Job{
			Target: t,
			Mode:   mode,
			Output: filepath.Join(root, FileName(t, mode)),
		})
	}
	return jobs
}

// FileName returns the export file name for a target.
func FileName(t Target, mode Mode) string {
	ext := ".json"
	if mode.Encrypted() {
		ext = ".encrypted.json"
	}
	if t.Kind == KindPersonal {
		return "personal" + ext
	}
	return fmt.Sprintf("org_%s_%s%s", SanitizeName(t.Name), SanitizeName(t.ID), ext)
}

// SanitizeName makes a vault-provided name safe to use as a single path
// element.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}
