// Package errors provides structured error types for vaultbak.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for vaultbak.
const (
	// Operator input errors
	CodeValidation Code = "VALIDATION"
	CodeUserAbort  Code = "USER_ABORT"

	// Agent session errors
	CodeAuth   Code = "AUTH"
	CodeUnlock Code = "UNLOCK"
	CodeAgent  Code = "AGENT"

	// Agent binary errors
	CodeInstall Code = "INSTALL"

	// Backup content errors
	CodeExport     Code = "EXPORT"
	CodeAttachment Code = "ATTACHMENT"
	CodeArchive    Code = "ARCHIVE"

	// Local environment errors
	CodeConfigInvalid  Code = "CONFIG_INVALID"
	CodeAlreadyRunning Code = "ALREADY_RUNNING"
)

// Severity says how the run treats an error of a given code.
type Severity int

const (
	// SeverityFatal aborts the run and routes through teardown.
	SeverityFatal Severity = iota
	// SeverityRecorded is reported and the run continues.
	SeverityRecorded
)

var codeSeverities = map[Code]Severity{
	CodeAttachment: SeverityRecorded,
}

// VaultError is the structured error type for vaultbak.
type VaultError struct {
	Code Code   `json:"code"`
	What string `json:"what"`
	Why  string `json:"why,omitempty"`
	Fix  string `json:"fix,omitempty"`
	// Target names the vault target, item or file the error concerns.
	Target string `json:"target,omitempty"`
	Cause  error  `json:"-"`
}

// Error implements the error interface.
func (e *VaultError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *VaultError) Unwrap() error {
	return e.Cause
}

// Label returns the one-line operator-facing form: "ERROR: <what>: <cause>".
func (e *VaultError) Label() string {
	return "ERROR: " + e.Error()
}

// UserMessage returns a user-friendly message for CLI output.
func (e *VaultError) UserMessage() string {
	var b strings.Builder
	b.WriteString(e.Label())
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Severity returns how the run treats this error.
func (e *VaultError) Severity() Severity {
	if sev, ok := codeSeverities[e.Code]; ok {
		return sev
	}
	return SeverityFatal
}

// Is reports whether target is a VaultError with the same code.
func (e *VaultError) Is(target error) bool {
	t, ok := target.(*VaultError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// --- Error constructors ---

// ErrInvalidEmail returns an error for an email that fails validation.
func ErrInvalidEmail(email string) *VaultError {
	return &VaultError{
		Code: CodeValidation,
		What: "invalid email address",
		Why:  fmt.Sprintf("%q is not of the form local@domain.tld", email),
		Fix:  "Enter the email address you use to log in to the vault",
	}
}

// ErrEmptySecret returns an error when a secret prompt got no input.
func ErrEmptySecret(label string) *VaultError {
	return &VaultError{
		Code: CodeValidation,
		What: fmt.Sprintf("%s must not be empty", strings.ToLower(label)),
	}
}

// ErrPasswordMismatch returns an error when the two encryption password
// entries differ.
func ErrPasswordMismatch() *VaultError {
	return &VaultError{
		Code: CodeValidation,
		What: "encryption passwords do not match",
		Fix:  "Run the backup again and enter the same encryption password twice",
	}
}

// ErrUserAbort returns an error for an operator decline at a confirmation
// point that leaves the backup incomplete.
func ErrUserAbort(what string) *VaultError {
	return &VaultError{
		Code: CodeUserAbort,
		What: what,
	}
}

// ErrAuth returns an error when the agent is still unauthenticated after login.
func ErrAuth(cause error) *VaultError {
	return &VaultError{
		Code:  CodeAuth,
		What:  "login failed",
		Why:   "the agent still reports an unauthenticated session",
		Fix:   "Check the email and master password, then try again",
		Cause: cause,
	}
}

// ErrUnlock returns an error when unlocking produced no session key.
func ErrUnlock(cause error) *VaultError {
	return &VaultError{
		Code:  CodeUnlock,
		What:  "unlock failed",
		Why:   "the agent returned no session key",
		Fix:   "Check the master password, then try again",
		Cause: cause,
	}
}

// ErrAgent returns an error for a failed agent operation outside export
// and attachment retrieval.
func ErrAgent(op string, cause error) *VaultError {
	return &VaultError{
		Code:  CodeAgent,
		What:  fmt.Sprintf("agent %s failed", op),
		Cause: cause,
	}
}

// ErrInstall returns an error when the agent binary cannot be installed.
func ErrInstall(cause error) *VaultError {
	return &VaultError{
		Code:  CodeInstall,
		What:  "vault agent is not available",
		Why:   "installing or updating the agent binary failed",
		Fix:   "Check network access to the release host, or install the agent manually and set agent_path",
		Cause: cause,
	}
}

// ErrExport returns an error for a failed export of one vault target.
func ErrExport(target string, cause error) *VaultError {
	return &VaultError{
		Code:   CodeExport,
		What:   fmt.Sprintf("export of %s failed", target),
		Why:    "a partial backup is treated as a failed backup",
		Target: target,
		Cause:  cause,
	}
}

// ErrAttachment returns an error for one attachment that could not be retrieved.
func ErrAttachment(item, file string, cause error) *VaultError {
	return &VaultError{
		Code:   CodeAttachment,
		What:   fmt.Sprintf("attachment %q of item %q could not be retrieved", file, item),
		Target: item + "/" + file,
		Cause:  cause,
	}
}

// ErrArchive returns an error when bundling the export directory failed.
func ErrArchive(cause error) *VaultError {
	return &VaultError{
		Code:  CodeArchive,
		What:  "compressing the backup failed",
		Why:   "the export directory was left in place",
		Cause: cause,
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *VaultError {
	return &VaultError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "Check ~/.config/vaultbak/config.yaml and VAULTBAK_* environment variables",
	}
}

// ErrAlreadyRunning returns an error when another backup holds the run guard.
func ErrAlreadyRunning(pid int) *VaultError {
	why := "another process is claiming the run guard"
	if pid > 0 {
		why = fmt.Sprintf("process %d holds the run guard", pid)
	}
	return &VaultError{
		Code: CodeAlreadyRunning,
		What: "another backup is already running",
		Why:  why,
		Fix:  "Wait for it to finish, or remove the stale PID file from the state directory",
	}
}

// AsVaultError attempts to convert an error to a VaultError.
// Returns nil if the error is not a VaultError.
func AsVaultError(err error) *VaultError {
	var vErr *VaultError
	if stderrors.As(err, &vErr) {
		return vErr
	}
	return nil
}

// HasCode reports whether err is a VaultError with the given code.
func HasCode(err error, code Code) bool {
	vErr := AsVaultError(err)
	return vErr != nil && vErr.Code == code
}

// ExitCode maps a run error to the process exit status: 0 for success,
// 1 for every failure, operator aborts included.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// Wrap wraps a generic error into a VaultError with unknown code.
func Wrap(err error, what string) *VaultError {
	return &VaultError{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}
