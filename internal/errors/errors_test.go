package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestVaultErrorFormat(t *testing.T) {
	tests := []struct {
		name     string
		err      *VaultError
		wantErr  string
		wantUser string
	}{
		{
			name:     "what only",
			err:      &VaultError{What: "something broke"},
			wantErr:  "something broke",
			wantUser: "ERROR: something broke",
		},
		{
			name:     "what and why",
			err:      &VaultError{What: "something broke", Why: "bad input"},
			wantErr:  "something broke: bad input",
			wantUser: "ERROR: something broke: bad input",
		},
		{
			name: "with fix",
			err: &VaultError{
				What: "something broke",
				Fix:  "try again",
			},
			wantErr:  "something broke",
			wantUser: "ERROR: something broke\n\nFix: try again",
		},
		{
			name: "with cause",
			err: &VaultError{
				What:  "something broke",
				Cause: errors.New("underlying error"),
			},
			wantErr:  "something broke: underlying error",
			wantUser: "ERROR: something broke: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantErr {
				t.Errorf("Error() = %q, want %q", got, tt.wantErr)
			}
			if got := tt.err.UserMessage(); got != tt.wantUser {
				t.Errorf("UserMessage() = %q, want %q", got, tt.wantUser)
			}
		})
	}
}

func TestVaultErrorIs(t *testing.T) {
	err := ErrExport("personal vault", errors.New("disk full"))
	wrapped := fmt.Errorf("run: %w", err)

	if !errors.Is(wrapped, &VaultError{Code: CodeExport}) {
		t.Error("errors.Is should match on code through wrapping")
	}
	if errors.Is(wrapped, &VaultError{Code: CodeAuth}) {
		t.Error("errors.Is should not match a different code")
	}
}

func TestAsVaultError(t *testing.T) {
	if AsVaultError(errors.New("plain")) != nil {
		t.Error("plain error should not convert")
	}
	if AsVaultError(nil) != nil {
		t.Error("nil should not convert")
	}

	wrapped := fmt.Errorf("outer: %w", ErrUnlock(nil))
	vErr := AsVaultError(wrapped)
	if vErr == nil {
		t.Fatal("wrapped VaultError should convert")
	}
	if vErr.Code != CodeUnlock {
		t.Errorf("Code = %s, want %s", vErr.Code, CodeUnlock)
	}
	if !HasCode(wrapped, CodeUnlock) {
		t.Error("HasCode should report the unlock code")
	}
}

func TestExportErrorCarriesTarget(t *testing.T) {
	err := ErrExport("organization Acme (org-1)", errors.New("exit status 1"))
	if err.Target != "organization Acme (org-1)" {
		t.Errorf("Target = %q", err.Target)
	}
	if err.Severity() != SeverityFatal {
		t.Error("export errors must be fatal")
	}
}

func TestAttachmentErrorIsRecorded(t *testing.T) {
	err := ErrAttachment("Passport", "scan.pdf", errors.New("not found"))
	if err.Severity() != SeverityRecorded {
		t.Error("attachment errors must be recorded, not fatal")
	}
	if err.Target != "Passport/scan.pdf" {
		t.Errorf("Target = %q", err.Target)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"validation", ErrInvalidEmail("x"), 1},
		{"user abort", ErrUserAbort("backup declined"), 1},
		{"auth", ErrAuth(nil), 1},
		{"plain", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
