package agent

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Command describes one agent process invocation.
type Command struct {
	Name string
	Args []string
	// Env is appended to the parent environment for this child only.
	Env []string
	// Stdin and Stderr, when set, connect the child to the operator's
	// terminal (login may ask for a second factor).
	Stdin  io.Reader
	Stderr io.Writer
}

// CommandRunner executes agent commands.
// This interface allows replacing process execution in tests.
type CommandRunner interface {
	// Run executes a command and returns its raw stdout. Callers that
	// receive secrets on stdout zero the returned slice.
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// ExecRunner is the default CommandRunner using exec.CommandContext.
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner creates a new ExecRunner.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{logger: logger}
}

// Run executes the command and captures stdout.
func (r *ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Env = append(os.Environ(), c.Env...)
	if c.Stdin != nil {
		cmd.Stdin = c.Stdin
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if c.Stderr != nil {
		cmd.Stderr = io.MultiWriter(c.Stderr, &stderr)
	} else {
		cmd.Stderr = &stderr
	}

	redacted := RedactArgs(c.Args)
	r.logger.Debug("agent command", "command", c.Name, "args", redacted)

	if err := cmd.Run(); err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = err.Error()
		}
		return nil, &CommandError{
			Command: c.Name,
			Args:    redacted,
			Output:  errMsg,
			Err:     err,
		}
	}

	return stdout.Bytes(), nil
}

// secretFlags take a secret as their next argument.
var secretFlags = map[string]bool{
	"--password": true,
	"--session":  true,
}

// RedactArgs returns a copy of args with the values of secret-carrying
// flags replaced.
func RedactArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		if secretFlags[out[i]] {
			out[i+1] = "<redacted>"
			i++
		}
	}
	return out
}

// CommandError represents a failed agent invocation. Args are redacted.
type CommandError struct {
	Command string
	Args    []string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Output != "" {
		return e.Output
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "command failed"
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
