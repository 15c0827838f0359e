// Package lock keeps two backups of the same operator from running at
// once. Concurrent runs would share the agent's single login and write
// into the same export directory.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	vberrors "github.com/randalmurphal/vaultbak/internal/errors"
)

// PIDFileName is the name of the PID file in the state directory.
const PIDFileName = "vaultbak.pid"

// afterCheck runs between Acquire's check and its exclusive create.
var afterCheck = func() {}

// PIDGuard is a PID file in the state directory naming the process that
// currently runs a backup.
type PIDGuard struct {
	dir string
}

// NewPIDGuard creates a guard in dir.
func NewPIDGuard(dir string) *PIDGuard {
	return &PIDGuard{dir: dir}
}

// Path returns the PID file path.
func (g *PIDGuard) Path() string {
	return filepath.Join(g.dir, PIDFileName)
}

// Check returns an already-running error when a live process holds the
// guard. A stale or unreadable PID file is removed.
func (g *PIDGuard) Check() error {
	pid, err := g.readPID()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if pid <= 0 {
		_ = os.Remove(g.Path())
		return nil
	}
	if pid != os.Getpid() && processExists(pid) {
		return vberrors.ErrAlreadyRunning(pid)
	}
	_ = os.Remove(g.Path())
	return nil
}

// Acquire checks the guard and then claims it for this process. The file
// is created exclusively so two processes racing past Check cannot both
// win.
func (g *PIDGuard) Acquire() error {
	if err := g.Check(); err != nil {
		return err
	}
	if err := os.MkdirAll(g.dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	afterCheck()

	f, err := os.OpenFile(g.Path(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, os.ErrExist) {
		// Lost the race. The winner may not have written its PID yet, so
		// the file is held whatever it contains.
		pid, _ := g.readPID()
		return vberrors.ErrAlreadyRunning(pid)
	}
	if err != nil {
		return fmt.Errorf("create pid file: %w", err)
	}
	_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(g.Path())
		return fmt.Errorf("write pid file: %w", werr)
	}
	return nil
}

// readPID returns the PID in the guard file, or 0 when the file holds
// no valid PID.
func (g *PIDGuard) readPID() (int, error) {
	data, err := os.ReadFile(g.Path())
	if errors.Is(err, os.ErrNotExist) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, nil
	}
	return pid, nil
}

// Release removes the PID file if this process owns it.
func (g *PIDGuard) Release() {
	data, err := os.ReadFile(g.Path())
	if err != nil {
		return
	}
	if strings.TrimSpace(string(data)) == strconv.Itoa(os.Getpid()) {
		_ = os.Remove(g.Path())
	}
}

// processExists reports whether pid names a live process. EPERM means it
// exists under another user.
func processExists(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
