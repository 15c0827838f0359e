package update

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/randalmurphal/vaultbak/internal/util"
)

// StampFile persists the time of the last remote version check as
// RFC 3339 text.
type StampFile struct {
	path string
}

// NewStampFile returns a StampFile at path.
func NewStampFile(path string) *StampFile {
	return &StampFile{path: path}
}

// Path returns the file location.
func (s *StampFile) Path() string {
	return s.path
}

// Read returns the recorded time. A missing or unparsable file yields the
// zero time, which always triggers a check.
func (s *StampFile) Read() (time.Time, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read update stamp: %w", err)
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

// Write records t.
func (s *StampFile) Write(t time.Time) error {
	if err := util.AtomicWriteFile(s.path, []byte(t.UTC().Format(time.RFC3339)+"\n"), 0o600); err != nil {
		return fmt.Errorf("write update stamp: %w", err)
	}
	return nil
}
