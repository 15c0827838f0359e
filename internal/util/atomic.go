// Package util provides filesystem helpers shared by vaultbak components.
package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// AtomicFile is a file written under a temporary name in its final
// directory and renamed into place on Commit. Until Commit succeeds the
// destination is untouched; Abort (or a failed Commit) removes the
// temporary file.
type AtomicFile struct {
	*os.File
	path string
	perm os.FileMode
	done bool
}

// CreateAtomic opens a temporary file next to path. The parent directory
// is created with dirPerm if missing.
func CreateAtomic(path string, perm, dirPerm os.FileMode) (*AtomicFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	// Same directory, so the rename never crosses filesystems.
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &AtomicFile{File: tmp, path: path, perm: perm}, nil
}

// Path returns the final destination path.
func (f *AtomicFile) Path() string {
	return f.path
}

// Commit syncs the temporary file, applies the permissions and renames it
// over the destination, replacing any existing file.
func (f *AtomicFile) Commit() error {
	if f.done {
		return fmt.Errorf("atomic file %s already finished", f.path)
	}
	f.done = true
	tmpPath := f.File.Name()

	if err := f.File.Sync(); err != nil {
		_ = f.File.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.File.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, f.perm); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp to final: %w", err)
	}
	return nil
}

// Abort discards the temporary file. It is a no-op after Commit.
func (f *AtomicFile) Abort() {
	if f.done {
		return
	}
	f.done = true
	_ = f.File.Close()
	_ = os.Remove(f.File.Name())
}

// AtomicWriteFile writes data to path through an AtomicFile.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	f, err := CreateAtomic(path, perm, 0o700)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Abort()
		return fmt.Errorf("write temp file: %w", err)
	}
	return f.Commit()
}

// AtomicWriteReader streams r to path through an AtomicFile.
func AtomicWriteReader(path string, r io.Reader, perm os.FileMode) (int64, error) {
	f, err := CreateAtomic(path, perm, 0o755)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if err != nil {
		f.Abort()
		return n, fmt.Errorf("write temp file: %w", err)
	}
	return n, f.Commit()
}
