package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	vberrors "github.com/randalmurphal/vaultbak/internal/errors"
	"github.com/randalmurphal/vaultbak/internal/util"
)

// Result describes a written archive.
type Result struct {
	Path string
	Size int64
}

// Finalizer writes archives in one format.
type Finalizer struct {
	format Format
	logger *slog.Logger
}

// NewFinalizer creates a Finalizer for format.
func NewFinalizer(format Format, logger *slog.Logger) *Finalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finalizer{format: format, logger: logger}
}

// Destination returns the archive path for an export root:
// <parent>/<base><ext>.
func (f *Finalizer) Destination(root string) string {
	root = filepath.Clean(root)
	return filepath.Join(filepath.Dir(root), filepath.Base(root)+f.format.Ext())
}

// Bundle archives root and then deletes it. An existing archive at the
// destination is replaced. The directory is removed only after the
// archive has been committed and verified; on any failure it is left in
// place.
func (f *Finalizer) Bundle(root string) (Result, error) {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return Result{}, vberrors.ErrArchive(err)
	}
	if !info.IsDir() {
		return Result{}, vberrors.ErrArchive(fmt.Errorf("%s is not a directory", root))
	}

	dest := f.Destination(root)
	out, err := util.CreateAtomic(dest, 0o600, 0o700)
	if err != nil {
		return Result{}, vberrors.ErrArchive(err)
	}
	if err := f.write(out, root); err != nil {
		out.Abort()
		return Result{}, vberrors.ErrArchive(err)
	}
	if err := out.Commit(); err != nil {
		return Result{}, vberrors.ErrArchive(err)
	}

	written, err := os.Stat(dest)
	if err != nil {
		return Result{}, vberrors.ErrArchive(fmt.Errorf("verify archive: %w", err))
	}
	if err := os.RemoveAll(root); err != nil {
		return Result{}, vberrors.ErrArchive(fmt.Errorf("remove export directory: %w", err))
	}
	f.logger.Debug("archive written", "path", dest, "format", f.format, "bytes", written.Size())
	return Result{Path: dest, Size: written.Size()}, nil
}

func (f *Finalizer) write(w io.Writer, root string) error {
	if f.format == FormatZip {
		return writeZip(w, root)
	}
	if !f.format.tar() {
		return fmt.Errorf("unknown archive format %q", f.format)
	}
	cw, err := f.compressor(w)
	if err != nil {
		return err
	}
	if err := writeTar(cw, root); err != nil {
		_ = cw.Close()
		return err
	}
	return cw.Close()
}

func (f *Finalizer) compressor(w io.Writer) (io.WriteCloser, error) {
	switch f.format {
	case FormatTarGz:
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	case FormatTarZst:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case FormatTarLz4:
		return lz4.NewWriter(w), nil
	}
	return nil, fmt.Errorf("unknown archive format %q", f.format)
}

// walk visits every entry under root with its archive name, which is
// prefixed by the base name of root and always uses forward slashes.
func walk(root string, fn func(name, full string, d fs.DirEntry) error) error {
	prefix := filepath.Base(root)
	return filepath.WalkDir(root, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, full)
		if err != nil {
			return err
		}
		name := path.Join(prefix, filepath.ToSlash(rel))
		return fn(name, full, d)
	})
}

func writeZip(w io.Writer, root string) error {
	zw := zip.NewWriter(w)
	err := walk(root, func(name, full string, d fs.DirEntry) error {
		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = name
		if d.IsDir() {
			header.Name += "/"
			_, err = zw.CreateHeader(header)
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		header.Method = zip.Deflate
		entry, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		return copyFile(entry, full)
	})
	if err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

func writeTar(w io.Writer, root string) error {
	tw := tar.NewWriter(w)
	err := walk(root, func(name, full string, d fs.DirEntry) error {
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !d.IsDir() && !info.Mode().IsRegular() {
			return nil
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = name
		if d.IsDir() {
			header.Name += "/"
		}
		header.ModTime = info.ModTime().Truncate(time.Second)
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		return copyFile(tw, full)
	})
	if err != nil {
		_ = tw.Close()
		return err
	}
	return tw.Close()
}

func copyFile(w io.Writer, full string) error {
	src, err := os.Open(full)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()
	_, err = io.Copy(w, src)
	return err
}
