package archive

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vberrors "github.com/randalmurphal/vaultbak/internal/errors"
)

// makeExport builds a small export tree and returns its root.
func makeExport(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "ops@example.com")
	files := map[string]string{
		"personal.json":                 `{"items":[]}`,
		"org_Acme_org-1.json":           `{"items":[1]}`,
		"attachments/Passport/scan.pdf": "pdf-bytes",
		"attachments/Taxes_2024/w2.pdf": "w2-bytes",
	}
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o700))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
	}
	return root
}

var wantFiles = map[string]string{
	"ops@example.com/personal.json":                 `{"items":[]}`,
	"ops@example.com/org_Acme_org-1.json":           `{"items":[1]}`,
	"ops@example.com/attachments/Passport/scan.pdf": "pdf-bytes",
	"ops@example.com/attachments/Taxes_2024/w2.pdf": "w2-bytes",
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()

	got := map[string]string{}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()
		got[f.Name] = string(data)
	}
	return got
}

func readTar(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	tr := tar.NewReader(r)
	got := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag == tar.TypeDir {
			continue
		}
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		got[hdr.Name] = string(data)
	}
	return got
}

func TestBundle_Formats(t *testing.T) {
	tests := []struct {
		format Format
		read   func(t *testing.T, path string) map[string]string
	}{
		{FormatZip, readZip},
		{FormatTarGz, func(t *testing.T, path string) map[string]string {
			f, err := os.Open(path)
			require.NoError(t, err)
			defer func() { _ = f.Close() }()
			gz, err := gzip.NewReader(f)
			require.NoError(t, err)
			return readTar(t, gz)
		}},
		{FormatTarZst, func(t *testing.T, path string) map[string]string {
			f, err := os.Open(path)
			require.NoError(t, err)
			defer func() { _ = f.Close() }()
			zr, err := zstd.NewReader(f)
			require.NoError(t, err)
			defer zr.Close()
			return readTar(t, zr)
		}},
		{FormatTarLz4, func(t *testing.T, path string) map[string]string {
			f, err := os.Open(path)
			require.NoError(t, err)
			defer func() { _ = f.Close() }()
			return readTar(t, lz4.NewReader(f))
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			root := makeExport(t)
			fin := NewFinalizer(tt.format, nil)

			res, err := fin.Bundle(root)
			require.NoError(t, err)

			assert.Equal(t, filepath.Join(filepath.Dir(root), "ops@example.com"+tt.format.Ext()), res.Path)
			assert.Positive(t, res.Size)
			assert.NoDirExists(t, root, "export directory is removed after bundling")

			if diff := cmp.Diff(wantFiles, tt.read(t, res.Path)); diff != "" {
				t.Errorf("archive contents mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBundle_ReplacesExistingArchive(t *testing.T) {
	root := makeExport(t)
	fin := NewFinalizer(FormatZip, nil)
	dest := fin.Destination(root)
	require.NoError(t, os.WriteFile(dest, []byte("stale"), 0o600))

	res, err := fin.Bundle(root)
	require.NoError(t, err)
	assert.Equal(t, dest, res.Path)
	assert.Equal(t, wantFiles, readZip(t, dest))
}

func TestBundle_MissingRootKeepsNothing(t *testing.T) {
	root := filepath.Join(t.TempDir(), "absent")
	_, err := NewFinalizer(FormatZip, nil).Bundle(root)
	assert.True(t, vberrors.HasCode(err, vberrors.CodeArchive))
}

func TestBundle_FailureLeavesDirectory(t *testing.T) {
	root := makeExport(t)
	fin := NewFinalizer(Format("rar"), nil)

	_, err := fin.Bundle(root)
	require.Error(t, err)
	assert.True(t, vberrors.HasCode(err, vberrors.CodeArchive))
	assert.DirExists(t, root, "export directory survives a failed bundle")
	assert.NoFileExists(t, fin.Destination(root))

	entries, err := os.ReadDir(filepath.Dir(root))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	assert.Equal(t, []string{"ops@example.com"}, names, "no temporary file is left behind")
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"":        FormatZip,
		"ZIP":     FormatZip,
		"tgz":     FormatTarGz,
		"tar.gz":  FormatTarGz,
		"tar.zst": FormatTarZst,
		"tar.lz4": FormatTarLz4,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("rar")
	assert.Error(t, err)
}

func TestDestination(t *testing.T) {
	fin := NewFinalizer(FormatTarGz, nil)
	assert.Equal(t, filepath.Join("/backups", "ops@example.com.tar.gz"), fin.Destination("/backups/ops@example.com/"))
	assert.Equal(t, "x.tar.gz", fin.Destination("x"))
}
