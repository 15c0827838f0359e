package github

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const releasesJSON = `[
	{"id": 4, "tag_name": "web-v2024.10.0", "draft": false, "prerelease": false},
	{"id": 3, "tag_name": "cli-v2024.10.0", "draft": true, "prerelease": false},
	{"id": 2, "tag_name": "cli-v2024.9.1", "draft": false, "prerelease": true},
	{"id": 1, "tag_name": "cli-v2024.9.0", "draft": false, "prerelease": false}
]`

func zipWith(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write(content)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestSource(t *testing.T, handler http.Handler) (*Source, string) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	dest := filepath.Join(t.TempDir(), "bin", "bw")
	src, err := NewSourceWithHTTPClient(server.Client(), server.URL+"/", Options{
		Owner:        "bitwarden",
		Repo:         "clients",
		TagPrefix:    "cli-v",
		AssetPattern: "bw-linux-%s.zip",
		Dest:         dest,
	}, nil)
	require.NoError(t, err)
	return src, dest
}

func releaseMux(t *testing.T, asset []byte) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/bitwarden/clients/releases", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(releasesJSON))
	})
	mux.HandleFunc("/repos/bitwarden/clients/releases/tags/cli-v2024.9.0", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 1, "tag_name": "cli-v2024.9.0", "assets": [
			{"id": 70, "name": "bw-macos-2024.9.0.zip"},
			{"id": 71, "name": "bw-linux-2024.9.0.zip"}
		]}`))
	})
	mux.HandleFunc("/repos/bitwarden/clients/releases/assets/71", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/octet-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(asset)
	})
	return mux
}

func TestLatestVersion_SkipsDraftsPrereleasesAndOtherProducts(t *testing.T) {
	src, _ := newTestSource(t, releaseMux(t, nil))

	version, err := src.LatestVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024.9.0", version)
}

func TestLatestVersion_NoMatchingRelease(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/bitwarden/clients/releases", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": 4, "tag_name": "web-v2024.10.0"}]`))
	})
	src, _ := newTestSource(t, mux)

	_, err := src.LatestVersion(context.Background())
	assert.ErrorContains(t, err, "no release tagged")
}

func TestInstall_ExtractsBinary(t *testing.T) {
	binary := []byte("#!/bin/sh\necho 2024.9.0\n")
	src, dest := newTestSource(t, releaseMux(t, zipWith(t, "bw", binary)))

	require.NoError(t, src.Install(context.Background(), "2024.9.0"))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, binary, got)

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestInstall_MissingEntry(t *testing.T) {
	src, dest := newTestSource(t, releaseMux(t, zipWith(t, "README.md", []byte("docs"))))

	err := src.Install(context.Background(), "2024.9.0")
	assert.ErrorContains(t, err, "no bw entry")
	assert.NoFileExists(t, dest)
}

func TestInstall_MissingAsset(t *testing.T) {
	src, _ := newTestSource(t, releaseMux(t, nil))
	src.opts.AssetPattern = "bw-freebsd-%s.zip"

	err := src.Install(context.Background(), "2024.9.0")
	assert.ErrorContains(t, err, "has no asset bw-freebsd-2024.9.0.zip")
}

func TestInstall_UnknownTag(t *testing.T) {
	src, _ := newTestSource(t, releaseMux(t, nil))

	err := src.Install(context.Background(), "1999.1.0")
	assert.ErrorContains(t, err, "fetching release cli-v1999.1.0")
}
