// Package github resolves and downloads vault agent releases published on
// GitHub.
package github

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"
	"github.com/klauspost/compress/zip"

	"github.com/randalmurphal/vaultbak/internal/update"
	"github.com/randalmurphal/vaultbak/internal/util"
)

// Compile-time interface satisfaction checks.
var (
	_ update.ReleaseSource = (*Source)(nil)
	_ update.Installer     = (*Source)(nil)
)

// maxAssetSize bounds the release archive read into memory.
const maxAssetSize = 512 << 20

// Options selects the release stream and asset.
type Options struct {
	Owner string
	Repo  string
	// TagPrefix selects agent releases in a repository that publishes
	// several products, e.g. "cli-v".
	TagPrefix string
	// AssetPattern is a fmt pattern taking the version, e.g. "bw-linux-%s.zip".
	AssetPattern string
	// BinaryName is the archive entry extracted as the agent binary.
	BinaryName string
	// Dest is where the agent binary is installed.
	Dest string
}

// Source implements update.ReleaseSource and update.Installer.
type Source struct {
	gh       *gh.Client
	download *http.Client
	opts     Options
	logger   *slog.Logger
}

// NewSource creates a Source with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware)
//  3. go-github (REST client, unauthenticated)
func NewSource(opts Options, logger *slog.Logger) *Source {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	return newSource(gh.NewClient(rateLimitClient), http.DefaultClient, opts, logger)
}

// NewSourceWithHTTPClient creates a Source against baseURL using
// httpClient for both API calls and asset downloads. Intended for tests
// backed by an httptest server.
func NewSourceWithHTTPClient(httpClient *http.Client, baseURL string, opts Options, logger *slog.Logger) (*Source, error) {
	client := gh.NewClient(httpClient)
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u
	return newSource(client, httpClient, opts, logger), nil
}

func newSource(client *gh.Client, download *http.Client, opts Options, logger *slog.Logger) *Source {
	if opts.BinaryName == "" {
		opts.BinaryName = "bw"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{gh: client, download: download, opts: opts, logger: logger}
}

// LatestVersion returns the version of the newest published, non
// pre-release agent release, with the tag prefix removed.
func (s *Source) LatestVersion(ctx context.Context) (string, error) {
	opts := &gh.ListOptions{PerPage: 100}
	for {
		releases, resp, err := s.gh.Repositories.ListReleases(ctx, s.opts.Owner, s.opts.Repo, opts)
		if err != nil {
			return "", fmt.Errorf("listing releases for %s/%s: %w", s.opts.Owner, s.opts.Repo, err)
		}
		for _, r := range releases {
			if r.GetDraft() || r.GetPrerelease() {
				continue
			}
			tag := r.GetTagName()
			if !strings.HasPrefix(tag, s.opts.TagPrefix) {
				continue
			}
			return strings.TrimPrefix(tag, s.opts.TagPrefix), nil
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return "", fmt.Errorf("no release tagged %q* in %s/%s", s.opts.TagPrefix, s.opts.Owner, s.opts.Repo)
}

// AssetName returns the release asset name for version.
func (s *Source) AssetName(version string) string {
	return fmt.Sprintf(s.opts.AssetPattern, version)
}

// Install downloads the release asset for version and writes the agent
// binary it contains to Dest with mode 0755.
func (s *Source) Install(ctx context.Context, version string) error {
	tag := s.opts.TagPrefix + version
	release, _, err := s.gh.Repositories.GetReleaseByTag(ctx, s.opts.Owner, s.opts.Repo, tag)
	if err != nil {
		return fmt.Errorf("fetching release %s: %w", tag, err)
	}

	name := s.AssetName(version)
	var assetID int64
	for _, a := range release.Assets {
		if a.GetName() == name {
			assetID = a.GetID()
			break
		}
	}
	if assetID == 0 {
		return fmt.Errorf("release %s has no asset %s", tag, name)
	}

	rc, _, err := s.gh.Repositories.DownloadReleaseAsset(ctx, s.opts.Owner, s.opts.Repo, assetID, s.download)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", name, err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(io.LimitReader(rc, maxAssetSize+1))
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if len(data) > maxAssetSize {
		return fmt.Errorf("asset %s exceeds %d bytes", name, maxAssetSize)
	}

	binary, err := extractBinary(data, s.opts.BinaryName)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", name, err)
	}
	if _, err := util.AtomicWriteReader(s.opts.Dest, bytes.NewReader(binary), 0o755); err != nil {
		return fmt.Errorf("installing agent: %w", err)
	}
	s.logger.Debug("agent binary installed", "version", version, "path", s.opts.Dest, "bytes", len(binary))
	return nil
}

// extractBinary returns the contents of the zip entry whose base name is
// binaryName.
func extractBinary(data []byte, binaryName string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || path.Base(f.Name) != binaryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer func() { _ = rc.Close() }()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("archive has no %s entry", binaryName)
}
