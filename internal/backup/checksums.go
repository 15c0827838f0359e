package backup

import (
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/vaultbak/internal/util"
)

// ChecksumFile is the manifest written into the export root.
const ChecksumFile = "checksums.yaml"

// Manifest lists a BLAKE3 digest per exported file, keyed by path
// relative to the export root with forward slashes.
type Manifest struct {
	Algorithm string            `yaml:"algorithm"`
	Files     map[string]string `yaml:"files"`
}

// BuildManifest hashes every regular file under root except an existing
// manifest.
func BuildManifest(root string) (*Manifest, error) {
	m := &Manifest{Algorithm: "blake3", Files: map[string]string{}}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == ChecksumFile {
			return nil
		}
		sum, err := hashFile(path)
		if err != nil {
			return fmt.Errorf("hash %s: %w", rel, err)
		}
		m.Files[rel] = sum
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// WriteManifest builds the manifest for root and writes it as
// checksums.yaml. Returns the number of files listed.
func WriteManifest(root string) (int, error) {
	m, err := BuildManifest(root)
	if err != nil {
		return 0, err
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return 0, fmt.Errorf("marshal checksums: %w", err)
	}
	if err := util.AtomicWriteFile(filepath.Join(root, ChecksumFile), data, 0o600); err != nil {
		return 0, fmt.Errorf("write checksums: %w", err)
	}
	return len(m.Files), nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
