// Package archive bundles a finished export directory into a single
// compressed file next to it and removes the directory once the archive
// is safely on disk.
package archive

import (
	"fmt"
	"strings"
)

// Format is an archive container and compression pairing.
type Format string

const (
	FormatZip    Format = "zip"
	FormatTarGz  Format = "tar.gz"
	FormatTarZst Format = "tar.zst"
	FormatTarLz4 Format = "tar.lz4"
)

// Formats lists the supported formats, default first.
var Formats = []Format{FormatZip, FormatTarGz, FormatTarZst, FormatTarLz4}

// ParseFormat resolves a configured format name. Matching is
// case-insensitive and "tgz" is accepted for tar.gz.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zip":
		return FormatZip, nil
	case "tar.gz", "tgz":
		return FormatTarGz, nil
	case "tar.zst", "tar.zstd":
		return FormatTarZst, nil
	case "tar.lz4":
		return FormatTarLz4, nil
	}
	return "", fmt.Errorf("unknown archive format %q (want one of zip, tar.gz, tar.zst, tar.lz4)", s)
}

// Ext returns the file extension including the leading dot.
func (f Format) Ext() string {
	return "." + string(f)
}

func (f Format) tar() bool {
	return strings.HasPrefix(string(f), "tar.")
}
