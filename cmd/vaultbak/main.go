// Package main provides the entry point for the vaultbak CLI.
package main

import (
	"os"

	"github.com/randalmurphal/vaultbak/internal/cli"
	"github.com/randalmurphal/vaultbak/internal/errors"
)

func main() {
	os.Exit(errors.ExitCode(cli.Execute()))
}
