// Package progress prints operator-facing progress for a backup run.
package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

var (
	stageStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Display shows progress to the operator.
type Display struct {
	out       io.Writer
	quiet     bool
	color     bool
	startTime time.Time
}

// New creates a display writing to out. Color is used when out is a
// terminal.
func New(out io.Writer, quiet bool) *Display {
	color := false
	if f, ok := out.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd())
	}
	return &Display{out: out, quiet: quiet, color: color, startTime: time.Now()}
}

// SetColor overrides terminal detection.
func (d *Display) SetColor(on bool) {
	d.color = on
}

func (d *Display) render(style lipgloss.Style, s string) string {
	if !d.color {
		return s
	}
	return style.Render(s)
}

func (d *Display) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(d.out, format, args...)
}

// Stage announces the start of a run stage.
func (d *Display) Stage(name string) {
	if d.quiet {
		return
	}
	d.printf("%s\n", d.render(stageStyle, "==> "+name))
}

// Info prints an informational message.
func (d *Display) Info(msg string) {
	if d.quiet {
		return
	}
	d.printf("    %s\n", msg)
}

// Warning prints a warning. Warnings are shown even in quiet mode since
// they describe something missing from the backup.
func (d *Display) Warning(msg string) {
	d.printf("%s\n", d.render(warningStyle, "WARNING: "+msg))
}

// Error prints an error line. Errors are always shown.
func (d *Display) Error(msg string) {
	d.printf("%s\n", d.render(errorStyle, msg))
}

// Exported reports one finished export.
func (d *Display) Exported(target, path string) {
	if d.quiet {
		return
	}
	d.printf("    exported %s %s\n", target, d.render(dimStyle, "-> "+path))
}

// Attachments reports the attachment pass.
func (d *Display) Attachments(fetched, failed int) {
	if d.quiet {
		return
	}
	d.printf("    %d %s retrieved", fetched, pluralize(fetched, "attachment", "attachments"))
	if failed > 0 {
		d.printf(", %s", d.render(warningStyle, fmt.Sprintf("%d failed", failed)))
	}
	d.printf("\n")
}

// Archived reports the written archive.
func (d *Display) Archived(path string, size int64) {
	if d.quiet {
		return
	}
	d.printf("    archive %s (%s)\n", path, humanize.Bytes(uint64(max(size, 0))))
}

// Complete announces the end of a successful run.
func (d *Display) Complete(location string) {
	if d.quiet {
		return
	}
	d.printf("\n%s\n", d.render(stageStyle, "Backup complete"))
	d.printf("   Location: %s\n", location)
	d.printf("   Total time: %s\n", formatDuration(time.Since(d.startTime)))
}

// pluralize returns singular or plural form based on count.
func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
