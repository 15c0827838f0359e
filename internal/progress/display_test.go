package progress

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDisplay_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf, false)

	d.Stage("Exporting vaults")
	d.Exported("personal vault", "/b/ops@example.com/personal.json")
	d.Info("no organizations")
	d.Attachments(1, 0)

	assert.Equal(t, "==> Exporting vaults\n"+
		"    exported personal vault -> /b/ops@example.com/personal.json\n"+
		"    no organizations\n"+
		"    1 attachment retrieved\n", buf.String())
}

func TestDisplay_AttachmentFailures(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).Attachments(4, 2)
	assert.Equal(t, "    4 attachments retrieved, 2 failed\n", buf.String())
}

func TestDisplay_Archived(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).Archived("/b/ops@example.com.zip", 2_500_000)
	assert.Equal(t, "    archive /b/ops@example.com.zip (2.5 MB)\n", buf.String())
}

func TestDisplay_QuietKeepsWarningsAndErrors(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf, true)

	d.Stage("Exporting vaults")
	d.Info("hidden")
	d.Exported("personal vault", "x")
	d.Attachments(3, 0)
	d.Archived("x.zip", 1)
	d.Complete("x.zip")
	assert.Empty(t, buf.String())

	d.Warning("3 items in the trash")
	d.Error("ERROR: login failed")
	assert.Equal(t, "WARNING: 3 items in the trash\nERROR: login failed\n", buf.String())
}

func TestDisplay_ColorWrapsText(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf, false)
	d.SetColor(true)

	d.Warning("careful")
	assert.Contains(t, buf.String(), "WARNING: careful")
}

func TestDisplay_Complete(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).Complete("/b/ops@example.com")
	assert.Contains(t, buf.String(), "Backup complete")
	assert.Contains(t, buf.String(), "Location: /b/ops@example.com")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{1500 * time.Millisecond, "2s"},
		{90 * time.Second, "1m30s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h2m3s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}
