package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestExecRunner_CapturesStdout(t *testing.T) {
	r := NewExecRunner(nil)

	out, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", `printf '%s' "$VAULTBAK_TEST_VALUE"`},
		Env:  []string{"VAULTBAK_TEST_VALUE=from-child-env"},
	})
	require.NoError(t, err)
	assert.Equal(t, "from-child-env", string(out))
}

func TestExecRunner_ErrorCarriesStderrAndRedactedArgs(t *testing.T) {
	r := NewExecRunner(nil)

	_, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo 'Invalid master password.' >&2; exit 1", "--password", "hunter2"},
	})
	require.Error(t, err)

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "Invalid master password.", cmdErr.Error())
	assert.NotContains(t, strings.Join(cmdErr.Args, " "), "hunter2")
}

func TestExecRunner_ContextCancel(t *testing.T) {
	r := NewExecRunner(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, Command{Name: "sleep", Args: []string{"5"}})
	assert.Error(t, err)
}

func TestRedactArgs(t *testing.T) {
	args := []string{"export", "--format", "encrypted_json", "--password", "s3cret", "--session", "key"}
	got := RedactArgs(args)

	want := []string{"export", "--format", "encrypted_json", "--password", "<redacted>", "--session", "<redacted>"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RedactArgs mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "s3cret", args[4], "input must not be modified")
}

func TestRedactArgs_TrailingFlag(t *testing.T) {
	got := RedactArgs([]string{"export", "--password"})
	assert.Equal(t, []string{"export", "--password"}, got)
}
