package pipeline

import (
	"context"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExecRunnerReportsExitCodeAndStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	var stderr strings.Builder
	r := NewExecRunner(nil, &stderr)

	err := r.Run(context.Background(), []string{"sh", "-c", "echo boom >&2; exit 3"})
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, 3, cmdErr.ExitCode)
	require.Equal(t, "boom\n", cmdErr.Stderr)
	require.Equal(t, "boom\n", stderr.String())
	require.Contains(t, err.Error(), "exit 3")
}

func TestExecRunnerSuccess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	var stdout strings.Builder
	r := NewExecRunner(&stdout, nil)
	require.NoError(t, r.Run(context.Background(), []string{"sh", "-c", "echo ok"}))
	require.Equal(t, "ok\n", stdout.String())
}

func TestExecRunnerEmptyCommand(t *testing.T) {
	require.Error(t, NewExecRunner(nil, nil).Run(context.Background(), nil))
}

func TestTailBufferKeepsEnd(t *testing.T) {
	tb := &tailBuffer{max: 4}
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defg"))
	require.Equal(t, "defg", tb.String())
}

func TestWhichFindsShell(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	p, err := Which("sh")
	require.NoError(t, err)
	require.NotEmpty(t, p)

	_, err = Which("  ")
	require.Error(t, err)
}
