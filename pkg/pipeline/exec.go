package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// CommandRunner runs one child process to completion.
type CommandRunner interface {
	Run(ctx context.Context, argv []string) error
}

// CommandError reports a child process that could not start or exited non-zero.
type CommandError struct {
	Argv     []string
	ExitCode int
	Stderr   string // tail of the child's stderr
	Err      error
}

func (e *CommandError) Error() string {
	name := ""
	if len(e.Argv) > 0 {
		name = e.Argv[0]
	}
	msg := fmt.Sprintf("command %s failed (exit %d)", name, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExecRunner executes commands with os/exec. The child is killed when ctx is done.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
	// TailBytes bounds how much stderr is kept for CommandError.
	TailBytes int
}

// NewExecRunner creates a runner forwarding child output to stdout/stderr.
// Nil writers discard output.
func NewExecRunner(stdout, stderr io.Writer) *ExecRunner {
	return &ExecRunner{Stdout: stdout, Stderr: stderr, TailBytes: 2048}
}

// Run starts argv and waits for it.
func (r *ExecRunner) Run(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return errors.New("empty command")
	}

	tail := &tailBuffer{max: r.TailBytes}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = orDiscard(r.Stdout)
	cmd.Stderr = io.MultiWriter(orDiscard(r.Stderr), tail)

	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return &CommandError{Argv: argv, ExitCode: code, Stderr: tail.String(), Err: err}
	}
	return nil
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.max <= 0 {
		return len(p), nil
	}
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
