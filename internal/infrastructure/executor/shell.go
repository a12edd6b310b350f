package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/doeshing/qw/internal/domain"
	"github.com/doeshing/qw/internal/ports"
)

// LocalExecutor runs commands through the host shell.
type LocalExecutor struct {
	shell  string
	stdout io.Writer
	stderr io.Writer
}

// NewLocalExecutor builds a new executor, shell defaults to $SHELL then /bin/sh.
// When stdout/stderr are non-nil the command's streams are also copied there live.
func NewLocalExecutor(shell string, stdout, stderr io.Writer) *LocalExecutor {
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}
	return &LocalExecutor{shell: shell, stdout: stdout, stderr: stderr}
}

// Shell returns the shell binary used for execution.
func (e *LocalExecutor) Shell() string {
	return e.shell
}

// Execute implements ports.CommandExecutor. A non-zero exit is reported in the
// result, not as an error; err is only set when the shell could not be run.
func (e *LocalExecutor) Execute(ctx context.Context, command string) (domain.ExecutionResult, error) {
	c := exec.CommandContext(ctx, e.shell, "-c", command)
	var stdout, stderr bytes.Buffer
	c.Stdout = tee(&stdout, e.stdout)
	c.Stderr = tee(&stderr, e.stderr)

	start := time.Now()
	err := c.Run()
	result := domain.ExecutionResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMS: time.Since(start).Milliseconds(),
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	if err != nil {
		result.ExitCode = -1
		return result, err
	}
	return result, nil
}

func tee(buf *bytes.Buffer, extra io.Writer) io.Writer {
	if extra == nil {
		return buf
	}
	return io.MultiWriter(buf, extra)
}

var _ ports.CommandExecutor = (*LocalExecutor)(nil)
