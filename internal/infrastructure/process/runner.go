// Package process runs the external assistant CLIs used as pass-through stages.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/doeshing/qw/internal/domain"
	"github.com/doeshing/qw/internal/ports"
)

// waitDelay bounds how long Wait lingers for pipes held open by orphaned children.
const waitDelay = 2 * time.Second

// Runner spawns one process per stage, writes the upstream reply to its stdin and
// captures stdout as the stage reply.
type Runner struct {
	commands map[domain.StageName][]string
	timeout  time.Duration
	logger   ports.Logger
}

// NewRunner builds a Runner. commands maps each stage to its argv; timeout bounds each run.
func NewRunner(commands map[domain.StageName][]string, timeout time.Duration, logger ports.Logger) *Runner {
	return &Runner{commands: commands, timeout: timeout, logger: logger}
}

// Run implements ports.StageRunner. Every failure is a *domain.StageError.
func (r *Runner) Run(ctx context.Context, stage domain.StageName, input string) (string, error) {
	argv := r.commands[stage]
	if len(argv) == 0 {
		return "", &domain.StageError{Stage: stage, Err: errors.New("no command configured")}
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return "", &domain.StageError{Stage: stage, Err: fmt.Errorf("executable %q not found: %w", argv[0], err)}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, path, argv[1:]...)
	cmd.Stdin = strings.NewReader(input)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.debug("stage started", map[string]interface{}{"stage": string(stage), "argv": strings.Join(argv, " ")})
	start := time.Now()
	err = cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", r.timeout)
		}
		return "", &domain.StageError{
			Stage:  stage,
			Err:    err,
			Stderr: strings.TrimSpace(stderr.String()),
		}
	}

	r.debug("stage finished", map[string]interface{}{"stage": string(stage), "elapsed": elapsed.String()})
	return strings.TrimSpace(stdout.String()), nil
}

func (r *Runner) debug(msg string, fields map[string]interface{}) {
	if r.logger != nil {
		r.logger.Debug(msg, fields)
	}
}

var _ ports.StageRunner = (*Runner)(nil)
