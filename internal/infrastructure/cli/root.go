package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/doeshing/qw/internal/app"
	"github.com/doeshing/qw/internal/application/pipeline"
	"github.com/doeshing/qw/internal/domain"
	"github.com/doeshing/qw/internal/infrastructure/config"
	"github.com/doeshing/qw/internal/version"
)

// Options holds CLI-level configuration.
type Options struct {
	Verbose bool

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	StdinIsTerminal  bool
	StderrIsTerminal bool

	// BuildContainer defaults to app.BuildContainer; tests swap in stubs.
	BuildContainer func(domain.RequestConfig, domain.FileConfig, app.Streams) (*app.Container, error)
}

// DefaultOptions binds the process streams.
func DefaultOptions() Options {
	return Options{
		Verbose:          isVerboseEnv(),
		Stdin:            os.Stdin,
		Stdout:           os.Stdout,
		Stderr:           os.Stderr,
		StdinIsTerminal:  isTerminal(os.Stdin),
		StderrIsTerminal: isTerminal(os.Stderr),
		BuildContainer:   app.BuildContainer,
	}
}

// NewRootCmd wires the cobra root command.
func NewRootCmd(opts Options) *cobra.Command {
	if opts.BuildContainer == nil {
		opts.BuildContainer = app.BuildContainer
	}
	var values flagValues

	root := &cobra.Command{
		Use:   "qw [prompt...]",
		Short: "qw - ask a local Ollama model from the shell",
		Long: "qw sends a prompt to the local Ollama server, prints the reply, and can pipe it into\n" +
			"codex and claude. With --execute the best reply is run through the system shell.",
		Args:          cobra.ArbitraryArgs,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, values, args)
		},
	}
	root.SetIn(opts.Stdin)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	root.SetVersionTemplate("qw {{.Version}}\n")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &domain.UsageError{Msg: err.Error()}
	})

	bindFlags(root.Flags(), &values)
	return root
}

// Execute runs the root command and returns the process exit status.
func Execute(ctx context.Context, opts Options, args []string) int {
	root := NewRootCmd(opts)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return domain.ExitOK
	}
	var failure *domain.ExecutionFailure
	if !errors.As(err, &failure) {
		fmt.Fprintf(opts.Stderr, "qw: %v\n", err)
	}
	return domain.ExitCodeFor(err)
}

func run(cmd *cobra.Command, opts Options, values flagValues, args []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	fileCfg, err := config.NewFileLoader(values.config).Load(ctx)
	if err != nil {
		return err
	}
	req, err := resolveRequest(flags, values, args, opts.Stdin, opts.StdinIsTerminal, fileCfg)
	if err != nil {
		return err
	}
	req.Verbose = req.Verbose || opts.Verbose

	// Notices written while the spinner runs (e.g. auto-pull) go through its writer.
	var spinner *Spinner
	if opts.StderrIsTerminal && req.Output == domain.OutputPlain && !req.Verbose {
		spinner = NewSpinner(opts.Stderr, "asking "+req.Model)
	}
	streams := app.Streams{Out: opts.Stdout, Err: spinner.Writer(opts.Stderr)}

	container, err := opts.BuildContainer(req, fileCfg, streams)
	if err != nil {
		return err
	}
	svc := container.Pipeline

	spinner.Start(ctx)
	result, err := svc.Run(ctx, req)
	spinner.Stop()
	if err != nil {
		return err
	}

	for _, stageErr := range result.StageErrors {
		fmt.Fprintf(opts.Stderr, "qw: %v\n", stageErr)
	}
	if err := Render(opts.Stdout, req.Output, result.Results); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := svc.Record(req, result); err != nil {
		fmt.Fprintf(opts.Stderr, "qw: warning: %v\n", err)
	}

	if !req.Execute {
		return nil
	}
	return executeBest(ctx, svc, opts, req.Output, result)
}

// executeBest runs the best reply through the shell once the guardrail allows it.
// The command's output is streamed by the executor as it runs.
func executeBest(ctx context.Context, svc *pipeline.Service, opts Options, mode domain.OutputMode, result domain.RunResult) error {
	outcome, err := svc.Plan(result)
	if err != nil {
		return err
	}
	if outcome.Risk.Action == domain.ActionWarn {
		fmt.Fprintf(opts.Stderr, "qw: warning: %s risk command: %s\n",
			outcome.Risk.Level, strings.Join(outcome.Risk.Reasons, "; "))
	}
	if mode == domain.OutputPlain {
		fmt.Fprintf(opts.Stdout, "--- exec (%s) ---\n", outcome.Source)
	}

	outcome, err = svc.RunPlanned(ctx, outcome)
	var failure *domain.ExecutionFailure
	if err != nil && !errors.As(err, &failure) {
		return err
	}
	fmt.Fprintf(opts.Stderr, "qw: exit status %d\n", outcome.Result.ExitCode)
	return err
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func isVerboseEnv() bool {
	value := os.Getenv("QW_DEBUG")
	return value == "1" || strings.EqualFold(value, "true")
}
