// Package ports defines the interfaces between the qw pipeline and its adapters.
//
// The pipeline in internal/application depends only on these abstractions, so tests can
// swap the local inference server, the pass-through CLIs and the shell for stubs.
package ports

import (
	"context"

	"github.com/doeshing/qw/internal/domain"
)

// ConfigProvider loads the optional defaults file.
// Implementations typically read from ~/.qw/config.yaml.
type ConfigProvider interface {
	Load(context.Context) (domain.FileConfig, error)
}

// InferenceRequest is what the inference client sends to the local model.
type InferenceRequest struct {
	Model        string
	Prompt       string
	SystemPrompt string
	Sampling     domain.Sampling
	AutoPull     bool
}

// InferenceClient streams a reply from the local model and returns the accumulated text.
type InferenceClient interface {
	Generate(ctx context.Context, req InferenceRequest) (string, error)
}

// StageRunner runs one pass-through stage, feeding input on stdin and returning stdout.
// Failures are reported as *domain.StageError.
type StageRunner interface {
	Run(ctx context.Context, stage domain.StageName, input string) (string, error)
}

// CommandExecutor runs shell commands in the configured shell environment.
type CommandExecutor interface {
	Execute(ctx context.Context, command string) (domain.ExecutionResult, error)
}

// SecurityService evaluates commands against danger rules before execution.
type SecurityService interface {
	Evaluate(command string) (domain.RiskAssessment, error)
}

// RunLogger appends one record per invocation to a durable log.
type RunLogger interface {
	Append(domain.LogRecord) error
}

// Logger provides structured diagnostic logging for the application layer.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}
