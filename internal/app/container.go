package app

import (
	"io"
	"net/http"

	"github.com/doeshing/qw/internal/application/pipeline"
	"github.com/doeshing/qw/internal/domain"
	"github.com/doeshing/qw/internal/infrastructure/executor"
	"github.com/doeshing/qw/internal/infrastructure/history"
	"github.com/doeshing/qw/internal/infrastructure/ollama"
	"github.com/doeshing/qw/internal/infrastructure/process"
	"github.com/doeshing/qw/internal/infrastructure/security"
	"github.com/doeshing/qw/internal/pkg/logger"
	"github.com/doeshing/qw/internal/ports"
)

// Streams are the process streams adapters may write to directly.
type Streams struct {
	Out io.Writer
	Err io.Writer
}

// Container wires up the pipeline with infrastructure adapters.
type Container struct {
	Pipeline *pipeline.Service
	Logger   ports.Logger
}

// BuildContainer constructs the dependency graph for one resolved request.
func BuildContainer(req domain.RequestConfig, fileCfg domain.FileConfig, streams Streams) (*Container, error) {
	log := logger.New(streams.Err, req.Verbose)

	svc := &pipeline.Service{
		Inference: ollama.NewClient(domain.DefaultEndpoint, &http.Client{}, req.Timeout, log, streams.Err),
		Stages: process.NewRunner(map[domain.StageName][]string{
			domain.StageCodex:  fileCfg.Stages.Codex.Command,
			domain.StageClaude: fileCfg.Stages.Claude.Command,
		}, req.Timeout, log),
		Logger: log,
	}

	if req.LogFile != "" {
		svc.RunLog = history.Open(req.LogFile)
	}

	if req.Execute {
		guardrail, err := security.NewGuardrail(fileCfg.Security.RulesFile)
		if err != nil {
			return nil, err
		}
		shell := executor.NewLocalExecutor(fileCfg.Execution.Shell, streams.Out, streams.Err)
		svc.Security = guardrail
		svc.Executor = shell
		log.Debug("execution enabled", map[string]interface{}{"shell": shell.Shell()})
	}

	return &Container{Pipeline: svc, Logger: log}, nil
}
