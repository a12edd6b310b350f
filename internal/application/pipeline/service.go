// Package pipeline orchestrates one qw invocation: base inference, optional
// pass-through stages, the run log, and the opt-in execution bridge.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/doeshing/qw/internal/domain"
	"github.com/doeshing/qw/internal/ports"
)

// Service wires the ports needed for a run. RunLog may be nil.
type Service struct {
	Inference ports.InferenceClient
	Stages    ports.StageRunner
	Executor  ports.CommandExecutor
	Security  ports.SecurityService
	RunLog    ports.RunLogger
	Logger    ports.Logger

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// Run performs inference and the enabled pass-through stages. Only inference
// failures are returned; stage failures are collected in RunResult.StageErrors.
func (s *Service) Run(ctx context.Context, cfg domain.RequestConfig) (domain.RunResult, error) {
	if s.Inference == nil || s.Logger == nil {
		return domain.RunResult{}, errors.New("pipeline.Service dependencies not satisfied")
	}
	if len(cfg.EnabledStages()) > 0 && s.Stages == nil {
		return domain.RunResult{}, errors.New("pipeline.Service has no stage runner")
	}

	s.Logger.Info("calling local model", map[string]interface{}{"model": cfg.Model})
	start := time.Now()
	reply, err := s.Inference.Generate(ctx, ports.InferenceRequest{
		Model:        cfg.Model,
		Prompt:       cfg.Prompt,
		SystemPrompt: cfg.SystemPrompt,
		Sampling:     cfg.Sampling,
		AutoPull:     cfg.AutoPull,
	})
	if err != nil {
		var unavailable *domain.InferenceUnavailableError
		if !errors.As(err, &unavailable) {
			err = &domain.InferenceUnavailableError{Model: cfg.Model, Err: err}
		}
		return domain.RunResult{}, err
	}

	run := domain.RunResult{
		Results: domain.StageResults{{Stage: domain.StageQwen, Text: reply, Elapsed: time.Since(start)}},
	}
	s.Logger.Debug("base reply ready", map[string]interface{}{
		"size":    humanize.Bytes(uint64(len(reply))),
		"elapsed": run.Results[0].Elapsed.String(),
	})

	stages := cfg.EnabledStages()
	var outcomes []stageOutcome
	if cfg.Parallel && len(stages) > 1 {
		outcomes = s.dispatchParallel(ctx, stages, reply)
	} else {
		outcomes = s.dispatchSequential(ctx, stages, reply)
	}

	for _, out := range outcomes {
		if out.err != nil {
			run.StageErrors = append(run.StageErrors, out.err)
			continue
		}
		run.Results = append(run.Results, out.result)
	}
	return run, nil
}

type stageOutcome struct {
	result domain.StageResult
	err    *domain.StageError
}

// dispatchSequential feeds the base reply to each stage in order.
func (s *Service) dispatchSequential(ctx context.Context, stages []domain.StageName, input string) []stageOutcome {
	outcomes := make([]stageOutcome, 0, len(stages))
	for _, stage := range stages {
		outcomes = append(outcomes, s.runStage(ctx, stage, input))
	}
	return outcomes
}

// dispatchParallel runs all stages at once; the returned slice keeps stage order.
func (s *Service) dispatchParallel(ctx context.Context, stages []domain.StageName, input string) []stageOutcome {
	outcomes := make([]stageOutcome, len(stages))
	var group errgroup.Group
	for i, stage := range stages {
		i, stage := i, stage
		group.Go(func() error {
			outcomes[i] = s.runStage(ctx, stage, input)
			return nil
		})
	}
	_ = group.Wait()
	return outcomes
}

func (s *Service) runStage(ctx context.Context, stage domain.StageName, input string) stageOutcome {
	start := time.Now()
	text, err := s.Stages.Run(ctx, stage, input)
	if err != nil {
		var stageErr *domain.StageError
		if !errors.As(err, &stageErr) {
			stageErr = &domain.StageError{Stage: stage, Err: err}
		}
		s.Logger.Warn("stage failed", map[string]interface{}{"stage": string(stage), "error": err.Error()})
		return stageOutcome{err: stageErr}
	}
	return stageOutcome{result: domain.StageResult{Stage: stage, Text: text, Elapsed: time.Since(start)}}
}

// Record appends the run to the configured log. Failures come back as *domain.LogWriteWarning.
func (s *Service) Record(cfg domain.RequestConfig, run domain.RunResult) error {
	if s.RunLog == nil {
		return nil
	}
	record := s.buildRecord(cfg, run)
	if err := s.RunLog.Append(record); err != nil {
		return &domain.LogWriteWarning{Path: cfg.LogFile, Err: err}
	}
	s.Logger.Debug("run logged", map[string]interface{}{"id": record.ID, "path": cfg.LogFile})
	return nil
}

func (s *Service) buildRecord(cfg domain.RequestConfig, run domain.RunResult) domain.LogRecord {
	now, newID := s.Now, s.NewID
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.NewString
	}
	record := domain.LogRecord{
		ID:        newID(),
		Timestamp: now().UTC(),
		Prompt:    cfg.Prompt,
		Model:     cfg.Model,
		Stages:    run.Results.Texts(),
	}
	if len(run.StageErrors) > 0 {
		record.Errors = make(map[domain.StageName]string, len(run.StageErrors))
		for _, stageErr := range run.StageErrors {
			record.Errors[stageErr.Stage] = stageErr.Error()
		}
	}
	return record
}

// Plan selects the best available reply (claude > codex > qwen) and evaluates it
// against the guardrail. It returns *domain.ExecutionBlockedError when a block rule
// matches. Callers announce the plan, then hand it to RunPlanned.
func (s *Service) Plan(run domain.RunResult) (domain.ExecutionOutcome, error) {
	best, ok := run.BestReply()
	if !ok {
		return domain.ExecutionOutcome{}, errors.New("no reply to execute")
	}

	outcome := domain.ExecutionOutcome{Source: best.Stage, Command: best.Text}
	if s.Security == nil {
		return outcome, nil
	}
	risk, err := s.Security.Evaluate(best.Text)
	if err != nil {
		return outcome, fmt.Errorf("security evaluate: %w", err)
	}
	outcome.Risk = risk
	if risk.Action == domain.ActionBlock {
		return outcome, &domain.ExecutionBlockedError{Command: best.Text, Reasons: risk.Reasons}
	}
	return outcome, nil
}

// RunPlanned executes a planned outcome and fills in its result. A non-zero exit
// status is reported as *domain.ExecutionFailure alongside the outcome.
func (s *Service) RunPlanned(ctx context.Context, outcome domain.ExecutionOutcome) (domain.ExecutionOutcome, error) {
	if s.Executor == nil {
		return outcome, errors.New("pipeline.Service has no executor")
	}
	s.Logger.Info("executing reply", map[string]interface{}{"source": string(outcome.Source)})
	result, err := s.Executor.Execute(ctx, outcome.Command)
	outcome.Result = result
	if err != nil {
		return outcome, fmt.Errorf("execute: %w", err)
	}
	if result.ExitCode != 0 {
		return outcome, &domain.ExecutionFailure{Status: result.ExitCode}
	}
	return outcome, nil
}
