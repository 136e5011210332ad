package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/infrapilot/infrapilot/pkg/backends"
	"github.com/infrapilot/infrapilot/pkg/generator"
	"github.com/infrapilot/infrapilot/pkg/pipeline"
	"github.com/infrapilot/infrapilot/pkg/telemetry"
)

// Recorder persists run and cycle records. SaveCycle is called after every
// cycle; SaveRun once at the end.
type Recorder interface {
	SaveRun(ctx context.Context, run *RunResult) error
	SaveCycle(ctx context.Context, runID string, record *CycleRecord) error
}

// Deps are the orchestrator's collaborators. Generator and Backend are
// required; the rest fall back to working defaults when nil.
type Deps struct {
	Generator  generator.Service
	Backend    backends.Backend
	Classifier pipeline.Classifier
	Checker    Checker
	Recorder   Recorder
	Metrics    *telemetry.Metrics
	Logger     *telemetry.Logger
}

// Config tunes the cycle and pass budgets and the phase commands.
type Config struct {
	// MaxCycles bounds the number of outer cycles (must be at least 1)
	MaxCycles int

	// MaxPasses bounds full passes inside each pipeline invocation
	MaxPasses int

	// Commands overrides the per-phase commands, nil for defaults
	Commands pipeline.Commands
}

// DefaultConfig returns the standard budgets.
func DefaultConfig() Config {
	return Config{
		MaxCycles: 3,
		MaxPasses: 2,
	}
}

// Orchestrator drives the outer cycle loop. A single orchestrator handles one
// run at a time; the run loop itself is sequential and each collaborator is
// invoked from the run goroutine only.
type Orchestrator struct {
	deps   Deps
	config Config
	logger *telemetry.Logger
}

// New creates an orchestrator. The generator and backend are required.
func New(deps Deps, config Config) (*Orchestrator, error) {
	if deps.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if deps.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if deps.Checker == nil {
		deps.Checker = NewHeuristicChecker()
	}
	if deps.Classifier == nil {
		deps.Classifier = pipeline.NewRuleClassifier()
	}
	if deps.Logger == nil {
		logger, err := telemetry.NewLogger(telemetry.DefaultLoggingConfig())
		if err != nil {
			return nil, err
		}
		deps.Logger = logger
	}
	if config.MaxCycles < 1 {
		return nil, fmt.Errorf("max cycles must be at least 1, got %d", config.MaxCycles)
	}
	if config.MaxPasses < 1 {
		config.MaxPasses = DefaultConfig().MaxPasses
	}

	return &Orchestrator{
		deps:   deps,
		config: config,
		logger: deps.Logger.NewComponentLogger("orchestrator"),
	}, nil
}

// Run executes the full cycle loop for one request and returns the run
// result. The result is returned even when the run fails; the error return is
// reserved for conditions that prevent the loop from running at all, such as
// an unreachable execution environment during bootstrap or context
// cancellation.
func (o *Orchestrator) Run(ctx context.Context, prompt string) (*RunResult, error) {
	run := &RunResult{
		ID:        uuid.New().String(),
		Prompt:    prompt,
		Outcome:   RunOutcomeFailed,
		StartedAt: time.Now(),
	}
	logger := o.logger.WithRunID(run.ID)

	defer func() {
		if err := o.deps.Backend.Close(); err != nil {
			logger.WithError(err).Warn("failed to close backend")
		}
	}()

	logger.Infof("starting run: %q", truncatePrompt(prompt))

	if err := o.deps.Backend.Bootstrap(ctx); err != nil {
		run.Duration = time.Since(run.StartedAt)
		o.recordRun(ctx, run, logger)
		if backends.IsConnectivity(err) {
			return run, NewConnectivityError("bootstrap failed", err)
		}
		return run, NewUnknownError(fmt.Errorf("bootstrap failed: %w", err))
	}

	currentPrompt := prompt
	deployedOnce := false

	for cycle := 1; cycle <= o.config.MaxCycles; cycle++ {
		if err := ctx.Err(); err != nil {
			run.Duration = time.Since(run.StartedAt)
			o.recordRun(ctx, run, logger)
			return run, err
		}

		record := o.runCycle(ctx, cycle, currentPrompt, logger.WithCycle(cycle))
		run.Cycles = append(run.Cycles, *record)

		if o.deps.Recorder != nil {
			if err := o.deps.Recorder.SaveCycle(ctx, run.ID, record); err != nil {
				logger.WithError(err).Warn("failed to persist cycle record")
			}
		}
		if o.deps.Metrics != nil {
			o.deps.Metrics.RecordCycle(string(record.Outcome), string(record.FailureClass))
			o.recordPipelineMetrics(record.Pipeline)
		}

		if record.Deployed {
			deployedOnce = true
		}

		if record.Outcome == CycleOutcomeSucceeded {
			run.Outcome = RunOutcomeSucceeded
			break
		}

		// The missing-credential condition is the only immediately fatal
		// one; everything else feeds the next cycle.
		if cycle < o.config.MaxCycles {
			currentPrompt = NextPrompt(prompt, record)
		}
	}

	if run.Outcome != RunOutcomeSucceeded && deployedOnce {
		run.Outcome = RunOutcomePartial
	}

	run.Duration = time.Since(run.StartedAt)
	logger.Infof("run finished: outcome=%s cycles=%d duration=%s", run.Outcome, len(run.Cycles), run.Duration.Round(time.Millisecond))

	o.recordRun(ctx, run, logger)
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordRun(string(run.Outcome), run.Duration)
	}

	return run, nil
}

// runCycle executes one full cycle: generate, validate, deliver, pipeline,
// collect, check. Failures are folded into the returned record, never
// propagated; the record is complete when this returns.
func (o *Orchestrator) runCycle(ctx context.Context, index int, prompt string, logger *telemetry.Logger) *CycleRecord {
	record := &CycleRecord{
		Index:     index,
		Outcome:   CycleOutcomePending,
		StartedAt: time.Now(),
	}
	defer func() {
		record.CompletedAt = time.Now()
	}()

	logger.Info("generating project")

	resp, err := o.deps.Generator.Generate(ctx, generator.Request{Prompt: prompt})
	if err != nil {
		record.fail(NewGenerationError("generation service call failed", err))
		logger.WithError(err).Error("generation failed")
		return record
	}
	record.GeneratedFiles = resp.Files

	if err := ValidateFiles(resp.Files); err != nil {
		record.fail(asCycleError(err))
		logger.WithError(err).Error("generated files failed validation")
		return record
	}

	logger.Infof("delivering %d files", len(resp.Files))

	if err := o.deps.Backend.DeliverFiles(ctx, resp.Files); err != nil {
		record.fail(classifyBackendError("file delivery failed", err))
		logger.WithError(err).Error("file delivery failed")
		return record
	}

	pipe, err := pipeline.New(o.deps.Backend, o.deps.Classifier, o.config.Commands, o.config.MaxPasses)
	if err != nil {
		record.fail(NewUnknownError(err))
		return record
	}

	pipeResult, err := pipe.Run(ctx)
	if err != nil {
		record.fail(classifyBackendError("pipeline aborted", err))
		logger.WithError(err).Error("pipeline aborted")
		return record
	}
	record.Pipeline = pipeResult

	if !pipeResult.Success {
		record.fail(NewPhaseError(string(pipeResult.FailedPhase), lastFailureOutput(pipeResult), nil))
		logger.Errorf("pipeline failed in %s phase after %d passes", pipeResult.FailedPhase, pipeResult.Passes)
		return record
	}
	record.Deployed = true

	outputs, err := o.deps.Backend.CollectOutputs(ctx)
	if err != nil {
		record.fail(classifyBackendError("output collection failed", err))
		logger.WithError(err).Error("output collection failed")
		return record
	}
	record.DeploymentOutputs = outputs

	record.ExpectationMet = o.deps.Checker.Met(prompt, outputs)
	if !record.ExpectationMet {
		record.Outcome = CycleOutcomeFailed
		record.ErrorSummary = "deployment succeeded but outputs did not satisfy the request"
		logger.Warn("deployed but expectations not met")
		return record
	}

	record.Outcome = CycleOutcomeSucceeded
	logger.Info("cycle succeeded")
	return record
}

// recordRun persists the run result when a recorder is configured.
func (o *Orchestrator) recordRun(ctx context.Context, run *RunResult, logger *telemetry.Logger) {
	if o.deps.Recorder == nil {
		return
	}
	if err := o.deps.Recorder.SaveRun(ctx, run); err != nil {
		logger.WithError(err).Warn("failed to persist run result")
	}
}

// recordPipelineMetrics folds a pipeline history into phase and remedy
// counters.
func (o *Orchestrator) recordPipelineMetrics(result *pipeline.Result) {
	if result == nil {
		return
	}
	for _, outcome := range result.History {
		o.deps.Metrics.RecordPhaseAttempt(string(outcome.Phase), outcome.Success)
		if outcome.AppliedFix != nil && outcome.AppliedFix.Command != "" {
			o.deps.Metrics.RecordRemedy(outcome.AppliedFix.Pattern)
		}
	}
}

// classifyBackendError wraps a backend error as connectivity when it carries a
// transport failure, unknown otherwise.
func classifyBackendError(message string, err error) *CycleError {
	if backends.IsConnectivity(err) {
		return NewConnectivityError(message, err)
	}
	return NewUnknownError(fmt.Errorf("%s: %w", message, err))
}

// asCycleError returns err as a CycleError, wrapping as unknown when it is
// something else.
func asCycleError(err error) *CycleError {
	if e, ok := err.(*CycleError); ok {
		return e
	}
	return NewUnknownError(err)
}

// lastFailureOutput returns the most recent failed phase output for the error
// summary.
func lastFailureOutput(result *pipeline.Result) string {
	outputs := result.FailureOutputs()
	if len(outputs) == 0 {
		return ""
	}
	return outputs[len(outputs)-1]
}

func truncatePrompt(prompt string) string {
	const max = 120
	if len(prompt) <= max {
		return prompt
	}
	return prompt[:max] + "..."
}
