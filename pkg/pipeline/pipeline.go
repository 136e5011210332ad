// Package pipeline drives the four ordered build phases against an execution
// backend, applying classifier remedies and bounded pass retries.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/infrapilot/infrapilot/pkg/backends"
)

// Phase is one of the four ordered pipeline steps. A phase never runs before
// all preceding phases have succeeded in the same pass.
type Phase string

const (
	PhaseBuild      Phase = "build"
	PhaseSynthesize Phase = "synthesize"
	PhaseLint       Phase = "lint"
	PhaseDeploy     Phase = "deploy"
)

// phaseOrder is the strict execution order.
var phaseOrder = []Phase{PhaseBuild, PhaseSynthesize, PhaseLint, PhaseDeploy}

// Order returns the phases in execution order.
func Order() []Phase {
	order := make([]Phase, len(phaseOrder))
	copy(order, phaseOrder)
	return order
}

// Commands maps each phase to the command that runs it.
type Commands map[Phase]string

// DefaultCommands returns the standard command set for TypeScript CDKTF
// projects.
func DefaultCommands() Commands {
	return Commands{
		PhaseBuild:      "npm run build",
		PhaseSynthesize: "cdktf synth",
		PhaseLint:       "npm run lint",
		PhaseDeploy:     "cdktf deploy --auto-approve",
	}
}

// Validate checks that every phase has a command.
func (c Commands) Validate() error {
	for _, phase := range phaseOrder {
		if c[phase] == "" {
			return fmt.Errorf("no command configured for phase %s", phase)
		}
	}
	return nil
}

// FixAction records a classifier-proposed remedy and its result.
type FixAction struct {
	// Pattern is the matched category
	Pattern string `json:"pattern"`

	// Command is the remedy command, empty when no automatic fix exists
	Command string `json:"command,omitempty"`

	// Result is the remedy command's outcome, nil when it never ran
	Result *backends.Result `json:"result,omitempty"`
}

// Outcome is the result of one phase attempt.
type Outcome struct {
	// Phase that was attempted
	Phase Phase `json:"phase"`

	// Pass is the full-pass attempt number this outcome belongs to (1-based)
	Pass int `json:"pass"`

	// Success reports whether the phase ultimately cleared in this attempt
	Success bool `json:"success"`

	// Output is the combined output of the attempt that stands (the retried
	// run when a remedy was applied and the phase re-ran)
	Output string `json:"output"`

	// AppliedFix is the remedy consulted for a failure, if any matched
	AppliedFix *FixAction `json:"applied_fix,omitempty"`
}

// Result is the outcome of one pipeline invocation.
type Result struct {
	// Success reports whether all four phases cleared in the final pass
	Success bool `json:"success"`

	// FailedPhase names the phase that could not be cleared, on failure
	FailedPhase Phase `json:"failed_phase,omitempty"`

	// Passes is the number of full passes attempted
	Passes int `json:"passes"`

	// History is the full ordered sequence of phase outcomes across passes
	History []Outcome `json:"history"`

	// LastPass holds the outcomes of the final pass only
	LastPass []Outcome `json:"last_pass"`
}

// FailureOutputs returns the captured output of every failed phase attempt,
// in order. Used to build the next cycle's corrective prompt.
func (r *Result) FailureOutputs() []string {
	var outputs []string
	for _, outcome := range r.History {
		if !outcome.Success && outcome.Output != "" {
			outputs = append(outputs, outcome.Output)
		}
	}
	return outputs
}

// Pipeline runs the phase sequence against a backend.
type Pipeline struct {
	backend    backends.Backend
	classifier Classifier
	commands   Commands
	maxPasses  int
}

// New creates a pipeline. maxPasses bounds the number of full passes; it must
// be at least 1.
func New(backend backends.Backend, classifier Classifier, commands Commands, maxPasses int) (*Pipeline, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if classifier == nil {
		classifier = NewRuleClassifier()
	}
	if commands == nil {
		commands = DefaultCommands()
	}
	if err := commands.Validate(); err != nil {
		return nil, err
	}
	if maxPasses < 1 {
		return nil, fmt.Errorf("max passes must be at least 1, got %d", maxPasses)
	}

	return &Pipeline{
		backend:    backend,
		classifier: classifier,
		commands:   commands,
		maxPasses:  maxPasses,
	}, nil
}

// Run drives the phases strictly in order. On a phase failure the classifier
// is consulted; a proposed remedy runs once and, if it succeeds, the phase is
// re-run once. If the phase still cannot be cleared the remaining phases of
// the pass are abandoned and the whole sequence restarts from the first
// phase, up to maxPasses times. Later phases never run on a stale
// earlier-phase result.
//
// A non-nil error is returned only for environment and transport failures;
// phase failures are reported through the Result.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	result := &Result{}

	for pass := 1; pass <= p.maxPasses; pass++ {
		log.Debug().Int("pass", pass).Int("max_passes", p.maxPasses).Msg("starting pipeline pass")

		passOutcomes, failedPhase, err := p.runPass(ctx, pass)
		result.History = append(result.History, passOutcomes...)
		result.LastPass = passOutcomes
		result.Passes = pass

		if err != nil {
			return nil, err
		}

		if failedPhase == "" {
			result.Success = true
			log.Info().Int("passes", pass).Msg("pipeline succeeded")
			return result, nil
		}

		result.FailedPhase = failedPhase

		if pass < p.maxPasses {
			log.Warn().
				Str("phase", string(failedPhase)).
				Int("pass", pass).
				Msg("pass failed, restarting from first phase")
		}
	}

	log.Error().
		Str("phase", string(result.FailedPhase)).
		Int("passes", result.Passes).
		Msg("pipeline failed, pass budget exhausted")

	return result, nil
}

// runPass executes one full pass. It returns the pass's outcomes and the
// phase that failed, or an empty phase when all cleared.
func (p *Pipeline) runPass(ctx context.Context, pass int) ([]Outcome, Phase, error) {
	var outcomes []Outcome

	for _, phase := range phaseOrder {
		outcome, err := p.runPhase(ctx, phase, pass)
		if err != nil {
			return outcomes, phase, err
		}

		outcomes = append(outcomes, *outcome)

		if !outcome.Success {
			// Abandon the remaining phases of this pass
			return outcomes, phase, nil
		}
	}

	return outcomes, "", nil
}

// runPhase executes one phase attempt, applying a classifier remedy and a
// single re-run when the remedy clears.
func (p *Pipeline) runPhase(ctx context.Context, phase Phase, pass int) (*Outcome, error) {
	command := p.commands[phase]

	log.Debug().Str("phase", string(phase)).Str("command", command).Msg("executing phase")

	execResult, err := p.backend.Execute(ctx, command)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Phase:   phase,
		Pass:    pass,
		Success: execResult.Success(),
		Output:  execResult.Output,
	}

	if outcome.Success {
		return outcome, nil
	}

	remedy := p.classifier.Classify(execResult.Output)
	if remedy == nil {
		log.Debug().Str("phase", string(phase)).Msg("no remedy available")
		return outcome, nil
	}

	outcome.AppliedFix = &FixAction{
		Pattern: remedy.Pattern,
		Command: remedy.Command,
	}

	if remedy.Command == "" {
		log.Warn().
			Str("phase", string(phase)).
			Str("pattern", remedy.Pattern).
			Bool("fatal", remedy.Fatal).
			Msg("failure classified without an automatic fix")
		return outcome, nil
	}

	log.Info().
		Str("phase", string(phase)).
		Str("pattern", remedy.Pattern).
		Str("remedy", remedy.Command).
		Msg("applying remedy")

	fixResult, err := p.backend.Execute(ctx, remedy.Command)
	if err != nil {
		return nil, err
	}
	outcome.AppliedFix.Result = fixResult

	if !fixResult.Success() {
		log.Warn().Str("remedy", remedy.Command).Msg("remedy failed")
		return outcome, nil
	}

	// Remedy cleared; re-run the original phase command once
	retryResult, err := p.backend.Execute(ctx, command)
	if err != nil {
		return nil, err
	}

	outcome.Success = retryResult.Success()
	outcome.Output = retryResult.Output

	return outcome, nil
}
