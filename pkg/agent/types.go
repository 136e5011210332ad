package agent

import (
	"time"

	"github.com/infrapilot/infrapilot/pkg/pipeline"
)

// CycleOutcome is the terminal state of one cycle.
type CycleOutcome string

const (
	// CycleOutcomePending marks a cycle that has not finished yet
	CycleOutcomePending CycleOutcome = "pending"

	// CycleOutcomeSucceeded marks a cycle that deployed and met expectations
	CycleOutcomeSucceeded CycleOutcome = "succeeded"

	// CycleOutcomeFailed marks a cycle that failed anywhere in the sequence
	CycleOutcomeFailed CycleOutcome = "failed"
)

// CycleRecord captures everything that happened in one outer iteration.
// Records are created at the start of a cycle, owned solely by the
// orchestrator, and immutable once the cycle ends.
type CycleRecord struct {
	// Index is the 1-based cycle number
	Index int `json:"index"`

	// Outcome is the cycle's terminal state
	Outcome CycleOutcome `json:"outcome"`

	// GeneratedFiles is the file set returned by the generation service
	GeneratedFiles map[string]string `json:"generated_files,omitempty"`

	// Pipeline is the build pipeline's result, nil when the pipeline never ran
	Pipeline *pipeline.Result `json:"pipeline,omitempty"`

	// Deployed reports whether the deploy phase succeeded this cycle
	Deployed bool `json:"deployed"`

	// ExpectationMet reports whether the deployment outputs satisfied the
	// original request
	ExpectationMet bool `json:"expectation_met"`

	// DeploymentOutputs maps artifact names to values collected after a
	// successful deploy
	DeploymentOutputs map[string]string `json:"deployment_outputs,omitempty"`

	// FailureClass classifies the failure, empty on success
	FailureClass FailureClass `json:"failure_class,omitempty"`

	// ErrorSummary is a human-readable description of the failure
	ErrorSummary string `json:"error_summary,omitempty"`

	// StartedAt is when the cycle began
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the cycle ended
	CompletedAt time.Time `json:"completed_at"`
}

// fail marks the record failed with the given classified error.
func (r *CycleRecord) fail(err *CycleError) {
	r.Outcome = CycleOutcomeFailed
	r.FailureClass = err.Class
	r.ErrorSummary = err.Error()
}

// RunOutcome is the terminal state of a whole run.
type RunOutcome string

const (
	// RunOutcomeSucceeded means some cycle deployed and met expectations
	RunOutcomeSucceeded RunOutcome = "succeeded"

	// RunOutcomePartial means a deploy succeeded but expectations were never
	// met within the cycle budget
	RunOutcomePartial RunOutcome = "partial"

	// RunOutcomeFailed means no cycle ever deployed successfully
	RunOutcomeFailed RunOutcome = "failed"
)

// RunResult is the outcome of one orchestrator invocation: the ordered cycle
// records plus summary state.
type RunResult struct {
	// ID uniquely identifies the run
	ID string `json:"id"`

	// Prompt is the original natural-language request
	Prompt string `json:"prompt"`

	// Outcome is the run's terminal state
	Outcome RunOutcome `json:"outcome"`

	// Cycles holds one record per attempted cycle, in order
	Cycles []CycleRecord `json:"cycles"`

	// StartedAt is when the run began
	StartedAt time.Time `json:"started_at"`

	// Duration is the total run time
	Duration time.Duration `json:"duration"`
}

// Succeeded returns true if at least one cycle succeeded.
func (r *RunResult) Succeeded() bool {
	return r.Outcome == RunOutcomeSucceeded
}

// LastDeploymentOutputs returns the most recent cycle's deployment outputs,
// or nil when nothing ever deployed.
func (r *RunResult) LastDeploymentOutputs() map[string]string {
	for i := len(r.Cycles) - 1; i >= 0; i-- {
		if r.Cycles[i].Deployed {
			return r.Cycles[i].DeploymentOutputs
		}
	}
	return nil
}
