package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/infrapilot/infrapilot/pkg/backends"
	"github.com/infrapilot/infrapilot/pkg/generator"
)

// fakeGenerator returns scripted responses, one per call.
type fakeGenerator struct {
	responses []*generator.Response
	errs      []error
	prompts   []string
}

func (g *fakeGenerator) Generate(_ context.Context, req generator.Request) (*generator.Response, error) {
	call := len(g.prompts)
	g.prompts = append(g.prompts, req.Prompt)
	if call < len(g.errs) && g.errs[call] != nil {
		return nil, g.errs[call]
	}
	if call < len(g.responses) {
		return g.responses[call], nil
	}
	return g.responses[len(g.responses)-1], nil
}

// fakeRunBackend scripts command results and records the delivered files.
type fakeRunBackend struct {
	// script maps a command substring to the result for its nth execution
	script    func(command string, prior int) *backends.Result
	execErr   error
	outputs   map[string]string
	delivered []map[string]string
	counts    map[string]int
	closed    bool
}

func newFakeRunBackend() *fakeRunBackend {
	return &fakeRunBackend{
		counts: make(map[string]int),
		script: func(string, int) *backends.Result {
			return &backends.Result{ExitCode: 0}
		},
	}
}

func (b *fakeRunBackend) Bootstrap(context.Context) error { return nil }

func (b *fakeRunBackend) Execute(_ context.Context, command string) (*backends.Result, error) {
	if b.execErr != nil {
		return nil, b.execErr
	}
	prior := b.counts[command]
	b.counts[command]++
	result := b.script(command, prior)
	result.Command = command
	return result, nil
}

func (b *fakeRunBackend) DeliverFiles(_ context.Context, files map[string]string) error {
	b.delivered = append(b.delivered, files)
	return nil
}

func (b *fakeRunBackend) CollectOutputs(context.Context) (map[string]string, error) {
	if b.outputs == nil {
		return map[string]string{}, nil
	}
	return b.outputs, nil
}

func (b *fakeRunBackend) Close() error {
	b.closed = true
	return nil
}

func validFiles() map[string]string {
	return map[string]string{
		"main.ts":      `import { App } from "cdktf";` + "\n" + `const app = new App();` + "\n" + `app.synth();`,
		"cdktf.json":   `{"language": "typescript", "app": "npx ts-node main.ts"}`,
		"package.json": `{"name": "generated-stack", "version": "0.1.0"}`,
	}
}

func newTestOrchestrator(t *testing.T, gen generator.Service, backend backends.Backend, cfg Config) *Orchestrator {
	t.Helper()
	orch, err := New(Deps{Generator: gen, Backend: backend}, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return orch
}

func TestOrchestrator_Run_SucceedsFirstCycle(t *testing.T) {
	gen := &fakeGenerator{responses: []*generator.Response{{Files: validFiles()}}}
	backend := newFakeRunBackend()
	backend.outputs = map[string]string{"bucketName": "infrapilot-artifacts-prod"}

	orch := newTestOrchestrator(t, gen, backend, Config{MaxCycles: 3, MaxPasses: 2})

	run, err := orch.Run(context.Background(), "create an S3 bucket for artifacts")
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if run.Outcome != RunOutcomeSucceeded {
		t.Errorf("expected outcome %s, got %s", RunOutcomeSucceeded, run.Outcome)
	}
	if len(run.Cycles) != 1 {
		t.Fatalf("expected 1 cycle, got %d", len(run.Cycles))
	}
	cycle := run.Cycles[0]
	if cycle.Outcome != CycleOutcomeSucceeded {
		t.Errorf("expected cycle outcome %s, got %s", CycleOutcomeSucceeded, cycle.Outcome)
	}
	if !cycle.Deployed || !cycle.ExpectationMet {
		t.Errorf("expected deployed and expectation met, got deployed=%v met=%v", cycle.Deployed, cycle.ExpectationMet)
	}
	if cycle.DeploymentOutputs["bucketName"] != "infrapilot-artifacts-prod" {
		t.Errorf("deployment outputs not carried: %v", cycle.DeploymentOutputs)
	}
	if !backend.closed {
		t.Error("backend was not closed")
	}
}

func TestOrchestrator_Run_PartialWhenOutputsEmpty(t *testing.T) {
	gen := &fakeGenerator{responses: []*generator.Response{{Files: validFiles()}}}
	backend := newFakeRunBackend()
	// All phases succeed but the deploy surfaces nothing

	orch := newTestOrchestrator(t, gen, backend, Config{MaxCycles: 2, MaxPasses: 1})

	run, err := orch.Run(context.Background(), "create a queue")
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if run.Outcome != RunOutcomePartial {
		t.Errorf("expected outcome %s, got %s", RunOutcomePartial, run.Outcome)
	}
	if len(run.Cycles) != 2 {
		t.Fatalf("expected 2 cycles, got %d", len(run.Cycles))
	}
	for i, cycle := range run.Cycles {
		if !cycle.Deployed {
			t.Errorf("cycle %d: expected deployed", i+1)
		}
		if cycle.ExpectationMet {
			t.Errorf("cycle %d: expected expectation unmet", i+1)
		}
		if cycle.Outcome != CycleOutcomeFailed {
			t.Errorf("cycle %d: expected failed outcome, got %s", i+1, cycle.Outcome)
		}
	}

	// The second cycle's prompt carries the original request plus feedback
	if len(gen.prompts) != 2 {
		t.Fatalf("expected 2 generation calls, got %d", len(gen.prompts))
	}
	if !strings.HasPrefix(gen.prompts[1], "create a queue") {
		t.Errorf("second prompt does not carry the original request: %q", gen.prompts[1])
	}
	if !strings.Contains(gen.prompts[1], "did not produce the expected result") {
		t.Errorf("second prompt lacks improvement feedback: %q", gen.prompts[1])
	}
}

func TestOrchestrator_Run_ValidationFailureSkipsPipeline(t *testing.T) {
	gen := &fakeGenerator{responses: []*generator.Response{
		{Files: map[string]string{"main.ts": "import { App } from \"cdktf\";"}},
	}}
	backend := newFakeRunBackend()

	orch := newTestOrchestrator(t, gen, backend, Config{MaxCycles: 1, MaxPasses: 1})

	run, err := orch.Run(context.Background(), "create a bucket")
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if run.Outcome != RunOutcomeFailed {
		t.Errorf("expected outcome %s, got %s", RunOutcomeFailed, run.Outcome)
	}
	cycle := run.Cycles[0]
	if cycle.FailureClass != FailureClassValidation {
		t.Errorf("expected failure class %s, got %s", FailureClassValidation, cycle.FailureClass)
	}
	if cycle.Pipeline != nil {
		t.Error("pipeline ran despite validation failure")
	}
	if len(backend.delivered) != 0 {
		t.Error("files were delivered despite validation failure")
	}
}

func TestOrchestrator_Run_PhaseFailureFeedsFixPrompt(t *testing.T) {
	gen := &fakeGenerator{responses: []*generator.Response{{Files: validFiles()}}}
	backend := newFakeRunBackend()
	backend.script = func(command string, prior int) *backends.Result {
		if strings.Contains(command, "npm run build") {
			return &backends.Result{ExitCode: 1, Output: "error TS2304: Cannot find name 'Bucket'"}
		}
		return &backends.Result{ExitCode: 0}
	}

	orch := newTestOrchestrator(t, gen, backend, Config{MaxCycles: 2, MaxPasses: 1})

	run, err := orch.Run(context.Background(), "create a bucket")
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if run.Outcome != RunOutcomeFailed {
		t.Errorf("expected outcome %s, got %s", RunOutcomeFailed, run.Outcome)
	}
	if got := run.Cycles[0].FailureClass; got != FailureClassPhase {
		t.Errorf("expected failure class %s, got %s", FailureClassPhase, got)
	}
	if len(gen.prompts) != 2 {
		t.Fatalf("expected 2 generation calls, got %d", len(gen.prompts))
	}
	second := gen.prompts[1]
	if !strings.Contains(second, "build phase") {
		t.Errorf("fix prompt does not name the failed phase: %q", second)
	}
	if !strings.Contains(second, "Cannot find name 'Bucket'") {
		t.Errorf("fix prompt does not carry the captured output: %q", second)
	}
}

func TestOrchestrator_Run_NeverExceedsCycleBudget(t *testing.T) {
	gen := &fakeGenerator{
		responses: []*generator.Response{nil},
		errs:      []error{fmt.Errorf("boom"), fmt.Errorf("boom"), fmt.Errorf("boom"), fmt.Errorf("boom")},
	}
	backend := newFakeRunBackend()

	orch := newTestOrchestrator(t, gen, backend, Config{MaxCycles: 3, MaxPasses: 1})

	run, err := orch.Run(context.Background(), "create a bucket")
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if len(run.Cycles) != 3 {
		t.Errorf("expected exactly 3 cycles, got %d", len(run.Cycles))
	}
	if run.Outcome != RunOutcomeFailed {
		t.Errorf("expected outcome %s, got %s", RunOutcomeFailed, run.Outcome)
	}
	for i, cycle := range run.Cycles {
		if cycle.FailureClass != FailureClassGeneration {
			t.Errorf("cycle %d: expected generation failure, got %s", i+1, cycle.FailureClass)
		}
	}
}

func TestOrchestrator_Run_CancelledContextStopsLoop(t *testing.T) {
	gen := &fakeGenerator{errs: []error{fmt.Errorf("boom")}, responses: []*generator.Response{nil}}
	backend := newFakeRunBackend()

	orch := newTestOrchestrator(t, gen, backend, Config{MaxCycles: 5, MaxPasses: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := orch.Run(ctx, "create a bucket")
	if err == nil {
		t.Fatal("expected a context error")
	}
	if len(run.Cycles) != 0 {
		t.Errorf("expected no cycles after cancellation, got %d", len(run.Cycles))
	}
}

func TestOrchestrator_New_RequiresCollaborators(t *testing.T) {
	backend := newFakeRunBackend()
	gen := &fakeGenerator{responses: []*generator.Response{{Files: validFiles()}}}

	if _, err := New(Deps{Backend: backend}, DefaultConfig()); err == nil {
		t.Error("expected error for missing generator")
	}
	if _, err := New(Deps{Generator: gen}, DefaultConfig()); err == nil {
		t.Error("expected error for missing backend")
	}
	if _, err := New(Deps{Generator: gen, Backend: backend}, Config{MaxCycles: 0}); err == nil {
		t.Error("expected error for zero cycle budget")
	}
}
