package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/infrapilot/infrapilot/pkg/backends"
)

// fakeBackend scripts command results for pipeline tests. The script
// receives the command and how many times it has run before.
type fakeBackend struct {
	script func(command string, prior int) (*backends.Result, error)
	calls  []string
	counts map[string]int
}

func newFakeBackend(script func(command string, prior int) (*backends.Result, error)) *fakeBackend {
	return &fakeBackend{
		script: script,
		counts: make(map[string]int),
	}
}

func (b *fakeBackend) Bootstrap(ctx context.Context) error { return nil }

func (b *fakeBackend) Execute(ctx context.Context, command string) (*backends.Result, error) {
	prior := b.counts[command]
	b.counts[command]++
	b.calls = append(b.calls, command)

	if b.script != nil {
		if result, err := b.script(command, prior); result != nil || err != nil {
			return result, err
		}
	}
	return &backends.Result{Command: command, ExitCode: 0}, nil
}

func (b *fakeBackend) DeliverFiles(ctx context.Context, files map[string]string) error { return nil }

func (b *fakeBackend) CollectOutputs(ctx context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

func (b *fakeBackend) Close() error { return nil }

func failure(command, output string) *backends.Result {
	return &backends.Result{Command: command, Output: output, ExitCode: 1}
}

func TestPipelinePhaseOrdering(t *testing.T) {
	backend := newFakeBackend(nil)

	p, err := New(backend, nil, nil, 3)
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}

	if !result.Success {
		t.Error("expected pipeline success")
	}

	commands := DefaultCommands()
	expected := []string{
		commands[PhaseBuild],
		commands[PhaseSynthesize],
		commands[PhaseLint],
		commands[PhaseDeploy],
	}

	if len(backend.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(backend.calls), backend.calls)
	}
	for i, cmd := range expected {
		if backend.calls[i] != cmd {
			t.Errorf("call %d: expected %q, got %q", i, cmd, backend.calls[i])
		}
	}
}

func TestPipelineLaterPhasesNeverRunAfterFailure(t *testing.T) {
	commands := DefaultCommands()

	backend := newFakeBackend(func(command string, prior int) (*backends.Result, error) {
		if command == commands[PhaseLint] {
			return failure(command, "some unrecognized failure"), nil
		}
		return nil, nil
	})

	p, err := New(backend, nil, nil, 2)
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("pipeline errored: %v", err)
	}

	if result.Success {
		t.Error("expected pipeline failure")
	}
	if result.FailedPhase != PhaseLint {
		t.Errorf("expected failed phase %s, got %s", PhaseLint, result.FailedPhase)
	}
	if result.Passes != 2 {
		t.Errorf("expected 2 passes, got %d", result.Passes)
	}

	for _, call := range backend.calls {
		if call == commands[PhaseDeploy] {
			t.Error("deploy must never run after a lint failure")
		}
	}

	// Each pass restarts from build
	if backend.counts[commands[PhaseBuild]] != 2 {
		t.Errorf("expected build to run once per pass, ran %d times", backend.counts[commands[PhaseBuild]])
	}
}

func TestPipelineRemedyClearsPhase(t *testing.T) {
	commands := DefaultCommands()

	backend := newFakeBackend(func(command string, prior int) (*backends.Result, error) {
		if command == commands[PhaseBuild] && prior == 0 {
			return failure(command, "Error: Cannot find module 'constructs'"), nil
		}
		return nil, nil
	})

	p, err := New(backend, nil, nil, 3)
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("pipeline errored: %v", err)
	}

	if !result.Success {
		t.Fatal("expected pipeline success after remedy")
	}
	if result.Passes != 1 {
		t.Errorf("expected success within 1 pass, got %d", result.Passes)
	}

	buildOutcome := result.LastPass[0]
	if buildOutcome.Phase != PhaseBuild || !buildOutcome.Success {
		t.Fatalf("expected cleared build outcome, got %+v", buildOutcome)
	}
	if buildOutcome.AppliedFix == nil {
		t.Fatal("expected an applied fix on the build outcome")
	}
	if buildOutcome.AppliedFix.Pattern != "unresolved module" {
		t.Errorf("expected 'unresolved module' pattern, got %q", buildOutcome.AppliedFix.Pattern)
	}
	if buildOutcome.AppliedFix.Command != "npm install" {
		t.Errorf("expected 'npm install' remedy, got %q", buildOutcome.AppliedFix.Command)
	}

	if backend.counts["npm install"] != 1 {
		t.Errorf("expected remedy to run once, ran %d times", backend.counts["npm install"])
	}
}

func TestPipelineExhaustsPassBudget(t *testing.T) {
	commands := DefaultCommands()
	buildError := "Error: Cannot find module 'constructs'\n    at Function.Module._resolveFilename"

	backend := newFakeBackend(func(command string, prior int) (*backends.Result, error) {
		if command == commands[PhaseBuild] {
			return failure(command, buildError), nil
		}
		return nil, nil
	})

	p, err := New(backend, nil, nil, 3)
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("pipeline errored: %v", err)
	}

	if result.Success {
		t.Error("expected pipeline failure")
	}
	if result.FailedPhase != PhaseBuild {
		t.Errorf("expected failed phase %s, got %s", PhaseBuild, result.FailedPhase)
	}
	if result.Passes != 3 {
		t.Errorf("expected 3 passes, got %d", result.Passes)
	}

	outputs := result.FailureOutputs()
	if len(outputs) == 0 {
		t.Fatal("expected failure outputs")
	}
	for _, output := range outputs {
		if !strings.Contains(output, "Cannot find module") {
			t.Errorf("failure output missing captured error text: %q", output)
		}
	}
}

func TestPipelineDeployConflictTeardownRetry(t *testing.T) {
	commands := DefaultCommands()

	backend := newFakeBackend(func(command string, prior int) (*backends.Result, error) {
		if command == commands[PhaseDeploy] && prior == 0 {
			return failure(command, "Error: bucket my-app-storage already exists"), nil
		}
		return nil, nil
	})

	p, err := New(backend, nil, nil, 3)
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("pipeline errored: %v", err)
	}

	if !result.Success {
		t.Fatal("expected pipeline success after teardown remedy")
	}

	deployOutcome := result.LastPass[len(result.LastPass)-1]
	if deployOutcome.Phase != PhaseDeploy {
		t.Fatalf("expected deploy outcome last, got %s", deployOutcome.Phase)
	}
	if !deployOutcome.Success {
		t.Error("expected the retried deploy outcome to be recorded as success")
	}
	if deployOutcome.AppliedFix == nil || deployOutcome.AppliedFix.Command != "cdktf destroy --auto-approve" {
		t.Errorf("expected teardown remedy, got %+v", deployOutcome.AppliedFix)
	}

	if backend.counts["cdktf destroy --auto-approve"] != 1 {
		t.Error("expected teardown to run exactly once")
	}
}

func TestPipelineFatalClassificationHasNoRemedy(t *testing.T) {
	commands := DefaultCommands()

	backend := newFakeBackend(func(command string, prior int) (*backends.Result, error) {
		if command == commands[PhaseDeploy] {
			return failure(command, "Error: AccessDenied: not authorized to perform s3:CreateBucket"), nil
		}
		return nil, nil
	})

	p, err := New(backend, nil, nil, 2)
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("pipeline errored: %v", err)
	}

	if result.Success {
		t.Error("expected pipeline failure")
	}
	if result.FailedPhase != PhaseDeploy {
		t.Errorf("expected failed phase %s, got %s", PhaseDeploy, result.FailedPhase)
	}

	deployOutcome := result.LastPass[len(result.LastPass)-1]
	if deployOutcome.AppliedFix == nil {
		t.Fatal("expected the classification to be recorded")
	}
	if deployOutcome.AppliedFix.Command != "" {
		t.Errorf("credential denial must not propose a remedy command, got %q", deployOutcome.AppliedFix.Command)
	}
}

func TestPipelineTransportErrorAborts(t *testing.T) {
	backend := newFakeBackend(func(command string, prior int) (*backends.Result, error) {
		return nil, fmt.Errorf("connection reset by peer")
	})

	p, err := New(backend, nil, nil, 3)
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}

	if _, err := p.Run(context.Background()); err == nil {
		t.Fatal("expected transport error to abort the pipeline")
	}

	if len(backend.calls) != 1 {
		t.Errorf("expected a single call before aborting, got %d", len(backend.calls))
	}
}

func TestPipelineRejectsInvalidConfiguration(t *testing.T) {
	backend := newFakeBackend(nil)

	if _, err := New(nil, nil, nil, 3); err == nil {
		t.Error("expected error for nil backend")
	}

	if _, err := New(backend, nil, nil, 0); err == nil {
		t.Error("expected error for zero pass budget")
	}

	incomplete := Commands{PhaseBuild: "npm run build"}
	if _, err := New(backend, nil, incomplete, 3); err == nil {
		t.Error("expected error for incomplete command set")
	}
}
