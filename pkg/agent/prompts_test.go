package agent

import (
	"strings"
	"testing"

	"github.com/infrapilot/infrapilot/pkg/pipeline"
)

const originalPrompt = "create an S3 bucket named artifacts"

func TestFixPrompt_CarriesOriginalAndOutputs(t *testing.T) {
	prompt := FixPrompt(originalPrompt, pipeline.PhaseSynthesize, []string{
		"Error: Cannot find module '@cdktf/provider-aws'",
		"",
		"synthesis failed",
	})

	if !strings.HasPrefix(prompt, originalPrompt) {
		t.Errorf("fix prompt does not start with the original request: %q", prompt)
	}
	if !strings.Contains(prompt, "synthesize phase") {
		t.Errorf("fix prompt does not name the failed phase: %q", prompt)
	}
	if !strings.Contains(prompt, "Cannot find module") || !strings.Contains(prompt, "synthesis failed") {
		t.Errorf("fix prompt dropped captured outputs: %q", prompt)
	}
}

func TestImprovementPrompt_SortsOutputKeys(t *testing.T) {
	outputs := map[string]string{
		"zone":       "eu-west-1a",
		"bucketName": "artifacts",
		"queueUrl":   "https://sqs.example.com/jobs",
	}

	prompt := ImprovementPrompt(originalPrompt, outputs)

	if !strings.HasPrefix(prompt, originalPrompt) {
		t.Errorf("improvement prompt does not start with the original request: %q", prompt)
	}
	bucket := strings.Index(prompt, "bucketName")
	queue := strings.Index(prompt, "queueUrl")
	zone := strings.Index(prompt, "zone")
	if bucket < 0 || queue < 0 || zone < 0 {
		t.Fatalf("improvement prompt dropped outputs: %q", prompt)
	}
	if !(bucket < queue && queue < zone) {
		t.Errorf("output keys are not sorted: %q", prompt)
	}
}

func TestRecoveryPrompt_CarriesSummary(t *testing.T) {
	prompt := RecoveryPrompt(originalPrompt, "generation returned no files")

	if !strings.HasPrefix(prompt, originalPrompt) {
		t.Errorf("recovery prompt does not start with the original request: %q", prompt)
	}
	if !strings.Contains(prompt, "generation returned no files") {
		t.Errorf("recovery prompt dropped the summary: %q", prompt)
	}
}

func TestNextPrompt_Dispatch(t *testing.T) {
	tests := []struct {
		name   string
		record *CycleRecord
		want   string
	}{
		{
			name: "deployed but unmet goes to improvement",
			record: &CycleRecord{
				Deployed:          true,
				ExpectationMet:    false,
				DeploymentOutputs: map[string]string{"bucketName": "artifacts"},
			},
			want: "did not produce the expected result",
		},
		{
			name: "phase failure goes to fix",
			record: &CycleRecord{
				FailureClass: FailureClassPhase,
				Pipeline: &pipeline.Result{
					FailedPhase: pipeline.PhaseBuild,
					History: []pipeline.Outcome{
						{Phase: pipeline.PhaseBuild, Pass: 1, Success: false, Output: "tsc exploded"},
					},
				},
			},
			want: "failed during the build phase",
		},
		{
			name: "generation failure goes to recovery",
			record: &CycleRecord{
				FailureClass: FailureClassGeneration,
				ErrorSummary: "service unavailable",
			},
			want: "could not be processed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt := NextPrompt(originalPrompt, tt.record)
			if !strings.HasPrefix(prompt, originalPrompt) {
				t.Errorf("prompt does not start with the original request: %q", prompt)
			}
			if !strings.Contains(prompt, tt.want) {
				t.Errorf("prompt %q does not contain %q", prompt, tt.want)
			}
		})
	}
}
