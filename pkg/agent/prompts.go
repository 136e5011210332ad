package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/infrapilot/infrapilot/pkg/pipeline"
)

// FixPrompt builds the prompt for the next cycle after a phase failure. The
// original request is always carried verbatim so corrective context
// accumulates on top of it rather than replacing it.
func FixPrompt(original string, phase pipeline.Phase, outputs []string) string {
	var b strings.Builder
	b.WriteString(original)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "The previous attempt failed during the %s phase. Fix the following errors and regenerate the complete project:\n", phase)
	for _, out := range outputs {
		out = strings.TrimSpace(out)
		if out == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(out)
		b.WriteString("\n")
	}
	return b.String()
}

// ImprovementPrompt builds the prompt for the next cycle after a deployment
// that did not satisfy the request. Output keys are sorted so the prompt is
// deterministic for a given outcome.
func ImprovementPrompt(original string, outputs map[string]string) string {
	var b strings.Builder
	b.WriteString(original)
	b.WriteString("\n\n")
	b.WriteString("The previous attempt deployed successfully but did not produce the expected result. Adjust the project so the deployment satisfies the request.")
	if len(outputs) > 0 {
		b.WriteString(" The deployment produced these outputs:\n")
		keys := make([]string, 0, len(outputs))
		for k := range outputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", k, outputs[k])
		}
	}
	return b.String()
}

// RecoveryPrompt builds the prompt for the next cycle after a failure with no
// usable diagnostic output, such as a generation or validation failure.
func RecoveryPrompt(original, summary string) string {
	var b strings.Builder
	b.WriteString(original)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "The previous attempt could not be processed: %s. Regenerate the complete project from scratch.", summary)
	return b.String()
}

// NextPrompt derives the prompt for the following cycle from the record of
// the one that just finished.
func NextPrompt(original string, record *CycleRecord) string {
	if record.Deployed && !record.ExpectationMet {
		return ImprovementPrompt(original, record.DeploymentOutputs)
	}
	if record.FailureClass == FailureClassPhase && record.Pipeline != nil {
		return FixPrompt(original, record.Pipeline.FailedPhase, record.Pipeline.FailureOutputs())
	}
	return RecoveryPrompt(original, record.ErrorSummary)
}
