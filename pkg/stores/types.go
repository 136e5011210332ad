package stores

import "time"

// RunSummary is a persisted run in listing form.
type RunSummary struct {
	ID         string        `json:"id"`
	Prompt     string        `json:"prompt"`
	Outcome    string        `json:"outcome"`
	CycleCount int           `json:"cycle_count"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// CycleRow is a persisted cycle record in listing form.
type CycleRow struct {
	RunID          string    `json:"run_id"`
	Index          int       `json:"index"`
	Outcome        string    `json:"outcome"`
	FailureClass   string    `json:"failure_class,omitempty"`
	ErrorSummary   string    `json:"error_summary,omitempty"`
	Deployed       bool      `json:"deployed"`
	ExpectationMet bool      `json:"expectation_met"`
	Outputs        string    `json:"outputs"`  // JSON blob
	Pipeline       string    `json:"pipeline"` // JSON blob
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
}
