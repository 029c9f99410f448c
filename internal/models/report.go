package models

import "time"

// Outcome classifies how a step ended within one run.
type Outcome string

// Step outcomes.
const (
	OutcomeDone         Outcome = "done"
	OutcomeAlreadyDone  Outcome = "already-done"
	OutcomeDeclined     Outcome = "declined"
	OutcomeInapplicable Outcome = "inapplicable"
	OutcomePlanned      Outcome = "planned" // dry run only
	OutcomeFailed       Outcome = "failed"
)

// StepRecord is one line of the run report.
type StepRecord struct {
	StepID   string
	Outcome  Outcome
	Duration time.Duration
	Detail   string // error text for failed steps, empty otherwise
}

// RunReport is the ordered record of one orchestrator run.
type RunReport struct {
	RunID        string
	JobDir       string
	Mode         Mode
	StartedAt    time.Time
	FinishedAt   time.Time
	Steps        []StepRecord
	Verification *VerificationResult // nil when verification did not run
}

// VerificationResult is the outcome of the post-run integrity check.
type VerificationResult struct {
	OK            bool
	Reason        string // empty when OK
	FilesExpected int
	FilesFound    int
	Duration      time.Duration
}
