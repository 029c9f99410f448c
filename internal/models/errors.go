package models

import "fmt"

// ConfigurationError reports a precondition failure (missing external tool,
// insufficient privilege, unusable job directory). It is fatal before any
// step runs.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// StepExecutionError reports a collaborator failure, attributed to exactly
// one step. It is fatal to the job; the job directory and journal are
// preserved so the job stays resumable.
type StepExecutionError struct {
	StepID string
	Err    error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.StepID, e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// VerificationError reports a failed post-run integrity check. The backup
// artifact still exists; callers surface it as a warning rather than
// failing the job.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed: %s", e.Reason)
}
