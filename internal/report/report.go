// Package report accumulates per-step timing and outcomes for one run and
// renders them into the job's report file.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hostvault/hostvault/internal/models"
)

// Builder collects step records in execution order. It is safe for
// concurrent use so parallel capture steps can report as they finish.
type Builder struct {
	mu     sync.Mutex
	report models.RunReport
}

// New starts a report for one run of the given job.
func New(j models.Job) *Builder {
	return &Builder{
		report: models.RunReport{
			RunID:     uuid.NewString(),
			JobDir:    j.Dir,
			Mode:      j.Mode,
			StartedAt: time.Now(),
		},
	}
}

// Add appends one step record.
func (b *Builder) Add(stepID string, outcome models.Outcome, duration time.Duration, detail string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report.Steps = append(b.report.Steps, models.StepRecord{
		StepID:   stepID,
		Outcome:  outcome,
		Duration: duration,
		Detail:   detail,
	})
}

// SetVerification attaches the verifier's result.
func (b *Builder) SetVerification(result *models.VerificationResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report.Verification = result
}

// Finish stamps the end time and returns the assembled report.
func (b *Builder) Finish() *models.RunReport {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report.FinishedAt = time.Now()
	r := b.report
	return &r
}

// Render writes the human-readable form of a report.
func Render(w io.Writer, r *models.RunReport) error {
	fmt.Fprintf(w, "hostvault run report\n")
	fmt.Fprintf(w, "run:      %s\n", r.RunID)
	fmt.Fprintf(w, "job:      %s\n", r.JobDir)
	fmt.Fprintf(w, "mode:     %s\n", r.Mode)
	fmt.Fprintf(w, "started:  %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "finished: %s\n", r.FinishedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "elapsed:  %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "\nsteps:\n")

	for _, s := range r.Steps {
		dur := "-"
		if s.Outcome == models.OutcomeDone || s.Outcome == models.OutcomeFailed {
			dur = s.Duration.Round(time.Millisecond).String()
		}
		if s.Detail != "" {
			fmt.Fprintf(w, "  %-14s %-13s %-10s %s\n", s.StepID, s.Outcome, dur, s.Detail)
		} else {
			fmt.Fprintf(w, "  %-14s %-13s %s\n", s.StepID, s.Outcome, dur)
		}
	}

	if r.Verification != nil {
		if r.Verification.OK {
			fmt.Fprintf(w, "\nverification: ok (%d files)\n", r.Verification.FilesFound)
		} else {
			fmt.Fprintf(w, "\nverification: FAILED: %s\n", r.Verification.Reason)
		}
	}

	return nil
}

// WriteFile renders the report into <job>/report.txt, replacing the report
// of any previous run of the same job.
func WriteFile(r *models.RunReport) error {
	path := filepath.Join(r.JobDir, models.ReportFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := Render(f, r); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
