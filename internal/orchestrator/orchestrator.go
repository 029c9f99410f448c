// Package orchestrator drives a job's step plan: confirmation, execution,
// journaling, reporting and post-run verification.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/hostvault/hostvault/internal/confirm"
	"github.com/hostvault/hostvault/internal/job"
	"github.com/hostvault/hostvault/internal/journal"
	"github.com/hostvault/hostvault/internal/manifest"
	"github.com/hostvault/hostvault/internal/models"
	"github.com/hostvault/hostvault/internal/report"
	"github.com/hostvault/hostvault/internal/verify"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Options are per-invocation switches.
type Options struct {
	DryRun bool
}

// Service defines the interface for the job orchestrator.
type Service interface {
	Run(ctx context.Context, j models.Job, plan *models.Plan, cfg models.Config, opts Options) (*models.RunReport, error)
}

// Impl implements the orchestrator Service interface.
type Impl struct {
	gate     confirm.Gate
	verifier verify.Service
	logger   zerolog.Logger
}

// New creates a new orchestrator.
func New(logger zerolog.Logger, gate confirm.Gate) *Impl {
	return &Impl{
		gate:     gate,
		verifier: verify.New(logger),
		logger:   logger,
	}
}

// NewWithVerifier creates a new orchestrator with a custom verifier (for testing).
func NewWithVerifier(logger zerolog.Logger, gate confirm.Gate, verifier verify.Service) *Impl {
	return &Impl{
		gate:     gate,
		verifier: verifier,
		logger:   logger,
	}
}

// confirmPolicy is the forward-only scope of a "yes to all" answer. It is a
// per-run value: it never survives into a resume and never reaches back to
// steps already declined.
type confirmPolicy struct {
	allRemaining         bool
	allCoversDestructive bool
}

// Run drives the plan against the job directory. The journal makes the run
// resumable: committed steps are skipped, everything else is offered again.
// The report is flushed even when a step fails partway through.
func (o *Impl) Run(ctx context.Context, j models.Job, plan *models.Plan, cfg models.Config, opts Options) (*models.RunReport, error) {
	if err := preflight(plan, opts); err != nil {
		return nil, err
	}

	release, err := journal.AcquireLock(j.Dir)
	if err != nil {
		return nil, err
	}
	defer release()

	jnl, err := journal.Open(j.Dir)
	if err != nil {
		return nil, err
	}

	b := report.New(j)
	policy := &confirmPolicy{allCoversDestructive: cfg.Confirm.YesAllCoversDestructive}

	o.logger.Info().
		Str("job", j.Dir).
		Str("mode", string(j.Mode)).
		Bool("dry_run", opts.DryRun).
		Msg("starting run")

	runErr := o.runSteps(ctx, j, plan, jnl, b, policy, cfg, opts)

	if runErr == nil && !opts.DryRun {
		o.runVerification(ctx, j, cfg, b)

		if jnl.Done("compress") || jnl.Done("encrypt") {
			if err := job.SetPhase(&j, models.PhaseArchived); err != nil {
				o.logger.Warn().Err(err).Msg("failed to update job phase")
			}
		}
	}

	r := b.Finish()
	if !opts.DryRun {
		if err := report.WriteFile(r); err != nil {
			o.logger.Warn().Err(err).Msg("failed to write report file")
		}
	}

	if runErr != nil {
		return r, runErr
	}

	o.logger.Info().
		Dur("duration", r.FinishedAt.Sub(r.StartedAt)).
		Msg("run completed")

	return r, nil
}

func (o *Impl) runSteps(
	ctx context.Context,
	j models.Job,
	plan *models.Plan,
	jnl *journal.Journal,
	b *report.Builder,
	policy *confirmPolicy,
	cfg models.Config,
	opts Options,
) error {
	if cfg.Parallel && plan.Independent && !opts.DryRun {
		if err := o.runStepsParallel(ctx, j, plan.Steps, jnl, b, policy, opts); err != nil {
			return err
		}
	} else {
		for _, step := range plan.Steps {
			proceed, err := o.resolveStep(ctx, step, jnl, b, policy)
			if err != nil {
				return err
			}
			if !proceed {
				continue
			}
			if err := o.executeStep(ctx, j, step, jnl, b, opts); err != nil {
				return err
			}
		}
	}

	// Post-steps (compress, encrypt) run strictly after the captures and
	// strictly in order: encryption consumes the archive.
	for _, step := range plan.PostSteps {
		proceed, err := o.resolveStep(ctx, step, jnl, b, policy)
		if err != nil {
			return err
		}
		if !proceed {
			continue
		}
		if err := o.executeStep(ctx, j, step, jnl, b, opts); err != nil {
			return err
		}
	}

	return nil
}

// runStepsParallel resolves every confirmation and applicability check up
// front, then executes non-destructive steps concurrently. Only independent
// plans may take this path: pre-run resolution misfires when one step's
// output feeds another step's predicate. Destructive steps stay sequential
// and run only after the concurrent batch has finished, so they never
// overlap with anything.
func (o *Impl) runStepsParallel(
	ctx context.Context,
	j models.Job,
	steps []models.Step,
	jnl *journal.Journal,
	b *report.Builder,
	policy *confirmPolicy,
	opts Options,
) error {
	var concurrent, serial []models.Step
	for _, step := range steps {
		proceed, err := o.resolveStep(ctx, step, jnl, b, policy)
		if err != nil {
			return err
		}
		if !proceed {
			continue
		}
		if step.Destructive {
			serial = append(serial, step)
		} else {
			concurrent = append(concurrent, step)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, step := range concurrent {
		step := step
		g.Go(func() error {
			return o.executeStep(gctx, j, step, jnl, b, opts)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, step := range serial {
		if err := o.executeStep(ctx, j, step, jnl, b, opts); err != nil {
			return err
		}
	}

	return nil
}

// resolveStep decides whether a step should execute: journal skip,
// applicability, primary confirmation and the destructive secondary
// confirmation. Skip outcomes are recorded here; declined steps are never
// journaled, so a future resume offers them again.
func (o *Impl) resolveStep(
	ctx context.Context,
	step models.Step,
	jnl *journal.Journal,
	b *report.Builder,
	policy *confirmPolicy,
) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if !step.Transient && jnl.Done(step.ID) {
		o.logger.Info().Str("step", step.ID).Msg("already done, skipping")
		b.Add(step.ID, models.OutcomeAlreadyDone, 0, "")
		return false, nil
	}

	if step.Applicable != nil {
		ok, err := step.Applicable(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			o.logger.Debug().Str("step", step.ID).Msg("not applicable, skipping")
			b.Add(step.ID, models.OutcomeInapplicable, 0, "")
			return false, nil
		}
	}

	decision := confirm.Yes
	if !policy.allRemaining || (step.Destructive && !policy.allCoversDestructive) {
		var err error
		decision, err = o.gate.Ask(fmt.Sprintf("%s: %s", step.ID, step.Description))
		if err != nil {
			return false, err
		}
	}
	if decision == confirm.YesToAll {
		policy.allRemaining = true
	}
	if decision == confirm.No {
		o.logger.Info().Str("step", step.ID).Msg("declined")
		b.Add(step.ID, models.OutcomeDeclined, 0, "")
		return false, nil
	}

	if step.Destructive && step.ConfirmTarget != "" {
		ok, err := o.gate.Confirm(fmt.Sprintf("%s will irreversibly overwrite %s, proceed", step.ID, step.ConfirmTarget))
		if err != nil {
			return false, err
		}
		if !ok {
			o.logger.Warn().
				Str("step", step.ID).
				Str("target", step.ConfirmTarget).
				Msg("destructive confirmation denied")
			b.Add(step.ID, models.OutcomeDeclined, 0, "")
			return false, nil
		}
	}

	return true, nil
}

// executeStep runs the collaborator call and commits the result. The
// durability order is fixed: manifest, then journal flush, then report. A
// crash before the journal flush re-runs the step on resume.
func (o *Impl) executeStep(
	ctx context.Context,
	j models.Job,
	step models.Step,
	jnl *journal.Journal,
	b *report.Builder,
	opts Options,
) error {
	if opts.DryRun {
		o.logger.Info().Str("step", step.ID).Msg("dry run, would execute")
		b.Add(step.ID, models.OutcomePlanned, 0, "")
		return nil
	}

	o.logger.Info().Str("step", step.ID).Msg(step.Description)
	start := time.Now()

	if err := step.Run(ctx); err != nil {
		return o.failStep(j, step.ID, time.Since(start), b, err)
	}

	if step.ManifestPath != "" {
		n, err := manifest.AppendTree(j.Dir, step.ManifestPath)
		if err != nil {
			return o.failStep(j, step.ID, time.Since(start), b, fmt.Errorf("recording manifest: %w", err))
		}
		o.logger.Debug().Str("step", step.ID).Int("files", n).Msg("manifest recorded")
	}

	if !step.Transient {
		if err := jnl.Append(step.ID); err != nil {
			return o.failStep(j, step.ID, time.Since(start), b, err)
		}
	}

	duration := time.Since(start)
	b.Add(step.ID, models.OutcomeDone, duration, "")

	o.logger.Info().
		Str("step", step.ID).
		Dur("duration", duration).
		Msg("step completed")

	return nil
}

// failStep records a step failure in the error log and the report, then
// returns the fatal StepExecutionError. The journal is left without the
// step, so resuming retries it; destructive steps are simply offered again
// rather than retried automatically.
func (o *Impl) failStep(j models.Job, stepID string, duration time.Duration, b *report.Builder, err error) error {
	o.logger.Error().Str("step", stepID).Err(err).Msg("step failed")
	b.Add(stepID, models.OutcomeFailed, duration, err.Error())

	if logErr := appendErrorLog(j.Dir, stepID, err); logErr != nil {
		o.logger.Warn().Err(logErr).Msg("failed to write error log")
	}

	return &models.StepExecutionError{StepID: stepID, Err: err}
}

func (o *Impl) runVerification(ctx context.Context, j models.Job, cfg models.Config, b *report.Builder) {
	result, err := o.verifier.Verify(ctx, j, cfg)
	if err != nil {
		o.logger.Warn().Err(err).Msg("verification could not run")
		return
	}

	b.SetVerification(result)
	if !result.OK {
		// Reported, never fatal: the artifact exists and the operator
		// decides what to do with it.
		o.logger.Warn().Str("reason", result.Reason).Msg("verification failed")
	}
}

// preflight checks external tools and privileges before any step runs.
func preflight(plan *models.Plan, opts Options) error {
	seen := make(map[string]struct{}, len(plan.Steps)+len(plan.PostSteps))
	for _, step := range append(append([]models.Step{}, plan.Steps...), plan.PostSteps...) {
		if _, dup := seen[step.ID]; dup {
			return &models.ConfigurationError{Reason: fmt.Sprintf("duplicate step identifier %q", step.ID)}
		}
		seen[step.ID] = struct{}{}
	}

	if opts.DryRun {
		return nil
	}

	for _, tool := range plan.Tools {
		if _, err := exec.LookPath(tool); err != nil {
			return &models.ConfigurationError{Reason: fmt.Sprintf("required tool %q not found", tool), Err: err}
		}
	}

	if plan.NeedsRoot && os.Geteuid() != 0 {
		return &models.ConfigurationError{Reason: "this plan writes to devices or system paths and needs root"}
	}

	return nil
}

func appendErrorLog(jobDir, stepID string, stepErr error) error {
	path := filepath.Join(jobDir, models.ErrorLogFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = fmt.Fprintf(f, "%s step=%s error=%v\n", time.Now().Format(time.RFC3339), stepID, stepErr)
	return err
}
