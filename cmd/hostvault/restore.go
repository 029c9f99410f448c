package main

import (
	"fmt"
	"os"

	"github.com/hostvault/hostvault/internal/job"
	"github.com/hostvault/hostvault/internal/orchestrator"
	"github.com/hostvault/hostvault/internal/registry"
	"github.com/hostvault/hostvault/internal/report"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	restoreJobDir string
	restoreTarget string
	restoreDryRun bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore host state from an existing job",
	Long: `Restore the state captured by a job back onto the host. Every
restoring step overwrites live data and is confirmed individually; disk
and snapshot restores require a second confirmation naming the target.
Use --target to restore into an alternate root instead of /.`,
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().StringVar(&restoreJobDir, "job", "", "job directory to restore from (required)")
	restoreCmd.Flags().StringVar(&restoreTarget, "target", "/", "root directory restored trees are written under")
	restoreCmd.Flags().BoolVar(&restoreDryRun, "dry-run", false, "resolve the plan without executing any step")
}

func runRestore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if cfg == nil {
		return err
	}

	if restoreJobDir == "" {
		log.Error().Msg("--job is required for restore")
		return fmt.Errorf("--job is required")
	}

	j, err := job.Open(restoreJobDir)
	if err != nil {
		log.Error().Err(err).Str("job", restoreJobDir).Msg("failed to open job")
		return err
	}

	log.Info().
		Str("job", j.Dir).
		Str("mode", string(j.Mode)).
		Str("target", restoreTarget).
		Msg("restoring job")

	svcs := registry.NewServices(log.Logger)
	plan, err := registry.RestorePlan(*cfg, j, restoreTarget, svcs)
	if err != nil {
		log.Error().Err(err).Msg("failed to build restore plan")
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	orch := orchestrator.New(log.Logger, newGate(*cfg))
	r, runErr := orch.Run(ctx, j, plan, *cfg, orchestrator.Options{DryRun: restoreDryRun})

	if r != nil {
		if err := report.Render(os.Stdout, r); err != nil {
			log.Warn().Err(err).Msg("failed to render report")
		}
	}

	if runErr != nil {
		return failRun(j, runErr)
	}

	log.Info().Str("job", j.Dir).Msg("restore completed successfully")
	return nil
}
