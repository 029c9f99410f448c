package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/hostvault/hostvault/internal/job"
	"github.com/hostvault/hostvault/internal/models"
	"github.com/hostvault/hostvault/internal/orchestrator"
	"github.com/hostvault/hostvault/internal/registry"
	"github.com/hostvault/hostvault/internal/report"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	backupJobDir string
	backupDryRun bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Run or resume a backup job",
	Long: `Run a backup job in the configured mode. Without --job a new
timestamped job directory is created under the destination; with --job an
existing job is resumed and already committed steps are skipped.`,
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().StringVar(&backupJobDir, "job", "", "existing job directory to resume")
	backupCmd.Flags().BoolVar(&backupDryRun, "dry-run", false, "resolve the plan without executing any step")
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if cfg == nil {
		return err
	}

	var j models.Job
	if backupJobDir != "" {
		j, err = job.Open(backupJobDir)
		if err != nil {
			log.Error().Err(err).Str("job", backupJobDir).Msg("failed to open job")
			return err
		}
		log.Info().Str("job", j.Dir).Str("mode", string(j.Mode)).Msg("resuming job")
	} else {
		j, err = job.Create(cfg.Destination, cfg.Mode, time.Now())
		if err != nil {
			log.Error().Err(err).Msg("failed to create job directory")
			return err
		}
		log.Info().Str("job", j.Dir).Str("mode", string(j.Mode)).Msg("created job")
	}

	svcs := registry.NewServices(log.Logger)
	plan, err := registry.BackupPlan(*cfg, j, svcs)
	if err != nil {
		log.Error().Err(err).Msg("failed to build backup plan")
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	orch := orchestrator.New(log.Logger, newGate(*cfg))
	r, runErr := orch.Run(ctx, j, plan, *cfg, orchestrator.Options{DryRun: backupDryRun})

	if r != nil {
		if err := report.Render(os.Stdout, r); err != nil {
			log.Warn().Err(err).Msg("failed to render report")
		}
	}

	if runErr != nil {
		return failRun(j, runErr)
	}

	log.Info().Str("job", j.Dir).Msg("backup completed successfully")
	return nil
}

// failRun points the operator at the run artifacts before surfacing the
// error to the shell.
func failRun(j models.Job, err error) error {
	log.Error().
		Err(err).
		Str("job", j.Dir).
		Str("error_log", filepath.Join(j.Dir, models.ErrorLogFile)).
		Msg("run failed, resume with --job after fixing the cause")
	return err
}
