package main

import (
	"fmt"

	"github.com/hostvault/hostvault/internal/job"
	"github.com/hostvault/hostvault/internal/models"
	"github.com/hostvault/hostvault/internal/verify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var verifyJobDir string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the integrity of an existing job",
	Long: `Check a job's captured data against its checksum manifest (or, in
snapshot mode, ask the snapshot store to check itself) without running any
backup or restore step.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyJobDir, "job", "", "job directory to verify (required)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if cfg == nil {
		return err
	}

	if verifyJobDir == "" {
		log.Error().Msg("--job is required for verify")
		return fmt.Errorf("--job is required")
	}

	j, err := job.Open(verifyJobDir)
	if err != nil {
		log.Error().Err(err).Str("job", verifyJobDir).Msg("failed to open job")
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	verifier := verify.New(log.Logger)
	result, err := verifier.Verify(ctx, j, *cfg)
	if err != nil {
		log.Error().Err(err).Str("job", j.Dir).Msg("verification could not run")
		return err
	}

	if !result.OK {
		log.Error().
			Str("job", j.Dir).
			Str("reason", result.Reason).
			Msg("verification failed")
		return &models.VerificationError{Reason: result.Reason}
	}

	log.Info().
		Str("job", j.Dir).
		Int("files", result.FilesExpected).
		Dur("duration", result.Duration).
		Msg("verification passed")
	return nil
}
