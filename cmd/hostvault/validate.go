package main

import (
	"fmt"
	"os"

	"github.com/hostvault/hostvault/internal/config"
	"github.com/hostvault/hostvault/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without executing any backup or restore operations.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return cmd.Help()
	}

	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Error().Str("file", configFile).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", configFile)
	}

	// Load configuration
	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to parse config")
		return err
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  Destination: %s\n", cfg.Destination)
	fmt.Printf("  Mode: %s\n", cfg.Mode)
	fmt.Printf("  Parallel captures: %v\n", cfg.Parallel)
	fmt.Println()
	fmt.Println("Confirmation:")
	fmt.Printf("  Assume yes: %v\n", cfg.Confirm.AssumeYes)
	fmt.Printf("  Yes-to-all covers destructive steps: %v\n", cfg.Confirm.YesAllCoversDestructive)

	if len(cfg.Trees) > 0 {
		fmt.Println()
		fmt.Println("Trees:")
		for _, tree := range cfg.Trees {
			fmt.Printf("  %s: %s\n", tree.ID, tree.Path)
		}
	}

	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  Package list: %v\n", cfg.Packages.Enabled)
	fmt.Printf("  Compression: %v\n", cfg.Archive.Enabled)
	fmt.Printf("  Encryption: %v\n", cfg.Encrypt != nil)

	if cfg.Mode == models.ModeSnapshot && cfg.Snapshot != nil {
		fmt.Println()
		fmt.Println("Snapshot Store:")
		fmt.Printf("  Repository: %s\n", cfg.Snapshot.Repository)
		fmt.Printf("  Compression: %s\n", cfg.Snapshot.Compression)
		fmt.Printf("  Passphrase: (configured)\n")
	}

	if cfg.Mode == models.ModeDiskImage && cfg.DiskImage != nil {
		fmt.Println()
		fmt.Println("Disk Imaging:")
		fmt.Printf("  Device: %s\n", cfg.DiskImage.Device)
		fmt.Printf("  Resumable (ddrescue): %v\n", cfg.DiskImage.Rescue)
	}

	return nil
}
