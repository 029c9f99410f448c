// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hostvault/hostvault/internal/models"
	"github.com/spf13/viper"
)

// reservedStepIDs are step identifiers the registry hands out itself; a tree
// id that collides with one would break journal bookkeeping.
var reservedStepIDs = map[string]bool{
	"packages":   true,
	"compress":   true,
	"encrypt":    true,
	"decrypt":    true,
	"extract":    true,
	"disk-image": true,
	"snapshot":   true,
}

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a string (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.Config, error) {
	cfg := &models.Config{}

	cfg.Destination = p.expandEnv(p.v.GetString("destination"))
	if cfg.Destination == "" {
		return nil, fmt.Errorf("destination is required")
	}

	cfg.Mode = models.Mode(p.v.GetString("mode"))
	if cfg.Mode == "" {
		cfg.Mode = models.ModeSelective
	}
	switch cfg.Mode {
	case models.ModeSelective, models.ModeDiskImage, models.ModeSnapshot:
	default:
		return nil, fmt.Errorf("mode must be one of: selective, disk-image, snapshot")
	}

	cfg.Confirm = models.ConfirmSettings{
		AssumeYes:               p.v.GetBool("confirm.assume_yes"),
		YesAllCoversDestructive: p.v.GetBool("confirm.yes_all_covers_destructive"),
	}

	cfg.Parallel = p.v.GetBool("parallel")

	if err := p.parseTrees(cfg); err != nil {
		return nil, err
	}

	// The package list capture only makes sense for selective backups; the
	// other modes carry the package state inside their payload.
	cfg.Packages = models.PackageSettings{Enabled: cfg.Mode == models.ModeSelective}
	if p.v.IsSet("packages.enabled") {
		cfg.Packages.Enabled = p.v.GetBool("packages.enabled")
	}

	// The snapshot store compresses internally, so archiving defaults off
	// there and on everywhere else.
	cfg.Archive = models.ArchiveSettings{Enabled: cfg.Mode != models.ModeSnapshot}
	if p.v.IsSet("archive.enabled") {
		cfg.Archive.Enabled = p.v.GetBool("archive.enabled")
	}

	// Parse optional encryption settings.
	if p.v.IsSet("encrypt") {
		cfg.Encrypt = &models.EncryptSettings{
			Passphrase: p.expandEnv(p.v.GetString("encrypt.passphrase")),
		}

		if cfg.Encrypt.Passphrase == "" {
			return nil, fmt.Errorf("encrypt.passphrase is required when encrypt is configured")
		}
		if !cfg.Archive.Enabled {
			return nil, fmt.Errorf("encrypt requires archive.enabled: encryption consumes the compressed archive")
		}
	}

	// Parse optional snapshot store config (required in snapshot mode).
	if p.v.IsSet("snapshot") {
		cfg.Snapshot = &models.SnapshotConfig{
			Repository:  p.expandEnv(p.v.GetString("snapshot.repository")),
			Passphrase:  p.expandEnv(p.v.GetString("snapshot.passphrase")),
			Compression: p.v.GetString("snapshot.compression"),
		}

		if cfg.Snapshot.Repository == "" {
			return nil, fmt.Errorf("snapshot.repository is required when snapshot is configured")
		}
		if cfg.Snapshot.Passphrase == "" {
			return nil, fmt.Errorf("snapshot.passphrase is required when snapshot is configured")
		}
		if cfg.Snapshot.Compression == "" {
			cfg.Snapshot.Compression = "lz4"
		}
	}
	if cfg.Mode == models.ModeSnapshot && cfg.Snapshot == nil {
		return nil, fmt.Errorf("snapshot section is required when mode is snapshot")
	}

	// Parse optional disk imaging config (required in disk-image mode).
	if p.v.IsSet("disk_image") {
		cfg.DiskImage = &models.DiskImageConfig{
			Device: p.v.GetString("disk_image.device"),
			Rescue: p.v.GetBool("disk_image.rescue"),
		}

		if cfg.DiskImage.Device == "" {
			return nil, fmt.Errorf("disk_image.device is required when disk_image is configured")
		}
		if !strings.HasPrefix(cfg.DiskImage.Device, "/dev/") {
			return nil, fmt.Errorf("disk_image.device must be a /dev path, got %q", cfg.DiskImage.Device)
		}
	}
	if cfg.Mode == models.ModeDiskImage && cfg.DiskImage == nil {
		return nil, fmt.Errorf("disk_image section is required when mode is disk-image")
	}

	return cfg, nil
}

func (p *Parser) parseTrees(cfg *models.Config) error {
	if !p.v.IsSet("trees") {
		// The default set covers the usual host state.
		if cfg.Mode == models.ModeSelective || cfg.Mode == models.ModeSnapshot {
			cfg.Trees = []models.TreeSpec{
				{ID: "etc", Path: "/etc"},
				{ID: "home", Path: "/home"},
			}
		}
		return nil
	}

	var trees []struct {
		ID   string `mapstructure:"id"`
		Path string `mapstructure:"path"`
	}
	if err := p.v.UnmarshalKey("trees", &trees); err != nil {
		return fmt.Errorf("parsing trees: %w", err)
	}

	seen := make(map[string]bool, len(trees))
	for i, t := range trees {
		if t.ID == "" {
			return fmt.Errorf("trees[%d].id is required", i)
		}
		if t.Path == "" {
			return fmt.Errorf("trees[%d].path is required", i)
		}
		if reservedStepIDs[t.ID] {
			return fmt.Errorf("tree id %q collides with a built-in step", t.ID)
		}
		if strings.HasPrefix(t.ID, "restore-") {
			return fmt.Errorf("tree id %q must not start with restore-", t.ID)
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate tree id %q", t.ID)
		}
		seen[t.ID] = true

		cfg.Trees = append(cfg.Trees, models.TreeSpec{ID: t.ID, Path: t.Path})
	}

	if len(cfg.Trees) == 0 && cfg.Mode != models.ModeDiskImage {
		return fmt.Errorf("trees must not be empty")
	}

	return nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on a loaded configuration.
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.Destination == "" {
		return fmt.Errorf("destination is required")
	}

	switch cfg.Mode {
	case models.ModeSelective:
		if len(cfg.Trees) == 0 {
			return fmt.Errorf("trees must not be empty in selective mode")
		}
	case models.ModeDiskImage:
		if cfg.DiskImage == nil {
			return fmt.Errorf("disk_image section is required when mode is disk-image")
		}
	case models.ModeSnapshot:
		if cfg.Snapshot == nil {
			return fmt.Errorf("snapshot section is required when mode is snapshot")
		}
	default:
		return fmt.Errorf("mode must be one of: selective, disk-image, snapshot")
	}

	return nil
}
