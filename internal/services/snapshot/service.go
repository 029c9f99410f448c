// Package snapshot wraps borg, the deduplicating snapshot store. The store
// handles its own compression, encryption and retention; this service only
// drives it.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/hostvault/hostvault/internal/models"
	"github.com/rs/zerolog"
)

// Tool is the external binary this service invokes.
const Tool = "borg"

// Service defines the interface for snapshot-store operations.
type Service interface {
	InitIfNeeded(ctx context.Context, cfg models.SnapshotConfig) error
	Create(ctx context.Context, cfg models.SnapshotConfig, name string, sources []string) (*models.SnapshotResult, error)
	Restore(ctx context.Context, cfg models.SnapshotConfig, archiveID, dest string) (*models.SnapshotResult, error)
	Check(ctx context.Context, cfg models.SnapshotConfig) (*models.SnapshotCheckResult, error)
	List(ctx context.Context, cfg models.SnapshotConfig) ([]string, error)
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	ExecuteWithEnv(ctx context.Context, env []string, name string, args ...string) ([]byte, error)
	ExecuteWithEnvInDir(ctx context.Context, env []string, dir, name string, args ...string) ([]byte, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// ExecuteWithEnv runs a command with additional environment variables.
func (e *DefaultExecutor) ExecuteWithEnv(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	return cmd.CombinedOutput()
}

// ExecuteWithEnvInDir runs a command in a working directory. Borg extracts
// into the current directory, so restores need this.
func (e *DefaultExecutor) ExecuteWithEnvInDir(ctx context.Context, env []string, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Impl implements the Service interface.
type Impl struct {
	executor CommandExecutor
	logger   zerolog.Logger
}

// New creates a new snapshot service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: &DefaultExecutor{},
		logger:   logger,
	}
}

// NewWithExecutor creates a new snapshot service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
	}
}

func buildEnv(cfg models.SnapshotConfig) []string {
	return []string{
		fmt.Sprintf("BORG_REPO=%s", cfg.Repository),
		fmt.Sprintf("BORG_PASSPHRASE=%s", cfg.Passphrase),
	}
}

// InitIfNeeded initializes the repository unless it already exists.
func (s *Impl) InitIfNeeded(ctx context.Context, cfg models.SnapshotConfig) error {
	s.logger.Info().Str("repository", cfg.Repository).Msg("checking snapshot store")

	env := buildEnv(cfg)

	_, err := s.executor.ExecuteWithEnv(ctx, env, Tool, "info", "--json")
	if err == nil {
		s.logger.Info().Msg("snapshot store already initialized")
		return nil
	}

	s.logger.Info().Msg("initializing snapshot store")
	output, err := s.executor.ExecuteWithEnv(ctx, env, Tool, "init", "--encryption=repokey-blake2")
	if err != nil {
		return fmt.Errorf("failed to initialize snapshot store: %w, output: %s", err, string(output))
	}

	s.logger.Info().Msg("snapshot store initialized")
	return nil
}

// createArchive is the relevant part of borg create --json output.
type createArchive struct {
	Archive struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	} `json:"archive"`
}

// Create stores the sources as a new archive named after the job.
func (s *Impl) Create(ctx context.Context, cfg models.SnapshotConfig, name string, sources []string) (*models.SnapshotResult, error) {
	s.logger.Info().Str("archive", name).Strs("sources", sources).Msg("creating snapshot")

	start := time.Now()
	env := buildEnv(cfg)

	compression := cfg.Compression
	if compression == "" {
		compression = "lz4"
	}

	args := []string{"create", "--json", "--compression", compression, "::" + name}
	args = append(args, sources...)

	output, err := s.executor.ExecuteWithEnv(ctx, env, Tool, args...)
	if err != nil {
		return &models.SnapshotResult{
			Duration: time.Since(start),
			Error:    fmt.Errorf("snapshot create failed: %w, output: %s", err, string(output)),
		}, nil
	}

	result := &models.SnapshotResult{ArchiveID: name, Duration: time.Since(start)}

	var created createArchive
	if err := json.Unmarshal(output, &created); err == nil && created.Archive.Name != "" {
		result.ArchiveID = created.Archive.Name
	}

	s.logger.Info().
		Str("archive", result.ArchiveID).
		Dur("duration", result.Duration).
		Msg("snapshot created")

	return result, nil
}

// Restore extracts an archive into dest.
func (s *Impl) Restore(ctx context.Context, cfg models.SnapshotConfig, archiveID, dest string) (*models.SnapshotResult, error) {
	s.logger.Info().Str("archive", archiveID).Str("dest", dest).Msg("restoring snapshot")

	start := time.Now()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("creating destination: %w", err)
	}

	output, err := s.executor.ExecuteWithEnvInDir(ctx, buildEnv(cfg), dest, Tool, "extract", "::"+archiveID)
	if err != nil {
		return &models.SnapshotResult{
			Duration: time.Since(start),
			Error:    fmt.Errorf("snapshot restore failed: %w, output: %s", err, string(output)),
		}, nil
	}

	result := &models.SnapshotResult{ArchiveID: archiveID, Duration: time.Since(start)}

	s.logger.Info().
		Str("archive", archiveID).
		Dur("duration", result.Duration).
		Msg("snapshot restored")

	return result, nil
}

// Check runs the store's built-in consistency check.
func (s *Impl) Check(ctx context.Context, cfg models.SnapshotConfig) (*models.SnapshotCheckResult, error) {
	s.logger.Info().Str("repository", cfg.Repository).Msg("checking snapshot store consistency")

	start := time.Now()

	output, err := s.executor.ExecuteWithEnv(ctx, buildEnv(cfg), Tool, "check")
	duration := time.Since(start)

	if err != nil {
		return &models.SnapshotCheckResult{
			Passed:   false,
			Duration: duration,
			Error:    fmt.Errorf("snapshot check failed: %w, output: %s", err, string(output)),
		}, nil
	}

	s.logger.Info().Dur("duration", duration).Msg("snapshot store check passed")

	return &models.SnapshotCheckResult{Passed: true, Duration: duration}, nil
}

// List returns the archive names in the repository.
func (s *Impl) List(ctx context.Context, cfg models.SnapshotConfig) ([]string, error) {
	output, err := s.executor.ExecuteWithEnv(ctx, buildEnv(cfg), Tool, "list", "--short")
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w, output: %s", err, string(output))
	}

	var names []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}

	s.logger.Debug().Int("count", len(names)).Msg("snapshots listed")
	return names, nil
}
