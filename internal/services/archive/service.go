// Package archive wraps tar+gzip for terminal job archiving.
package archive

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hostvault/hostvault/internal/models"
	"github.com/rs/zerolog"
)

// Tool is the external binary this service invokes.
const Tool = "tar"

// Service defines the interface for archive operations.
type Service interface {
	Archive(ctx context.Context, srcDir, destFile string) (*models.ArchiveResult, error)
	Extract(ctx context.Context, archiveFile, destDir string) (*models.ArchiveResult, error)
	Members(ctx context.Context, archiveFile string) ([]string, error)
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Execute runs a command and returns its output.
func (e *DefaultExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// Impl implements the Service interface.
type Impl struct {
	executor CommandExecutor
	logger   zerolog.Logger
}

// New creates a new archive service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: &DefaultExecutor{},
		logger:   logger,
	}
}

// NewWithExecutor creates a new archive service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
	}
}

// Archive packs srcDir into a gzip-compressed tarball at destFile. Member
// paths are rooted at the directory's base name so extraction reproduces the
// job directory.
func (s *Impl) Archive(ctx context.Context, srcDir, destFile string) (*models.ArchiveResult, error) {
	s.logger.Info().Str("source", srcDir).Str("dest", destFile).Msg("creating archive")

	start := time.Now()

	output, err := s.executor.Execute(ctx, Tool,
		"-C", filepath.Dir(srcDir), "-czf", destFile, filepath.Base(srcDir))
	if err != nil {
		return &models.ArchiveResult{
			Duration: time.Since(start),
			Error:    fmt.Errorf("tar failed: %w, output: %s", err, string(output)),
		}, nil
	}

	result := &models.ArchiveResult{Path: destFile, Duration: time.Since(start)}
	if info, err := os.Stat(destFile); err == nil {
		result.SizeBytes = info.Size()
	}

	s.logger.Info().
		Str("archive", destFile).
		Int64("size", result.SizeBytes).
		Dur("duration", result.Duration).
		Msg("archive created")

	return result, nil
}

// Extract unpacks an archive into destDir.
func (s *Impl) Extract(ctx context.Context, archiveFile, destDir string) (*models.ArchiveResult, error) {
	s.logger.Info().Str("archive", archiveFile).Str("dest", destDir).Msg("extracting archive")

	start := time.Now()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating destination: %w", err)
	}

	output, err := s.executor.Execute(ctx, Tool, "-xzf", archiveFile, "-C", destDir)
	if err != nil {
		return &models.ArchiveResult{
			Duration: time.Since(start),
			Error:    fmt.Errorf("tar failed: %w, output: %s", err, string(output)),
		}, nil
	}

	return &models.ArchiveResult{Path: destDir, Duration: time.Since(start)}, nil
}

// Members lists the archive's member paths. Directory members keep their
// trailing slash, letting callers distinguish them from regular files.
func (s *Impl) Members(ctx context.Context, archiveFile string) ([]string, error) {
	output, err := s.executor.Execute(ctx, Tool, "-tzf", archiveFile)
	if err != nil {
		return nil, fmt.Errorf("listing archive: %w, output: %s", err, string(output))
	}

	var members []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			members = append(members, line)
		}
	}

	s.logger.Debug().Int("count", len(members)).Str("archive", archiveFile).Msg("archive members listed")
	return members, nil
}
