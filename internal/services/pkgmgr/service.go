// Package pkgmgr wraps the system package manager (dpkg/apt) for capturing
// and replaying the installed-package list.
package pkgmgr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/hostvault/hostvault/internal/models"
	"github.com/rs/zerolog"
)

// External binaries this service invokes.
const (
	ToolQuery   = "dpkg-query"
	ToolInstall = "apt-get"
)

// Service defines the interface for package-manager operations.
type Service interface {
	QueryInstalledPackages(ctx context.Context) ([]models.PackageSpec, error)
	InstallPackages(ctx context.Context, pkgs []models.PackageSpec) (*models.InstallResult, error)
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
	cmd.Env = append(os.Environ(), "DEBIAN_FRONTEND=noninteractive")
	return cmd.CombinedOutput()
}

// Impl implements the Service interface.
type Impl struct {
	executor CommandExecutor
	logger   zerolog.Logger
}

// New creates a new pkgmgr service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: &DefaultExecutor{},
		logger:   logger,
	}
}

// NewWithExecutor creates a new pkgmgr service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
	}
}

// QueryInstalledPackages lists the packages installed on this host.
func (s *Impl) QueryInstalledPackages(ctx context.Context) ([]models.PackageSpec, error) {
	s.logger.Debug().Msg("querying installed packages")

	output, err := s.executor.Execute(ctx, ToolQuery, "-W", "-f", "${Package}\t${Version}\n")
	if err != nil {
		return nil, fmt.Errorf("querying packages: %w, output: %s", err, string(output))
	}

	var pkgs []models.PackageSpec
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, version, _ := strings.Cut(line, "\t")
		pkgs = append(pkgs, models.PackageSpec{Name: name, Version: version})
	}

	s.logger.Info().Int("count", len(pkgs)).Msg("installed packages queried")
	return pkgs, nil
}

// InstallPackages installs the given packages. Versions are advisory only:
// the restore target may carry newer package indexes, so pinning would make
// restores brittle.
func (s *Impl) InstallPackages(ctx context.Context, pkgs []models.PackageSpec) (*models.InstallResult, error) {
	if len(pkgs) == 0 {
		return &models.InstallResult{}, nil
	}

	s.logger.Info().Int("count", len(pkgs)).Msg("installing packages")

	start := time.Now()

	args := []string{"install", "-y"}
	for _, p := range pkgs {
		args = append(args, p.Name)
	}

	output, err := s.executor.Execute(ctx, ToolInstall, args...)
	if err != nil {
		return &models.InstallResult{
			Requested: len(pkgs),
			Duration:  time.Since(start),
			Error:     fmt.Errorf("package install failed: %w, output: %s", err, string(output)),
		}, nil
	}

	result := &models.InstallResult{Requested: len(pkgs), Duration: time.Since(start)}

	s.logger.Info().
		Int("count", result.Requested).
		Dur("duration", result.Duration).
		Msg("packages installed")

	return result, nil
}

// FormatList renders packages in the one-per-line "name\tversion" format the
// capture step writes and ParseList reads back.
func FormatList(pkgs []models.PackageSpec) string {
	var b strings.Builder
	for _, p := range pkgs {
		b.WriteString(p.Name)
		b.WriteByte('\t')
		b.WriteString(p.Version)
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseList parses the package-list file format produced by FormatList.
func ParseList(content string) []models.PackageSpec {
	var pkgs []models.PackageSpec
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, version, _ := strings.Cut(line, "\t")
		pkgs = append(pkgs, models.PackageSpec{Name: name, Version: version})
	}
	return pkgs
}
