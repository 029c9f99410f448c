// Package blockimage wraps dd and ddrescue for whole-device imaging.
package blockimage

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/hostvault/hostvault/internal/models"
	"github.com/rs/zerolog"
)

// External binaries this service invokes.
const (
	ToolDD       = "dd"
	ToolDDRescue = "ddrescue"
)

// Service defines the interface for block-device imaging operations.
type Service interface {
	ImageDevice(ctx context.Context, device, destFile string, resumable bool) (*models.ImageResult, error)
	WriteDevice(ctx context.Context, srcFile, device string) (*models.ImageResult, error)
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

// New creates a new blockimage service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: &DefaultExecutor{},
		logger:   logger,
	}
}

// NewWithExecutor creates a new blockimage service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
	}
}

// ImageDevice copies a block device into destFile. With resumable set it
// uses ddrescue with a map file next to the image, so an interrupted run
// picks up where it left off instead of starting over.
func (s *Impl) ImageDevice(ctx context.Context, device, destFile string, resumable bool) (*models.ImageResult, error) {
	s.logger.Info().
		Str("device", device).
		Str("dest", destFile).
		Bool("resumable", resumable).
		Msg("imaging device")

	start := time.Now()

	var output []byte
	var err error
	if resumable {
		output, err = s.executor.Execute(ctx, ToolDDRescue, "-f", device, destFile, destFile+".map")
	} else {
		output, err = s.executor.Execute(ctx, ToolDD,
			"if="+device, "of="+destFile, "bs=4M", "conv=sparse,fsync")
	}
	if err != nil {
		return &models.ImageResult{
			Duration: time.Since(start),
			Error:    fmt.Errorf("imaging %s failed: %w, output: %s", device, err, string(output)),
		}, nil
	}

	result := &models.ImageResult{Duration: time.Since(start)}
	if info, statErr := os.Stat(destFile); statErr == nil {
		result.BytesCopied = info.Size()
	}

	s.logger.Info().
		Int64("bytes", result.BytesCopied).
		Dur("duration", result.Duration).
		Msg("device imaged")

	return result, nil
}

// WriteDevice writes an image file back onto a block device. Irreversible;
// callers gate it behind the destructive confirmation flow.
func (s *Impl) WriteDevice(ctx context.Context, srcFile, device string) (*models.ImageResult, error) {
	s.logger.Warn().
		Str("image", srcFile).
		Str("device", device).
		Msg("writing image to device")

	start := time.Now()

	output, err := s.executor.Execute(ctx, ToolDD,
		"if="+srcFile, "of="+device, "bs=4M", "conv=fsync")
	if err != nil {
		return &models.ImageResult{
			Duration: time.Since(start),
			Error:    fmt.Errorf("writing %s failed: %w, output: %s", device, err, string(output)),
		}, nil
	}

	result := &models.ImageResult{Duration: time.Since(start)}
	if info, statErr := os.Stat(srcFile); statErr == nil {
		result.BytesCopied = info.Size()
	}

	s.logger.Info().
		Int64("bytes", result.BytesCopied).
		Dur("duration", result.Duration).
		Msg("device written")

	return result, nil
}
