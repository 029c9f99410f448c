// Package job manages job directories: creation, metadata, and mode
// detection for resumed jobs.
package job

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hostvault/hostvault/internal/models"
	"gopkg.in/yaml.v3"
)

// dirTimeFormat yields names like backup_20240101_000000. The timestamp is
// the job's identity, so resuming always means pointing at the same
// directory.
const dirTimeFormat = "20060102_150405"

// DirName derives a job directory name from its creation time.
func DirName(t time.Time) string {
	return "backup_" + t.Format(dirTimeFormat)
}

// Create makes a fresh job directory under root and writes its metadata.
func Create(root string, mode models.Mode, now time.Time) (models.Job, error) {
	j := models.Job{
		Dir:       filepath.Join(root, DirName(now)),
		Mode:      mode,
		CreatedAt: now,
		Phase:     models.PhaseCreated,
	}
	if hostname, err := os.Hostname(); err == nil {
		j.Hostname = hostname
	}

	if err := os.MkdirAll(j.Dir, 0o700); err != nil {
		return models.Job{}, fmt.Errorf("creating job directory: %w", err)
	}
	if err := writeMetadata(j); err != nil {
		return models.Job{}, err
	}
	if mode == models.ModeSnapshot {
		marker := filepath.Join(j.Dir, models.SnapshotMarkerFile)
		if err := os.WriteFile(marker, nil, 0o600); err != nil {
			return models.Job{}, fmt.Errorf("writing snapshot marker: %w", err)
		}
	}

	return j, nil
}

// Open loads an existing job directory. The metadata file is authoritative;
// jobs created by older tooling without one fall back to marker inspection.
func Open(dir string) (models.Job, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return models.Job{}, &models.ConfigurationError{
			Reason: fmt.Sprintf("job directory %s does not exist", dir),
			Err:    err,
		}
	}

	j := models.Job{Dir: dir, Phase: models.PhaseRunning}

	data, err := os.ReadFile(filepath.Join(dir, models.MetadataFile))
	if err == nil {
		if err := yaml.Unmarshal(data, &j); err != nil {
			return models.Job{}, fmt.Errorf("parsing job metadata: %w", err)
		}
		j.Dir = dir
		return j, nil
	}
	if !os.IsNotExist(err) {
		return models.Job{}, fmt.Errorf("reading job metadata: %w", err)
	}

	j.Mode = detectMode(dir)
	return j, nil
}

// SetPhase updates the job's lifecycle phase in its metadata.
func SetPhase(j *models.Job, phase models.Phase) error {
	j.Phase = phase
	return writeMetadata(*j)
}

func writeMetadata(j models.Job) error {
	data, err := yaml.Marshal(j)
	if err != nil {
		return fmt.Errorf("encoding job metadata: %w", err)
	}
	path := filepath.Join(j.Dir, models.MetadataFile)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing job metadata: %w", err)
	}
	return nil
}

// detectMode inspects the directory layout: a snapshot-store marker, a disk
// image, or neither (selective).
func detectMode(dir string) models.Mode {
	if _, err := os.Stat(filepath.Join(dir, models.SnapshotMarkerFile)); err == nil {
		return models.ModeSnapshot
	}
	if _, err := os.Stat(filepath.Join(dir, models.DiskImageFile)); err == nil {
		return models.ModeDiskImage
	}
	return models.ModeSelective
}

// ArchivePath is the terminal tar.gz artifact path for a job.
func ArchivePath(j models.Job) string {
	return j.Dir + ".tar.gz"
}

// EncryptedPath is the terminal encrypted artifact path for a job.
func EncryptedPath(j models.Job) string {
	return ArchivePath(j) + ".enc"
}
