// Package registry builds the ordered step catalog for a job. Steps bind a
// collaborator call to a stable identifier; the orchestrator owns
// confirmation, journaling and reporting.
package registry

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/hostvault/hostvault/internal/job"
	"github.com/hostvault/hostvault/internal/models"
	"github.com/hostvault/hostvault/internal/services/archive"
	"github.com/hostvault/hostvault/internal/services/blockimage"
	"github.com/hostvault/hostvault/internal/services/cipher"
	"github.com/hostvault/hostvault/internal/services/filesync"
	"github.com/hostvault/hostvault/internal/services/pkgmgr"
	"github.com/hostvault/hostvault/internal/services/snapshot"
	"github.com/rs/zerolog"
)

// PackageListName is the file the packages step writes inside its step
// directory.
const PackageListName = "packages.list"

// Services bundles the capability collaborators steps bind to.
type Services struct {
	Sync     filesync.Service
	Archive  archive.Service
	Cipher   cipher.Service
	Snapshot snapshot.Service
	Image    blockimage.Service
	Packages pkgmgr.Service
}

// NewServices constructs the real collaborators.
func NewServices(logger zerolog.Logger) Services {
	return Services{
		Sync:     filesync.New(logger),
		Archive:  archive.New(logger),
		Cipher:   cipher.New(logger),
		Snapshot: snapshot.New(logger),
		Image:    blockimage.New(logger),
		Packages: pkgmgr.New(logger),
	}
}

// BackupPlan builds the capture plan for a job in its configured mode.
// Capture steps write into disjoint step directories, so the plan is marked
// independent and may be parallelized.
func BackupPlan(cfg models.Config, j models.Job, svcs Services) (*models.Plan, error) {
	plan := &models.Plan{Independent: true}

	switch j.Mode {
	case models.ModeSelective:
		plan.Tools = append(plan.Tools, filesync.Tool)
		for _, tree := range cfg.Trees {
			plan.Steps = append(plan.Steps, treeCaptureStep(tree, j, svcs))
		}
		if cfg.Packages.Enabled {
			plan.Tools = append(plan.Tools, pkgmgr.ToolQuery)
			plan.Steps = append(plan.Steps, packageCaptureStep(j, svcs))
		}
		appendPostSteps(plan, cfg, j, svcs)

	case models.ModeDiskImage:
		if cfg.DiskImage == nil {
			return nil, &models.ConfigurationError{Reason: "disk_image section is required for disk-image mode"}
		}
		tool := blockimage.ToolDD
		if cfg.DiskImage.Rescue {
			tool = blockimage.ToolDDRescue
		}
		plan.Tools = append(plan.Tools, tool)
		plan.NeedsRoot = true
		plan.Steps = append(plan.Steps, diskImageStep(cfg, j, svcs))
		appendPostSteps(plan, cfg, j, svcs)

	case models.ModeSnapshot:
		if cfg.Snapshot == nil {
			return nil, &models.ConfigurationError{Reason: "snapshot section is required for snapshot mode"}
		}
		plan.Tools = append(plan.Tools, snapshot.Tool)
		plan.Steps = append(plan.Steps, snapshotCaptureStep(cfg, j, svcs))
		// The snapshot store compresses and encrypts internally, so the
		// plan carries no post-steps.

	default:
		return nil, &models.ConfigurationError{Reason: fmt.Sprintf("unknown mode %q", j.Mode)}
	}

	return plan, nil
}

// RestorePlan mirrors BackupPlan with source and destination swapped. Every
// tree-restoring step is destructive; device and snapshot restores carry the
// secondary target-naming confirmation. The steps chain (decrypt produces
// the archive extract consumes, extract recreates the trees the restore
// steps check for), so the plan stays sequential.
func RestorePlan(cfg models.Config, j models.Job, targetRoot string, svcs Services) (*models.Plan, error) {
	plan := &models.Plan{NeedsRoot: targetRoot == "/"}

	switch j.Mode {
	case models.ModeSelective:
		plan.Tools = append(plan.Tools, filesync.Tool)
		plan.Steps = append(plan.Steps, decryptStep(cfg, j, svcs), extractStep(cfg, j, svcs))
		for _, tree := range cfg.Trees {
			plan.Steps = append(plan.Steps, treeRestoreStep(tree, j, targetRoot, svcs))
		}
		if cfg.Packages.Enabled {
			plan.Tools = append(plan.Tools, pkgmgr.ToolInstall)
			plan.Steps = append(plan.Steps, packageRestoreStep(j, svcs))
		}

	case models.ModeDiskImage:
		if cfg.DiskImage == nil {
			return nil, &models.ConfigurationError{Reason: "disk_image section is required for disk-image mode"}
		}
		plan.Tools = append(plan.Tools, blockimage.ToolDD)
		plan.NeedsRoot = true
		plan.Steps = append(plan.Steps, decryptStep(cfg, j, svcs), extractStep(cfg, j, svcs), diskRestoreStep(cfg, j, svcs))

	case models.ModeSnapshot:
		if cfg.Snapshot == nil {
			return nil, &models.ConfigurationError{Reason: "snapshot section is required for snapshot mode"}
		}
		plan.Tools = append(plan.Tools, snapshot.Tool)
		plan.Steps = append(plan.Steps, snapshotRestoreStep(cfg, j, targetRoot, svcs))

	default:
		return nil, &models.ConfigurationError{Reason: fmt.Sprintf("unknown mode %q", j.Mode)}
	}

	return plan, nil
}

func treeCaptureStep(tree models.TreeSpec, j models.Job, svcs Services) models.Step {
	dest := filepath.Join(j.Dir, tree.ID)
	return models.Step{
		ID:           tree.ID,
		Description:  fmt.Sprintf("capture %s", tree.Path),
		Sources:      []string{tree.Path},
		Dest:         dest,
		ManifestPath: tree.ID,
		Applicable:   dirExists(tree.Path),
		Run: func(ctx context.Context) error {
			return resultErr(svcs.Sync.SyncTree(ctx, tree.Path, dest, false))
		},
	}
}

func treeRestoreStep(tree models.TreeSpec, j models.Job, targetRoot string, svcs Services) models.Step {
	source := filepath.Join(j.Dir, tree.ID)
	target := filepath.Join(targetRoot, tree.Path)
	return models.Step{
		ID:          "restore-" + tree.ID,
		Description: fmt.Sprintf("restore %s to %s", tree.ID, target),
		Sources:     []string{source},
		Dest:        target,
		Destructive: true,
		Applicable:  dirExists(source),
		Run: func(ctx context.Context) error {
			return resultErr(svcs.Sync.SyncTree(ctx, source, target, true))
		},
	}
}

func packageCaptureStep(j models.Job, svcs Services) models.Step {
	dest := filepath.Join(j.Dir, "packages")
	return models.Step{
		ID:           "packages",
		Description:  "capture installed package list",
		Dest:         dest,
		ManifestPath: "packages",
		Applicable:   toolExists(pkgmgr.ToolQuery),
		Run: func(ctx context.Context) error {
			pkgs, err := svcs.Packages.QueryInstalledPackages(ctx)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("creating package list directory: %w", err)
			}
			list := filepath.Join(dest, PackageListName)
			if err := os.WriteFile(list, []byte(pkgmgr.FormatList(pkgs)), 0o600); err != nil {
				return fmt.Errorf("writing package list: %w", err)
			}
			return nil
		},
	}
}

func packageRestoreStep(j models.Job, svcs Services) models.Step {
	list := filepath.Join(j.Dir, "packages", PackageListName)
	return models.Step{
		ID:          "restore-packages",
		Description: "install packages from captured list",
		Sources:     []string{list},
		Destructive: true,
		Applicable:  fileExists(list),
		Run: func(ctx context.Context) error {
			content, err := os.ReadFile(list)
			if err != nil {
				return fmt.Errorf("reading package list: %w", err)
			}
			return resultErr(svcs.Packages.InstallPackages(ctx, pkgmgr.ParseList(string(content))))
		},
	}
}

func diskImageStep(cfg models.Config, j models.Job, svcs Services) models.Step {
	dest := filepath.Join(j.Dir, models.DiskImageFile)
	return models.Step{
		ID:           "disk-image",
		Description:  fmt.Sprintf("image %s", cfg.DiskImage.Device),
		Sources:      []string{cfg.DiskImage.Device},
		Dest:         dest,
		ManifestPath: models.DiskImageFile,
		Run: func(ctx context.Context) error {
			return resultErr(svcs.Image.ImageDevice(ctx, cfg.DiskImage.Device, dest, cfg.DiskImage.Rescue))
		},
	}
}

func diskRestoreStep(cfg models.Config, j models.Job, svcs Services) models.Step {
	source := filepath.Join(j.Dir, models.DiskImageFile)
	device := cfg.DiskImage.Device
	return models.Step{
		ID:            "restore-disk-image",
		Description:   fmt.Sprintf("write %s to %s", source, device),
		Sources:       []string{source},
		Dest:          device,
		Destructive:   true,
		ConfirmTarget: device,
		Applicable:    fileExists(source),
		Run: func(ctx context.Context) error {
			return resultErr(svcs.Image.WriteDevice(ctx, source, device))
		},
	}
}

func snapshotCaptureStep(cfg models.Config, j models.Job, svcs Services) models.Step {
	sources := make([]string, 0, len(cfg.Trees))
	for _, tree := range cfg.Trees {
		sources = append(sources, tree.Path)
	}
	name := filepath.Base(j.Dir)
	return models.Step{
		ID:          "snapshot",
		Description: fmt.Sprintf("snapshot %v into %s", sources, cfg.Snapshot.Repository),
		Sources:     sources,
		Dest:        cfg.Snapshot.Repository,
		Run: func(ctx context.Context) error {
			if err := svcs.Snapshot.InitIfNeeded(ctx, *cfg.Snapshot); err != nil {
				return err
			}
			return resultErr(svcs.Snapshot.Create(ctx, *cfg.Snapshot, name, sources))
		},
	}
}

func snapshotRestoreStep(cfg models.Config, j models.Job, targetRoot string, svcs Services) models.Step {
	archiveID := filepath.Base(j.Dir)
	return models.Step{
		ID:            "restore-snapshot",
		Description:   fmt.Sprintf("restore snapshot %s to %s", archiveID, targetRoot),
		Sources:       []string{cfg.Snapshot.Repository},
		Dest:          targetRoot,
		Destructive:   true,
		ConfirmTarget: targetRoot,
		Run: func(ctx context.Context) error {
			return resultErr(svcs.Snapshot.Restore(ctx, *cfg.Snapshot, archiveID, targetRoot))
		},
	}
}

func appendPostSteps(plan *models.Plan, cfg models.Config, j models.Job, svcs Services) {
	if cfg.Archive.Enabled {
		plan.Tools = append(plan.Tools, archive.Tool)
		plan.PostSteps = append(plan.PostSteps, compressStep(j, svcs))
	}
	if cfg.Encrypt != nil {
		plan.PostSteps = append(plan.PostSteps, encryptStep(cfg, j, svcs))
	}
}

func compressStep(j models.Job, svcs Services) models.Step {
	dest := job.ArchivePath(j)
	return models.Step{
		ID:          "compress",
		Description: fmt.Sprintf("archive job directory to %s", dest),
		Sources:     []string{j.Dir},
		Dest:        dest,
		Run: func(ctx context.Context) error {
			return resultErr(svcs.Archive.Archive(ctx, j.Dir, dest))
		},
	}
}

func encryptStep(cfg models.Config, j models.Job, svcs Services) models.Step {
	plain := job.ArchivePath(j)
	dest := job.EncryptedPath(j)
	return models.Step{
		ID:          "encrypt",
		Description: fmt.Sprintf("encrypt archive to %s", dest),
		Sources:     []string{plain},
		Dest:        dest,
		Applicable:  fileExists(plain),
		Run: func(ctx context.Context) error {
			if err := resultErr(svcs.Cipher.Encrypt(ctx, plain, dest, cfg.Encrypt.Passphrase)); err != nil {
				return err
			}
			// The encrypted artifact replaces the plaintext archive.
			if err := os.Remove(plain); err != nil {
				return fmt.Errorf("removing plaintext archive: %w", err)
			}
			return nil
		},
	}
}

// decryptStep recreates the plaintext archive from the encrypted artifact.
// It runs on every resume that still needs it, so it is transient rather
// than journaled.
func decryptStep(cfg models.Config, j models.Job, svcs Services) models.Step {
	enc := job.EncryptedPath(j)
	dest := job.ArchivePath(j)
	return models.Step{
		ID:          "decrypt",
		Description: fmt.Sprintf("decrypt %s", enc),
		Sources:     []string{enc},
		Dest:        dest,
		Transient:   true,
		Applicable: func(ctx context.Context) (bool, error) {
			if exists(dest) || !exists(enc) {
				return false, nil
			}
			if cfg.Encrypt == nil {
				return false, &models.ConfigurationError{
					Reason: fmt.Sprintf("%s exists but no encrypt passphrase is configured", enc),
				}
			}
			return true, nil
		},
		Run: func(ctx context.Context) error {
			return resultErr(svcs.Cipher.Decrypt(ctx, enc, dest, cfg.Encrypt.Passphrase))
		},
	}
}

// extractStep unpacks the terminal archive when the live step directories
// are gone. Transient for the same reason as decryptStep.
func extractStep(cfg models.Config, j models.Job, svcs Services) models.Step {
	archiveFile := job.ArchivePath(j)
	parent := filepath.Dir(j.Dir)
	return models.Step{
		ID:          "extract",
		Description: fmt.Sprintf("extract %s", archiveFile),
		Sources:     []string{archiveFile},
		Dest:        j.Dir,
		Transient:   true,
		Applicable: func(ctx context.Context) (bool, error) {
			return exists(archiveFile) && !hasCapturedData(cfg, j), nil
		},
		Run: func(ctx context.Context) error {
			return resultErr(svcs.Archive.Extract(ctx, archiveFile, parent))
		},
	}
}

// hasCapturedData reports whether any captured payload is present in the
// live job directory.
func hasCapturedData(cfg models.Config, j models.Job) bool {
	for _, tree := range cfg.Trees {
		if exists(filepath.Join(j.Dir, tree.ID)) {
			return true
		}
	}
	return exists(filepath.Join(j.Dir, models.DiskImageFile)) ||
		exists(filepath.Join(j.Dir, "packages"))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func dirExists(path string) func(context.Context) (bool, error) {
	return func(context.Context) (bool, error) {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, err
		}
		return info.IsDir(), nil
	}
}

func fileExists(path string) func(context.Context) (bool, error) {
	return func(context.Context) (bool, error) {
		return exists(path), nil
	}
}

func toolExists(name string) func(context.Context) (bool, error) {
	return func(context.Context) (bool, error) {
		_, err := exec.LookPath(name)
		return err == nil, nil
	}
}

// resultErr folds a (result, err) pair into a single error: transport
// failures and collaborator-reported failures are equivalent for step
// accounting.
func resultErr[R interface{ Err() error }](result R, err error) error {
	if err != nil {
		return err
	}
	return result.Err()
}
