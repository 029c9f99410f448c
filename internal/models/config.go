// Package models contains the data structures used throughout hostvault.
package models

// Config holds the complete configuration for a backup or restore run.
type Config struct {
	Destination string // root directory under which job directories are created
	Mode        Mode
	Confirm     ConfirmSettings
	Trees       []TreeSpec
	Packages    PackageSettings
	Archive     ArchiveSettings
	Encrypt     *EncryptSettings // nil if not configured
	Snapshot    *SnapshotConfig  // nil unless mode is snapshot
	DiskImage   *DiskImageConfig // nil unless mode is disk-image
	Parallel    bool             // run independent capture steps concurrently
}

// ConfirmSettings controls confirmation prompt behaviour.
type ConfirmSettings struct {
	AssumeYes bool // answer yes to every non-destructive prompt (non-interactive runs)

	// YesAllCoversDestructive extends a "yes to all" answer to destructive
	// steps. Destructive steps re-prompt individually when false.
	YesAllCoversDestructive bool
}

// TreeSpec names one directory tree captured by a selective backup.
type TreeSpec struct {
	ID   string
	Path string
}

// PackageSettings controls the installed-package list step.
type PackageSettings struct {
	Enabled bool
}

// ArchiveSettings controls the post-run compression step.
type ArchiveSettings struct {
	Enabled bool
}

// EncryptSettings controls the post-run encryption step.
type EncryptSettings struct {
	Passphrase string
}

// SnapshotConfig holds snapshot-store (borg) repository configuration.
type SnapshotConfig struct {
	Repository  string
	Passphrase  string
	Compression string // e.g. "zstd", defaults to "lz4"
}

// DiskImageConfig holds whole-disk imaging configuration.
type DiskImageConfig struct {
	Device string // block device to image, e.g. /dev/sda
	Rescue bool   // use ddrescue with a map file so imaging is resumable
}
