package models

import "time"

// Each result type reports collaborator-level failure through its Error
// field and exposes it via Err, so callers can fold the (result, err) pair
// into one error.

// SyncResult holds the result of a file-tree sync.
type SyncResult struct {
	FilesTransferred int
	BytesTransferred int64
	Duration         time.Duration
	Error            error
}

// ArchiveResult holds the result of creating or extracting an archive.
type ArchiveResult struct {
	Path      string
	SizeBytes int64
	Duration  time.Duration
	Error     error
}

// CipherResult holds the result of encrypting or decrypting a file.
type CipherResult struct {
	Path      string
	SizeBytes int64
	Duration  time.Duration
	Error     error
}

// SnapshotResult holds the result of a snapshot-store create or restore.
type SnapshotResult struct {
	ArchiveID string
	Duration  time.Duration
	Error     error
}

// SnapshotCheckResult holds the result of a snapshot-store consistency check.
type SnapshotCheckResult struct {
	Passed   bool
	Duration time.Duration
	Error    error
}

// ImageResult holds the result of a block-device image or write.
type ImageResult struct {
	BytesCopied int64
	Duration    time.Duration
	Error       error
}

// PackageSpec identifies one installed package.
type PackageSpec struct {
	Name    string
	Version string
}

// InstallResult holds the result of a package installation.
type InstallResult struct {
	Requested int
	Duration  time.Duration
	Error     error
}

// Err returns the collaborator-reported failure, if any.
func (r *SyncResult) Err() error { return r.Error }

// Err returns the collaborator-reported failure, if any.
func (r *ArchiveResult) Err() error { return r.Error }

// Err returns the collaborator-reported failure, if any.
func (r *CipherResult) Err() error { return r.Error }

// Err returns the collaborator-reported failure, if any.
func (r *SnapshotResult) Err() error { return r.Error }

// Err returns the collaborator-reported failure, if any.
func (r *SnapshotCheckResult) Err() error { return r.Error }

// Err returns the collaborator-reported failure, if any.
func (r *ImageResult) Err() error { return r.Error }

// Err returns the collaborator-reported failure, if any.
func (r *InstallResult) Err() error { return r.Error }
