package models

import "time"

// Mode selects the backup strategy for a job.
type Mode string

// Backup modes.
const (
	ModeSelective Mode = "selective"
	ModeDiskImage Mode = "disk-image"
	ModeSnapshot  Mode = "snapshot"
)

// Phase is the lifecycle phase of a job.
type Phase string

// Job lifecycle phases.
const (
	PhaseCreated  Phase = "created"
	PhaseRunning  Phase = "running"
	PhaseArchived Phase = "archived" // terminal: archived and/or encrypted, immutable
)

// Job is one backup or restore run. Its identity is the timestamp-derived
// directory name; the same job may be driven by several runs when resumed.
type Job struct {
	Dir       string    `yaml:"-"`
	Mode      Mode      `yaml:"mode"`
	CreatedAt time.Time `yaml:"created_at"`
	Hostname  string    `yaml:"hostname"`
	Phase     Phase     `yaml:"phase"`
}

// Well-known file names inside a job directory.
const (
	JournalFile  = "state.log"
	ReportFile   = "report.txt"
	ErrorLogFile = "error.log"
	ManifestFile = "manifest.sha256"
	MetadataFile = "job.yaml"
	LockFile     = ".lock"

	// DiskImageFile is both the destination of the imaging step and the
	// marker used to detect disk-image mode in jobs without metadata.
	DiskImageFile = "disk.img"

	// SnapshotMarkerFile marks a job whose data lives in the snapshot store.
	SnapshotMarkerFile = ".snapshot-store"
)
