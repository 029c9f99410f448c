package models

import "context"

// Step is one named, independently confirmable unit of backup or restore
// work. Steps are read-only definitions; completion is tracked externally in
// the journal, keyed by ID. IDs must be unique within a job and stable
// across resumptions.
type Step struct {
	ID          string
	Description string
	Sources     []string
	Dest        string

	// Destructive marks steps that overwrite live system state or a block
	// device. They are never retried automatically and may be excluded from
	// "yes to all".
	Destructive bool

	// ConfirmTarget, when set on a destructive step, forces a secondary
	// confirmation naming the exact target before the step runs.
	ConfirmTarget string

	// ManifestPath, when set, is the job-relative path whose tree is hashed
	// into the checksum manifest when the step commits.
	ManifestPath string

	// Transient steps (decrypt, extract during restore) prepare data for
	// later steps and are re-run on every resume instead of being journaled.
	Transient bool

	// Applicable reports whether the step makes sense on this host (e.g. the
	// source directory exists). Inapplicable steps are skipped without a
	// prompt. A nil predicate means always applicable.
	Applicable func(ctx context.Context) (bool, error)

	// Run executes the step's collaborator call.
	Run func(ctx context.Context) error
}

// Plan is the ordered set of steps the orchestrator drives for one run.
// PostSteps (compress, encrypt) run after every regular step has been
// offered, and always sequentially.
type Plan struct {
	Steps     []Step
	PostSteps []Step

	// Tools lists the external binaries the plan's collaborators invoke,
	// checked before any step runs.
	Tools []string

	// NeedsRoot is set for plans that write to block devices or restore
	// over live system paths.
	NeedsRoot bool

	// Independent is set when the plan's regular steps share no data
	// dependencies and may run concurrently. Capture plans qualify; restore
	// plans do not, because extract feeds the restore steps' applicability.
	Independent bool
}
