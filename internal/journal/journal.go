// Package journal persists the append-only record of completed step
// identifiers that makes a job resumable.
package journal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hostvault/hostvault/internal/models"
)

// Journal is the durable done-set for one job. A step counts as committed
// only once Append has returned: each append opens the log, writes one line
// and fsyncs before returning, so a crash between collaborator success and
// the flush re-runs the step on resume. Appends are serialized so parallel
// step execution keeps the at-most-once-per-identifier invariant.
type Journal struct {
	mu     sync.Mutex
	jobDir string
	done   map[string]struct{}
}

// Open reads the journal of the given job directory into memory.
func Open(jobDir string) (*Journal, error) {
	done, err := Load(jobDir)
	if err != nil {
		return nil, err
	}
	return &Journal{jobDir: jobDir, done: done}, nil
}

// Load reads the done-set of a job directory. A missing or empty journal is
// a fresh job; duplicate lines collapse into the set.
func Load(jobDir string) (map[string]struct{}, error) {
	done := make(map[string]struct{})

	f, err := os.Open(filepath.Join(jobDir, models.JournalFile))
	if err != nil {
		if os.IsNotExist(err) {
			return done, nil
		}
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}
		done[id] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}

	return done, nil
}

// Append records a completed step. It returns only after the entry has been
// flushed to stable storage. Appending an already-present identifier is a
// no-op, preserving at-most-once semantics on racy resumes.
func (j *Journal) Append(stepID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.done[stepID]; ok {
		return nil
	}

	path := filepath.Join(j.jobDir, models.JournalFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintln(f, stepID); err != nil {
		return fmt.Errorf("appending to journal: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("flushing journal: %w", err)
	}

	j.done[stepID] = struct{}{}
	return nil
}

// Done reports whether a step identifier has been committed.
func (j *Journal) Done(stepID string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.done[stepID]
	return ok
}
