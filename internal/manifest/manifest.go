// Package manifest maintains the job's checksum manifest. The manifest is
// built incrementally: each capture step's tree is hashed when the step
// commits, so the manifest and the journal advance together.
package manifest

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hostvault/hostvault/internal/models"
)

// Entry is one manifest line: the SHA-256 of a captured file, with its path
// relative to the job directory. The on-disk format is sha256sum-compatible.
type Entry struct {
	Sum  string
	Path string
}

// AppendTree hashes every regular file under <jobDir>/<subdir> and appends
// the entries to the job manifest. It returns the number of files hashed.
func AppendTree(jobDir, subdir string) (int, error) {
	root := filepath.Join(jobDir, subdir)

	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		sum, err := hashFile(path)
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(jobDir, path)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Sum: sum, Path: rel})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("hashing %s: %w", root, err)
	}

	// WalkDir order is lexical already, but sorting keeps the written block
	// independent of filesystem quirks.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	f, err := os.OpenFile(filepath.Join(jobDir, models.ManifestFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return 0, fmt.Errorf("opening manifest: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, e := range entries {
		if _, err := fmt.Fprintf(f, "%s  %s\n", e.Sum, e.Path); err != nil {
			return 0, fmt.Errorf("writing manifest: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("flushing manifest: %w", err)
	}

	return len(entries), nil
}

// Load reads all manifest entries of a job. A missing manifest yields an
// empty slice.
func Load(jobDir string) ([]Entry, error) {
	f, err := os.Open(filepath.Join(jobDir, models.ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	defer func() { _ = f.Close() }()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		sum, path, ok := strings.Cut(line, "  ")
		if !ok || len(sum) != sha256.Size*2 {
			return nil, fmt.Errorf("malformed manifest line: %q", line)
		}
		entries = append(entries, Entry{Sum: sum, Path: path})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	return entries, nil
}

// VerifyEntry recomputes the checksum of one entry against the live job
// directory.
func VerifyEntry(jobDir string, e Entry) (bool, error) {
	sum, err := hashFile(filepath.Join(jobDir, e.Path))
	if err != nil {
		return false, err
	}
	return sum == e.Sum, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
