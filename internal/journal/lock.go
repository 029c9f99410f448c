package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hostvault/hostvault/internal/models"
)

// AcquireLock takes the exclusive per-job lock. Only one orchestrator
// instance may drive a job directory at a time; a second invocation fails
// with a ConfigurationError naming the owning PID. The returned release
// function removes the lock file.
func AcquireLock(jobDir string) (func(), error) {
	path := filepath.Join(jobDir, models.LockFile)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			owner := "unknown"
			if data, readErr := os.ReadFile(path); readErr == nil {
				owner = strings.TrimSpace(string(data))
			}
			return nil, &models.ConfigurationError{
				Reason: fmt.Sprintf("job directory %s is locked by pid %s", jobDir, owner),
			}
		}
		return nil, &models.ConfigurationError{Reason: "acquiring job lock", Err: err}
	}

	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	_ = f.Close()

	return func() { _ = os.Remove(path) }, nil
}
