package snapshot

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/hostvault/hostvault/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockExecutor struct {
	executeWithEnvFunc      func(ctx context.Context, env []string, name string, args ...string) ([]byte, error)
	executeWithEnvInDirFunc func(ctx context.Context, env []string, dir, name string, args ...string) ([]byte, error)
}

func (m *mockExecutor) ExecuteWithEnv(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	if m.executeWithEnvFunc != nil {
		return m.executeWithEnvFunc(ctx, env, name, args...)
	}
	return nil, nil
}

func (m *mockExecutor) ExecuteWithEnvInDir(ctx context.Context, env []string, dir, name string, args ...string) ([]byte, error) {
	if m.executeWithEnvInDirFunc != nil {
		return m.executeWithEnvInDirFunc(ctx, env, dir, name, args...)
	}
	return nil, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testConfig() models.SnapshotConfig {
	return models.SnapshotConfig{
		Repository: "/backups/store",
		Passphrase: "secret",
	}
}

func TestInitIfNeeded_AlreadyInitialized(t *testing.T) {
	executor := &mockExecutor{
		executeWithEnvFunc: func(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
			if name == "borg" && args[0] == "info" {
				return []byte(`{"repository": {}}`), nil
			}
			return nil, errors.New("unexpected command")
		},
	}

	svc := NewWithExecutor(testLogger(), executor)
	err := svc.InitIfNeeded(context.Background(), testConfig())

	assert.NoError(t, err)
}

func TestInitIfNeeded_InitializesNewStore(t *testing.T) {
	callCount := 0
	executor := &mockExecutor{
		executeWithEnvFunc: func(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
			callCount++
			if callCount == 1 {
				return nil, errors.New("repository does not exist")
			}
			assert.Equal(t, "init", args[0])
			return nil, nil
		},
	}

	svc := NewWithExecutor(testLogger(), executor)
	err := svc.InitIfNeeded(context.Background(), testConfig())

	assert.NoError(t, err)
	assert.Equal(t, 2, callCount)
}

func TestCreate_PassesEnvAndSources(t *testing.T) {
	var gotEnv, gotArgs []string
	executor := &mockExecutor{
		executeWithEnvFunc: func(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
			gotEnv = env
			gotArgs = args
			return []byte(`{"archive": {"name": "backup_20240101_000000", "id": "abc"}}`), nil
		},
	}

	svc := NewWithExecutor(testLogger(), executor)
	result, err := svc.Create(context.Background(), testConfig(), "backup_20240101_000000", []string{"/etc", "/home"})

	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.Equal(t, "backup_20240101_000000", result.ArchiveID)
	assert.Contains(t, gotEnv, "BORG_REPO=/backups/store")
	assert.Contains(t, gotEnv, "BORG_PASSPHRASE=secret")
	assert.Contains(t, gotArgs, "::backup_20240101_000000")
	assert.Contains(t, gotArgs, "/etc")
	assert.Contains(t, gotArgs, "/home")
}

func TestCreate_Failure(t *testing.T) {
	executor := &mockExecutor{
		executeWithEnvFunc: func(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
			return []byte("Repository locked"), errors.New("exit status 2")
		},
	}

	svc := NewWithExecutor(testLogger(), executor)
	result, err := svc.Create(context.Background(), testConfig(), "job", []string{"/etc"})

	require.NoError(t, err)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "Repository locked")
}

func TestRestore_ExtractsInDest(t *testing.T) {
	var gotDir string
	executor := &mockExecutor{
		executeWithEnvInDirFunc: func(ctx context.Context, env []string, dir, name string, args ...string) ([]byte, error) {
			gotDir = dir
			assert.Equal(t, []string{"extract", "::job"}, args)
			return nil, nil
		},
	}

	svc := NewWithExecutor(testLogger(), executor)
	dest := filepath.Join(t.TempDir(), "restored")
	result, err := svc.Restore(context.Background(), testConfig(), "job", dest)

	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.Equal(t, dest, gotDir)
	assert.DirExists(t, dest)
}

func TestCheck_Pass(t *testing.T) {
	executor := &mockExecutor{}

	svc := NewWithExecutor(testLogger(), executor)
	result, err := svc.Check(context.Background(), testConfig())

	require.NoError(t, err)
	assert.True(t, result.Passed)
}

func TestCheck_Fail(t *testing.T) {
	executor := &mockExecutor{
		executeWithEnvFunc: func(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
			return []byte("segment corruption"), errors.New("exit status 2")
		},
	}

	svc := NewWithExecutor(testLogger(), executor)
	result, err := svc.Check(context.Background(), testConfig())

	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.Error(t, result.Error)
}

func TestList(t *testing.T) {
	executor := &mockExecutor{
		executeWithEnvFunc: func(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
			return []byte("backup_20240101_000000\nbackup_20240102_000000\n"), nil
		},
	}

	svc := NewWithExecutor(testLogger(), executor)
	names, err := svc.List(context.Background(), testConfig())

	require.NoError(t, err)
	assert.Equal(t, []string{"backup_20240101_000000", "backup_20240102_000000"}, names)
}
