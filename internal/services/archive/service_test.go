package archive

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockExecutor struct {
	executeFunc func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func (m *mockExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	if m.executeFunc != nil {
		return m.executeFunc(ctx, name, args...)
	}
	return nil, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestArchive_BuildsExpectedCommand(t *testing.T) {
	var gotArgs []string
	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			assert.Equal(t, "tar", name)
			gotArgs = args
			return nil, nil
		},
	}

	svc := NewWithExecutor(testLogger(), executor)
	result, err := svc.Archive(context.Background(), "/backups/backup_20240101_000000", "/backups/backup_20240101_000000.tar.gz")

	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.Equal(t, []string{
		"-C", "/backups", "-czf",
		"/backups/backup_20240101_000000.tar.gz",
		"backup_20240101_000000",
	}, gotArgs)
}

func TestArchive_Failure(t *testing.T) {
	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return []byte("tar: no space left"), errors.New("exit status 2")
		},
	}

	svc := NewWithExecutor(testLogger(), executor)
	result, err := svc.Archive(context.Background(), "/backups/job", "/backups/job.tar.gz")

	require.NoError(t, err)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "no space left")
}

func TestExtract_CreatesDestination(t *testing.T) {
	executor := &mockExecutor{}

	svc := NewWithExecutor(testLogger(), executor)
	dest := filepath.Join(t.TempDir(), "restored")
	result, err := svc.Extract(context.Background(), "/backups/job.tar.gz", dest)

	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.DirExists(t, dest)
}

func TestMembers_SplitsLines(t *testing.T) {
	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			assert.Equal(t, []string{"-tzf", "/backups/job.tar.gz"}, args)
			return []byte("job/\njob/etc/\njob/etc/hosts\njob/state.log\n"), nil
		},
	}

	svc := NewWithExecutor(testLogger(), executor)
	members, err := svc.Members(context.Background(), "/backups/job.tar.gz")

	require.NoError(t, err)
	assert.Equal(t, []string{"job/", "job/etc/", "job/etc/hosts", "job/state.log"}, members)
}

func TestMembers_Failure(t *testing.T) {
	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return []byte("tar: not a tarball"), errors.New("exit status 2")
		},
	}

	svc := NewWithExecutor(testLogger(), executor)
	_, err := svc.Members(context.Background(), "/backups/job.tar.gz")

	assert.Error(t, err)
}
