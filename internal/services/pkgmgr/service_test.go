package pkgmgr

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/hostvault/hostvault/internal/models"
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

func TestQueryInstalledPackages(t *testing.T) {
	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			assert.Equal(t, "dpkg-query", name)
			return []byte("bash\t5.2.15\ncoreutils\t9.1\n"), nil
		},
	}

	svc := NewWithExecutor(testLogger(), executor)
	pkgs, err := svc.QueryInstalledPackages(context.Background())

	require.NoError(t, err)
	require.Len(t, pkgs, 2)
	assert.Equal(t, models.PackageSpec{Name: "bash", Version: "5.2.15"}, pkgs[0])
	assert.Equal(t, models.PackageSpec{Name: "coreutils", Version: "9.1"}, pkgs[1])
}

func TestQueryInstalledPackages_Failure(t *testing.T) {
	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return []byte("dpkg-query: not found"), errors.New("exit status 127")
		},
	}

	svc := NewWithExecutor(testLogger(), executor)
	_, err := svc.QueryInstalledPackages(context.Background())

	assert.Error(t, err)
}

func TestInstallPackages_PassesNamesNotVersions(t *testing.T) {
	var gotArgs []string
	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			assert.Equal(t, "apt-get", name)
			gotArgs = args
			return nil, nil
		},
	}

	svc := NewWithExecutor(testLogger(), executor)
	result, err := svc.InstallPackages(context.Background(), []models.PackageSpec{
		{Name: "bash", Version: "5.2.15"},
		{Name: "coreutils", Version: "9.1"},
	})

	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.Equal(t, 2, result.Requested)
	assert.Equal(t, []string{"install", "-y", "bash", "coreutils"}, gotArgs)
}

func TestInstallPackages_EmptyListIsNoop(t *testing.T) {
	called := false
	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			called = true
			return nil, nil
		},
	}

	svc := NewWithExecutor(testLogger(), executor)
	result, err := svc.InstallPackages(context.Background(), nil)

	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.False(t, called)
}

func TestFormatAndParseList(t *testing.T) {
	pkgs := []models.PackageSpec{
		{Name: "bash", Version: "5.2.15"},
		{Name: "vim", Version: "9.0"},
	}

	parsed := ParseList(FormatList(pkgs))

	assert.Equal(t, pkgs, parsed)
}
