package config

import (
	"testing"

	"github.com/hostvault/hostvault/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_LoadReader_MinimalConfig(t *testing.T) {
	yaml := `
destination: /var/backups
`
	parser := NewParser()
	cfg, err := parser.LoadReader(yaml)

	require.NoError(t, err)
	assert.Equal(t, "/var/backups", cfg.Destination)
	// Check defaults
	assert.Equal(t, models.ModeSelective, cfg.Mode)
	assert.Equal(t, []models.TreeSpec{
		{ID: "etc", Path: "/etc"},
		{ID: "home", Path: "/home"},
	}, cfg.Trees)
	assert.True(t, cfg.Packages.Enabled)
	assert.True(t, cfg.Archive.Enabled)
	assert.False(t, cfg.Confirm.AssumeYes)
	assert.False(t, cfg.Confirm.YesAllCoversDestructive)
	assert.False(t, cfg.Parallel)
	assert.Nil(t, cfg.Encrypt)
	assert.Nil(t, cfg.Snapshot)
	assert.Nil(t, cfg.DiskImage)
}

func TestParser_LoadReader_FullConfig(t *testing.T) {
	yaml := `
destination: /var/backups
mode: selective
parallel: true

confirm:
  assume_yes: true
  yes_all_covers_destructive: true

trees:
  - id: etc
    path: /etc
  - id: www
    path: /var/www

packages:
  enabled: false

archive:
  enabled: true

encrypt:
  passphrase: "hunter2"
`
	parser := NewParser()
	cfg, err := parser.LoadReader(yaml)

	require.NoError(t, err)

	assert.Equal(t, "/var/backups", cfg.Destination)
	assert.Equal(t, models.ModeSelective, cfg.Mode)
	assert.True(t, cfg.Parallel)

	assert.True(t, cfg.Confirm.AssumeYes)
	assert.True(t, cfg.Confirm.YesAllCoversDestructive)

	assert.Equal(t, []models.TreeSpec{
		{ID: "etc", Path: "/etc"},
		{ID: "www", Path: "/var/www"},
	}, cfg.Trees)

	assert.False(t, cfg.Packages.Enabled)
	assert.True(t, cfg.Archive.Enabled)

	require.NotNil(t, cfg.Encrypt)
	assert.Equal(t, "hunter2", cfg.Encrypt.Passphrase)
}

func TestParser_LoadReader_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_VAULT_PASSPHRASE", "env_secret")
	t.Setenv("TEST_BORG_PASSPHRASE", "env_borg")

	yaml := `
destination: /var/backups
mode: snapshot
encrypt:
  passphrase: "${TEST_VAULT_PASSPHRASE}"
snapshot:
  repository: /srv/borg
  passphrase: "$TEST_BORG_PASSPHRASE"
archive:
  enabled: true
`
	parser := NewParser()
	cfg, err := parser.LoadReader(yaml)

	require.NoError(t, err)
	assert.Equal(t, "env_secret", cfg.Encrypt.Passphrase)
	assert.Equal(t, "env_borg", cfg.Snapshot.Passphrase)
}

func TestParser_LoadReader_MissingDestination(t *testing.T) {
	yaml := `
mode: selective
`
	parser := NewParser()
	_, err := parser.LoadReader(yaml)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "destination is required")
}

func TestParser_LoadReader_InvalidMode(t *testing.T) {
	yaml := `
destination: /var/backups
mode: incremental
`
	parser := NewParser()
	_, err := parser.LoadReader(yaml)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "mode must be one of")
}

func TestParser_LoadReader_Trees_DuplicateID(t *testing.T) {
	yaml := `
destination: /var/backups
trees:
  - id: etc
    path: /etc
  - id: etc
    path: /opt/etc
`
	parser := NewParser()
	_, err := parser.LoadReader(yaml)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate tree id "etc"`)
}

func TestParser_LoadReader_Trees_ReservedID(t *testing.T) {
	yaml := `
destination: /var/backups
trees:
  - id: compress
    path: /etc
`
	parser := NewParser()
	_, err := parser.LoadReader(yaml)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "collides with a built-in step")
}

func TestParser_LoadReader_Trees_RestorePrefixRejected(t *testing.T) {
	yaml := `
destination: /var/backups
trees:
  - id: restore-etc
    path: /etc
`
	parser := NewParser()
	_, err := parser.LoadReader(yaml)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "must not start with restore-")
}

func TestParser_LoadReader_Trees_MissingPath(t *testing.T) {
	yaml := `
destination: /var/backups
trees:
  - id: etc
`
	parser := NewParser()
	_, err := parser.LoadReader(yaml)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "trees[0].path is required")
}

func TestParser_LoadReader_Encrypt_MissingPassphrase(t *testing.T) {
	yaml := `
destination: /var/backups
encrypt:
  passphrase: ""
`
	parser := NewParser()
	_, err := parser.LoadReader(yaml)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "encrypt.passphrase is required")
}

func TestParser_LoadReader_Encrypt_RequiresArchive(t *testing.T) {
	yaml := `
destination: /var/backups
archive:
  enabled: false
encrypt:
  passphrase: "hunter2"
`
	parser := NewParser()
	_, err := parser.LoadReader(yaml)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "encrypt requires archive.enabled")
}

func TestParser_LoadReader_Snapshot_Defaults(t *testing.T) {
	yaml := `
destination: /var/backups
mode: snapshot
snapshot:
  repository: /srv/borg
  passphrase: "borgpass"
`
	parser := NewParser()
	cfg, err := parser.LoadReader(yaml)

	require.NoError(t, err)
	require.NotNil(t, cfg.Snapshot)
	assert.Equal(t, "/srv/borg", cfg.Snapshot.Repository)
	assert.Equal(t, "lz4", cfg.Snapshot.Compression)
	// The snapshot store compresses internally.
	assert.False(t, cfg.Archive.Enabled)
	// Snapshot mode still uses the default trees as its sources.
	assert.Len(t, cfg.Trees, 2)
}

func TestParser_LoadReader_Snapshot_MissingRepository(t *testing.T) {
	yaml := `
destination: /var/backups
mode: snapshot
snapshot:
  passphrase: "borgpass"
`
	parser := NewParser()
	_, err := parser.LoadReader(yaml)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot.repository is required")
}

func TestParser_LoadReader_SnapshotMode_MissingSection(t *testing.T) {
	yaml := `
destination: /var/backups
mode: snapshot
`
	parser := NewParser()
	_, err := parser.LoadReader(yaml)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot section is required")
}

func TestParser_LoadReader_DiskImage(t *testing.T) {
	yaml := `
destination: /var/backups
mode: disk-image
disk_image:
  device: /dev/sda
  rescue: true
`
	parser := NewParser()
	cfg, err := parser.LoadReader(yaml)

	require.NoError(t, err)
	require.NotNil(t, cfg.DiskImage)
	assert.Equal(t, "/dev/sda", cfg.DiskImage.Device)
	assert.True(t, cfg.DiskImage.Rescue)
	// Imaging mode has no tree captures or package list by default.
	assert.Empty(t, cfg.Trees)
	assert.False(t, cfg.Packages.Enabled)
	assert.True(t, cfg.Archive.Enabled)
}

func TestParser_LoadReader_DiskImage_InvalidDevice(t *testing.T) {
	yaml := `
destination: /var/backups
mode: disk-image
disk_image:
  device: sda
`
	parser := NewParser()
	_, err := parser.LoadReader(yaml)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "must be a /dev path")
}

func TestParser_LoadReader_DiskImageMode_MissingSection(t *testing.T) {
	yaml := `
destination: /var/backups
mode: disk-image
`
	parser := NewParser()
	_, err := parser.LoadReader(yaml)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "disk_image section is required")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *models.Config
		wantErr bool
		errMsg  string
	}{
		{
			name:    "nil config",
			cfg:     nil,
			wantErr: true,
			errMsg:  "configuration is nil",
		},
		{
			name:    "missing destination",
			cfg:     &models.Config{Mode: models.ModeSelective},
			wantErr: true,
			errMsg:  "destination is required",
		},
		{
			name: "selective without trees",
			cfg: &models.Config{
				Destination: "/var/backups",
				Mode:        models.ModeSelective,
			},
			wantErr: true,
			errMsg:  "trees must not be empty",
		},
		{
			name: "disk-image without section",
			cfg: &models.Config{
				Destination: "/var/backups",
				Mode:        models.ModeDiskImage,
			},
			wantErr: true,
			errMsg:  "disk_image section is required",
		},
		{
			name: "snapshot without section",
			cfg: &models.Config{
				Destination: "/var/backups",
				Mode:        models.ModeSnapshot,
			},
			wantErr: true,
			errMsg:  "snapshot section is required",
		},
		{
			name: "valid config",
			cfg: &models.Config{
				Destination: "/var/backups",
				Mode:        models.ModeSelective,
				Trees:       []models.TreeSpec{{ID: "etc", Path: "/etc"}},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
