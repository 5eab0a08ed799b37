package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/odi-gate/pkg/storage"
	"github.com/denysvitali/odi-gate/pkg/storage/fs"
)

func TestSetup(t *testing.T) {
	s, err := storage.Args{StorageType: "none"}.Setup(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = storage.Args{StorageType: "FS", FsPath: t.TempDir(), Passphrase: "my key"}.Setup(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &fs.Fs{}, s)

	_, err = storage.Args{StorageType: "fs"}.Setup(context.Background())
	assert.Error(t, err)

	_, err = storage.Args{StorageType: "s3"}.Setup(context.Background())
	assert.EqualError(t, err, "unknown storage type: s3")
}
