package fs_test

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/odi-gate/pkg/crypt"
	"github.com/denysvitali/odi-gate/pkg/models"
	"github.com/denysvitali/odi-gate/pkg/storage/fs"
)

func pngBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func TestStoreRetrieve(t *testing.T) {
	dir := t.TempDir()
	s, err := fs.New(dir)
	require.NoError(t, err)

	id := uuid.NewString()
	data := pngBytes(t)
	err = s.Store(context.Background(), models.CaptureImage{
		Reader:      bytes.NewReader(data),
		SessionId:   id,
		ContentType: "image/png",
		CapturedAt:  time.Now(),
	})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "captures", id))

	img, err := s.Retrieve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
	b, err := io.ReadAll(img.Reader)
	require.NoError(t, err)
	assert.Equal(t, data, b)
}

func TestStoreEncrypted(t *testing.T) {
	dir := t.TempDir()
	c, err := crypt.New("my key", nil)
	require.NoError(t, err)
	s, err := fs.New(dir, fs.WithCipher(c))
	require.NoError(t, err)

	id := uuid.NewString()
	data := pngBytes(t)
	require.NoError(t, s.Store(context.Background(), models.CaptureImage{
		Reader:    bytes.NewReader(data),
		SessionId: id,
	}))

	raw, err := os.ReadFile(filepath.Join(dir, "captures", id))
	require.NoError(t, err)
	assert.NotEqual(t, data, raw)

	img, err := s.Retrieve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
	b, err := io.ReadAll(img.Reader)
	require.NoError(t, err)
	assert.Equal(t, data, b)
}

func TestRejectsForeignIds(t *testing.T) {
	s, err := fs.New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Retrieve(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = s.Retrieve(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
