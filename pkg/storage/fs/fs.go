package fs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-gate/pkg/crypt"
	"github.com/denysvitali/odi-gate/pkg/models"
	"github.com/denysvitali/odi-gate/pkg/storage/model"
)

var log = logrus.StandardLogger().WithField("package", "storage/fs")

type Fs struct {
	dir   string
	crypt *crypt.Cipher
}

type Option func(*Fs)

// WithCipher encrypts every stored image.
func WithCipher(c *crypt.Cipher) Option {
	return func(fs *Fs) {
		fs.crypt = c
	}
}

func New(dir string, opts ...Option) (*Fs, error) {
	if err := os.MkdirAll(filepath.Join(dir, "captures"), 0o750); err != nil {
		return nil, err
	}
	fs := &Fs{dir: dir}
	for _, opt := range opts {
		opt(fs)
	}
	return fs, nil
}

func (fs *Fs) path(sessionId string) (string, error) {
	if _, err := uuid.Parse(sessionId); err != nil {
		return "", os.ErrNotExist
	}
	return filepath.Join(fs.dir, models.CaptureImage{SessionId: sessionId}.Id()), nil
}

func (fs *Fs) Store(_ context.Context, img models.CaptureImage) error {
	p, err := fs.path(img.SessionId)
	if err != nil {
		return err
	}

	var reader io.Reader = img.Reader
	if fs.crypt != nil {
		if reader, err = fs.crypt.Encrypt(img.Reader); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, reader); err != nil {
		return err
	}
	if _, err := img.Reader.Seek(0, io.SeekStart); err != nil {
		return err
	}
	log.Debugf("Created file %s", f.Name())
	return nil
}

func (fs *Fs) Retrieve(_ context.Context, sessionId string) (*models.CaptureImage, error) {
	p, err := fs.path(sessionId)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	var reader io.ReadSeeker
	if fs.crypt != nil {
		if reader, err = fs.crypt.Decrypt(f); err != nil {
			return nil, err
		}
	} else {
		b, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	mt, err := mimetype.DetectReader(reader)
	if err != nil {
		return nil, err
	}
	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return &models.CaptureImage{
		Reader:      reader,
		SessionId:   sessionId,
		ContentType: mt.String(),
		CapturedAt:  info.ModTime(),
	}, nil
}

var _ model.RWStorage = (*Fs)(nil)
