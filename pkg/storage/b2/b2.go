package b2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
	rcloneb2 "github.com/rclone/rclone/backend/b2"
	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/config/configmap"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-gate/pkg/crypt"
	"github.com/denysvitali/odi-gate/pkg/models"
	"github.com/denysvitali/odi-gate/pkg/storage/model"
	"github.com/denysvitali/odi-gate/pkg/storage/rclone"
)

var log = logrus.StandardLogger().WithField("package", "storage/b2")

var _ model.RWStorage = (*B2)(nil)

type B2 struct {
	b2fs  fs.Fs
	crypt *crypt.Cipher
}

type Config struct {
	Account    string
	Key        string
	BucketName string

	// Encryption specific
	Passphrase string
	Salt       string
}

func New(ctx context.Context, config Config) (*B2, error) {
	if config.Account == "" {
		return nil, fmt.Errorf("account is required")
	}
	if config.Key == "" {
		return nil, fmt.Errorf("key is required")
	}
	if config.BucketName == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	b2fs, err := rcloneb2.NewFs(ctx,
		"b2",
		config.BucketName+"/",
		configmap.Simple{
			"account":    config.Account,
			"key":        config.Key,
			"chunk_size": "5M",
		},
	)
	if err != nil {
		return nil, err
	}

	b := &B2{b2fs: b2fs}
	if config.Passphrase == "" {
		log.Warnf("no passphrase provided, encryption will be disabled")
		return b, nil
	}
	if b.crypt, err = crypt.New(config.Passphrase, []byte(config.Salt)); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *B2) Store(ctx context.Context, img models.CaptureImage) (err error) {
	reader := img.Reader
	if b.crypt != nil {
		if reader, err = b.crypt.Encrypt(img.Reader); err != nil {
			return err
		}
	}

	size, err := reader.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if _, err = reader.Seek(0, io.SeekStart); err != nil {
		return err
	}

	// Encrypted objects are opaque to anyone reading the bucket directly.
	contentType := img.ContentType
	if b.crypt != nil {
		contentType = "application/octet-stream"
	}
	info := rclone.NewSourceFile(img.Id(), img.CapturedAt, size, contentType)
	obj, err := b.b2fs.Put(ctx, reader, info)
	if err != nil {
		return err
	}
	log.Debugf("stored %s (%d bytes)", obj.Remote(), obj.Size())
	return nil
}

func (b *B2) Retrieve(ctx context.Context, sessionId string) (*models.CaptureImage, error) {
	remote := models.CaptureImage{SessionId: sessionId}.Id()
	obj, err := b.b2fs.NewObject(ctx, remote)
	if err != nil {
		if errors.Is(err, fs.ErrorObjectNotFound) {
			return nil, os.ErrNotExist
		}
		return nil, err
	}

	objReader, err := obj.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer objReader.Close()

	var reader io.ReadSeeker
	if b.crypt != nil {
		if reader, err = b.crypt.Decrypt(objReader); err != nil {
			return nil, err
		}
	} else {
		buffer := bytes.NewBuffer(nil)
		if _, err = io.Copy(buffer, objReader); err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buffer.Bytes())
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
		CapturedAt:  obj.ModTime(ctx),
	}, nil
}
