// Package storage selects where uploaded capture images are archived.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-gate/pkg/crypt"
	"github.com/denysvitali/odi-gate/pkg/storage/b2"
	"github.com/denysvitali/odi-gate/pkg/storage/fs"
	"github.com/denysvitali/odi-gate/pkg/storage/model"
)

var log = logrus.StandardLogger().WithField("package", "storage")

// Args is embedded in the command line arguments of the binaries that
// archive or read captures.
type Args struct {
	StorageType  string `arg:"--storage-type,env:STORAGE_TYPE" help:"Where uploaded images are archived: fs, b2 or none" default:"none"`
	FsPath       string `arg:"--fs-path,env:FS_PATH" help:"Path to the directory where to store the files - when using the fs storage"`
	B2AccountId  string `arg:"--b2-account-id,env:B2_ACCOUNT" help:"Account for B2 storage - when using the b2 storage"`
	B2AccountKey string `arg:"--b2-account-key,env:B2_KEY" help:"Key for B2 storage - when using the b2 storage"`
	B2BucketName string `arg:"--b2-bucket-name,env:B2_BUCKET_NAME" help:"Bucket Name for B2 storage - when using the b2 storage"`
	Passphrase   string `arg:"--archive-passphrase,env:ARCHIVE_PASSPHRASE" help:"Passphrase used to encrypt archived images (optional)"`
	Salt         string `arg:"--archive-salt,env:ARCHIVE_SALT" help:"Key derivation salt for archived images (optional)"`
}

// Setup returns the configured storage, or nil when archiving is disabled.
func (a Args) Setup(ctx context.Context) (model.RWStorage, error) {
	switch strings.ToLower(a.StorageType) {
	case "", "none":
		return nil, nil
	case "fs":
		if a.FsPath == "" {
			return nil, fmt.Errorf("--fs-path is required for the fs storage")
		}
		var opts []fs.Option
		if a.Passphrase != "" {
			c, err := crypt.New(a.Passphrase, []byte(a.Salt))
			if err != nil {
				return nil, err
			}
			opts = append(opts, fs.WithCipher(c))
		}
		s, err := fs.New(a.FsPath, opts...)
		if err != nil {
			return nil, fmt.Errorf("unable to create fs storage: %w", err)
		}
		log.Infof("archiving uploads to %s", a.FsPath)
		return s, nil
	case "b2":
		s, err := b2.New(ctx, b2.Config{
			Account:    a.B2AccountId,
			Key:        a.B2AccountKey,
			BucketName: a.B2BucketName,
			Passphrase: a.Passphrase,
			Salt:       a.Salt,
		})
		if err != nil {
			return nil, fmt.Errorf("unable to create b2 storage: %w", err)
		}
		log.Infof("archiving uploads to b2://%s", a.B2BucketName)
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage type: %s", a.StorageType)
}
