// Package rclone adapts archived images to the object metadata rclone
// backends expect on upload.
package rclone

import (
	"context"
	"time"

	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/hash"
)

// SourceFile describes an object about to be uploaded.
type SourceFile struct {
	remote   string
	modTime  time.Time
	size     int64
	mimeType string
}

func NewSourceFile(remote string, modTime time.Time, size int64, mimeType string) SourceFile {
	return SourceFile{
		remote:   remote,
		modTime:  modTime,
		size:     size,
		mimeType: mimeType,
	}
}

func (s SourceFile) String() string {
	return s.remote
}

func (s SourceFile) Remote() string {
	return s.remote
}

func (s SourceFile) ModTime(context.Context) time.Time {
	return s.modTime
}

func (s SourceFile) Size() int64 {
	return s.size
}

func (s SourceFile) Fs() fs.Info {
	return sourceInfo{}
}

// Hash returns no hash, the backend computes its own checksum.
func (s SourceFile) Hash(context.Context, hash.Type) (string, error) {
	return "", nil
}

func (s SourceFile) Storable() bool {
	return true
}

// MimeType is picked up by backends that set a Content-Type on upload.
func (s SourceFile) MimeType(context.Context) string {
	return s.mimeType
}

type sourceInfo struct{}

func (sourceInfo) Name() string             { return "odi-gate" }
func (sourceInfo) Root() string             { return "/" }
func (sourceInfo) String() string           { return "odi-gate" }
func (sourceInfo) Precision() time.Duration { return time.Second }
func (sourceInfo) Hashes() hash.Set         { return hash.Set(hash.None) }
func (sourceInfo) Features() *fs.Features   { return &fs.Features{} }

var (
	_ fs.Info       = sourceInfo{}
	_ fs.ObjectInfo = SourceFile{}
	_ fs.MimeTyper  = SourceFile{}
)
