// Package capture produces scan payloads from a live camera or an uploaded
// still image. Decoding itself is delegated to a Decoder.
package capture

import (
	"errors"
	"image"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-gate/pkg/models"
)

var (
	ErrNoCode          = errors.New("no QR code found")
	ErrNotImage        = errors.New("file is not an image")
	ErrTooLarge        = errors.New("image is larger than 5MB")
	ErrDecodeExhausted = errors.New("unable to detect a QR code, check the camera and lighting")
)

const (
	MaxUploadSize = 5 << 20

	// DefaultRegionRatio is the side of the centred scan square relative to
	// the shorter frame dimension.
	DefaultRegionRatio = 0.7
	DefaultScanRate    = 3
	DefaultMaxMisses   = 300
)

var log = logrus.StandardLogger().WithField("package", "capture")

type Frame interface {
	Bounds() image.Rectangle
}

// Decoder finds a QR code inside region of a frame. It returns ErrNoCode
// when there is none.
type Decoder interface {
	Decode(frame Frame, region image.Rectangle) (*models.ScanPayload, error)
}

// Camera is an exclusively owned video device. A frame returned by Read is
// only valid until the next call to Read.
type Camera interface {
	Read() (Frame, error)
	FrontFacing() bool
	Close() error
}

type CameraOpener func(device int) (Camera, error)

// ImageLoader turns encoded image bytes into a frame.
type ImageLoader interface {
	Load(data []byte) (Frame, error)
}

// ScanRegion returns the centred square of side ratio × the shorter side
// of bounds.
func ScanRegion(bounds image.Rectangle, ratio float64) image.Rectangle {
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	short := bounds.Dx()
	if bounds.Dy() < short {
		short = bounds.Dy()
	}
	side := int(float64(short) * ratio)
	center := image.Pt(bounds.Min.X+bounds.Dx()/2, bounds.Min.Y+bounds.Dy()/2)
	min := center.Sub(image.Pt(side/2, side/2))
	return image.Rectangle{Min: min, Max: min.Add(image.Pt(side, side))}.Intersect(bounds)
}

func closeFrame(f Frame) {
	if c, ok := f.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Debugf("unable to release frame: %v", err)
		}
	}
}
