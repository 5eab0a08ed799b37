// Package opencv implements the capture interfaces on top of gocv.
package opencv

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/denysvitali/odi-gate/pkg/capture"
	"github.com/denysvitali/odi-gate/pkg/models"
)

var log = logrus.StandardLogger().WithField("package", "opencv")

var ErrEmptyFrame = errors.New("camera returned an empty frame")

// Frame wraps a gocv.Mat.
type Frame struct {
	mat gocv.Mat
}

func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.mat.Cols(), f.mat.Rows())
}

func (f *Frame) Close() error {
	return f.mat.Close()
}

// Camera owns a video device and reuses one Mat for every read.
type Camera struct {
	capture *gocv.VideoCapture
	frame   *Frame
	front   bool
}

type CameraOption func(*Camera)

// WithFrontFacing marks the device as a front facing camera, whose preview
// is mirrored.
func WithFrontFacing(front bool) CameraOption {
	return func(c *Camera) {
		c.front = front
	}
}

func OpenCamera(device int, opts ...CameraOption) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("unable to open camera %d: %w", device, err)
	}
	c := &Camera{capture: vc, frame: &Frame{mat: gocv.NewMat()}}
	for _, opt := range opts {
		opt(c)
	}
	log.Debugf("opened camera %d (front facing: %v)", device, c.front)
	return c, nil
}

// Opener adapts OpenCamera to capture.CameraOpener.
func Opener(opts ...CameraOption) capture.CameraOpener {
	return func(device int) (capture.Camera, error) {
		return OpenCamera(device, opts...)
	}
}

func (c *Camera) Read() (capture.Frame, error) {
	if ok := c.capture.Read(&c.frame.mat); !ok {
		return nil, errors.New("unable to read from camera")
	}
	if c.frame.mat.Empty() {
		return nil, ErrEmptyFrame
	}
	return c.frame, nil
}

func (c *Camera) FrontFacing() bool {
	return c.front
}

func (c *Camera) Close() error {
	err := c.capture.Close()
	if cerr := c.frame.Close(); err == nil {
		err = cerr
	}
	return err
}

// Loader decodes encoded image bytes into a Frame. The caller closes it.
type Loader struct{}

func (Loader) Load(data []byte) (capture.Frame, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, err
	}
	if mat.Empty() {
		_ = mat.Close()
		return nil, errors.New("unsupported image encoding")
	}
	return &Frame{mat: mat}, nil
}

// QRDecoder runs the OpenCV QR detector. The detector is not safe for
// concurrent use, calls are serialised.
type QRDecoder struct {
	mu       sync.Mutex
	detector gocv.QRCodeDetector
}

func NewQRDecoder() *QRDecoder {
	return &QRDecoder{detector: gocv.NewQRCodeDetector()}
}

func (d *QRDecoder) Decode(frame capture.Frame, region image.Rectangle) (*models.ScanPayload, error) {
	f, ok := frame.(*Frame)
	if !ok {
		return nil, fmt.Errorf("unsupported frame type %T", frame)
	}
	region = region.Intersect(f.Bounds())
	if region.Empty() {
		return nil, capture.ErrNoCode
	}

	roi := f.mat.Region(region)
	defer roi.Close()
	points := gocv.NewMat()
	defer points.Close()
	straight := gocv.NewMat()
	defer straight.Close()

	d.mu.Lock()
	text := d.detector.DetectAndDecode(roi, &points, &straight)
	d.mu.Unlock()
	if text == "" {
		return nil, capture.ErrNoCode
	}
	return &models.ScanPayload{Text: text, Corners: corners(points, region.Min)}, nil
}

func (d *QRDecoder) Close() error {
	return d.detector.Close()
}

// corners converts the detector's points into frame coordinates.
func corners(points gocv.Mat, offset image.Point) []models.Point {
	if points.Empty() {
		return nil
	}
	data, err := points.DataPtrFloat32()
	if err != nil {
		log.Debugf("unable to read corner points: %v", err)
		return nil
	}
	var res []models.Point
	for i := 0; i+1 < len(data); i += 2 {
		res = append(res, models.Point{
			X: float64(data[i]) + float64(offset.X),
			Y: float64(data[i+1]) + float64(offset.Y),
		})
	}
	return res
}

var (
	_ capture.Camera      = (*Camera)(nil)
	_ capture.Decoder     = (*QRDecoder)(nil)
	_ capture.ImageLoader = Loader{}
)
