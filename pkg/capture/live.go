package capture

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/denysvitali/odi-gate/pkg/models"
)

// LiveScanner samples a camera at a bounded rate until a decoded payload is
// accepted.
type LiveScanner struct {
	camera      Camera
	decoder     Decoder
	limiter     *rate.Limiter
	regionRatio float64
	maxMisses   int
	now         func() time.Time
}

type LiveOption func(*LiveScanner)

func WithScanRate(perSecond float64) LiveOption {
	return func(l *LiveScanner) {
		l.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

func WithRegionRatio(ratio float64) LiveOption {
	return func(l *LiveScanner) {
		l.regionRatio = ratio
	}
}

// WithMaxMisses bounds the consecutive failed decode attempts before the
// failure is surfaced.
func WithMaxMisses(n int) LiveOption {
	return func(l *LiveScanner) {
		l.maxMisses = n
	}
}

func NewLiveScanner(camera Camera, decoder Decoder, opts ...LiveOption) *LiveScanner {
	l := &LiveScanner{
		camera:      camera,
		decoder:     decoder,
		limiter:     rate.NewLimiter(rate.Limit(DefaultScanRate), 1),
		regionRatio: DefaultRegionRatio,
		maxMisses:   DefaultMaxMisses,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MirrorPreview reports whether the preview should be mirrored, which is
// only the case for front facing cameras.
func (l *LiveScanner) MirrorPreview() bool {
	return l.camera.FrontFacing()
}

// Scan decodes frames until accept returns true and returns that payload.
// Failed decodes are retried silently; ErrDecodeExhausted is returned once
// maxMisses attempts in a row produced nothing.
func (l *LiveScanner) Scan(ctx context.Context, accept func(models.ScanPayload) bool) (models.ScanPayload, error) {
	misses := 0
	for {
		if err := l.limiter.Wait(ctx); err != nil {
			return models.ScanPayload{}, err
		}

		payload, err := l.sample()
		if err != nil {
			misses++
			if l.maxMisses > 0 && misses >= l.maxMisses {
				return models.ScanPayload{}, ErrDecodeExhausted
			}
			continue
		}
		misses = 0

		if accept(*payload) {
			return *payload, nil
		}
	}
}

func (l *LiveScanner) sample() (*models.ScanPayload, error) {
	frame, err := l.camera.Read()
	if err != nil {
		log.Debugf("unable to read frame: %v", err)
		return nil, err
	}
	payload, err := l.decoder.Decode(frame, ScanRegion(frame.Bounds(), l.regionRatio))
	if err != nil {
		return nil, err
	}
	payload.Source = models.SourceCamera
	payload.DecodedAt = l.now()
	return payload, nil
}
