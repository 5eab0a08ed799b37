package capture

import (
	"fmt"
	"image"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/denysvitali/odi-gate/pkg/models"
)

type Upload struct {
	Payload     models.ScanPayload
	Data        []byte
	ContentType string
}

// StillImage decodes uploaded pictures. Uploads are not framed like the
// camera preview, so the whole image is searched when the centred region
// yields nothing.
type StillImage struct {
	loader      ImageLoader
	decoder     Decoder
	regionRatio float64
	now         func() time.Time
}

func NewStillImage(loader ImageLoader, decoder Decoder) *StillImage {
	return &StillImage{
		loader:      loader,
		decoder:     decoder,
		regionRatio: DefaultRegionRatio,
		now:         time.Now,
	}
}

func (s *StillImage) Decode(r io.Reader) (*Upload, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("unable to read upload: %w", err)
	}
	if len(data) > MaxUploadSize {
		return nil, ErrTooLarge
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("%w: detected %s", ErrNotImage, mt.String())
	}

	frame, err := s.loader.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to load image: %v", ErrNoCode, err)
	}
	defer closeFrame(frame)

	bounds := frame.Bounds()
	regions := []image.Rectangle{ScanRegion(bounds, s.regionRatio)}
	if regions[0] != bounds {
		regions = append(regions, bounds)
	}
	for _, region := range regions {
		payload, err := s.decoder.Decode(frame, region)
		if err != nil {
			log.Debugf("no code in region %v: %v", region, err)
			continue
		}
		payload.Source = models.SourceUpload
		payload.DecodedAt = s.now()
		return &Upload{Payload: *payload, Data: data, ContentType: mt.String()}, nil
	}
	return nil, ErrNoCode
}
