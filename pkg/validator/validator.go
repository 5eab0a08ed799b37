package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-gate/pkg/models"
)

const (
	DefaultThreshold = 60
	// DefaultConfidence is used when the decoder reports no geometry.
	DefaultConfidence = 75

	MinBareLength = 8
	MaxBareLength = 50
)

var (
	ErrLowConfidence  = errors.New("low scan quality")
	ErrInvalidPayload = errors.New("invalid QR code format")
)

// identifierFields are the JSON keys accepted as a person identifier.
var identifierFields = []string{"id", "visitorId", "guestId"}

var log = logrus.StandardLogger().WithField("package", "validator")

type Validator struct {
	threshold int
}

type Option func(*Validator)

func WithThreshold(threshold int) Option {
	return func(v *Validator) {
		v.threshold = threshold
	}
}

func New(opts ...Option) *Validator {
	v := &Validator{threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate scores the payload and checks its shape. The confidence is always
// returned, also when the payload is rejected.
func (v *Validator) Validate(p models.ScanPayload) (int, error) {
	confidence := Confidence(p.Corners)
	if !ValidShape(p.Text) {
		log.Debugf("rejecting payload of length %d: invalid shape", len(p.Text))
		return confidence, ErrInvalidPayload
	}
	if confidence < v.threshold {
		log.Debugf("rejecting payload: confidence %d < %d", confidence, v.threshold)
		return confidence, fmt.Errorf("%w: confidence %d", ErrLowConfidence, confidence)
	}
	return confidence, nil
}

// ValidShape reports whether text is a JSON object carrying an identifier or
// a bare identifier of acceptable length.
func ValidShape(text string) bool {
	text = strings.TrimSpace(text)
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		for _, f := range identifierFields {
			if hasValue(obj[f]) {
				return true
			}
		}
		return false
	}
	n := utf8.RuneCountInString(text)
	return n >= MinBareLength && n <= MaxBareLength
}

func hasValue(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) != ""
	case float64:
		return true
	}
	return false
}

// Confidence derives a 0-100 score from the corner points of the decoded
// symbol. A full quadrilateral scores 100 minus a penalty for perspective
// distortion; partial geometry scores by completeness.
func Confidence(corners []models.Point) int {
	if len(corners) == 0 {
		return DefaultConfidence
	}
	var valid []models.Point
	for _, c := range corners {
		if isFinite(c.X) && isFinite(c.Y) {
			valid = append(valid, c)
		}
	}
	if len(valid) < 4 {
		return 20 * len(valid)
	}
	valid = valid[:4]

	minSide, maxSide := math.Inf(1), 0.0
	for i := range valid {
		d := distance(valid[i], valid[(i+1)%4])
		minSide = math.Min(minSide, d)
		maxSide = math.Max(maxSide, d)
	}
	if maxSide == 0 {
		return 0
	}
	penalty := int(math.Round((1 - minSide/maxSide) * 50))
	return clamp(100-penalty, 0, 100)
}

func distance(a, b models.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
