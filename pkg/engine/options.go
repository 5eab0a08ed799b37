package engine

import (
	"context"
	"time"

	"github.com/denysvitali/odi-gate/pkg/capture"
	"github.com/denysvitali/odi-gate/pkg/journal"
	"github.com/denysvitali/odi-gate/pkg/metrics"
	"github.com/denysvitali/odi-gate/pkg/storage/model"
)

type Option func(*Engine)

// WithCamera enables the live camera source.
func WithCamera(open capture.CameraOpener, decoder capture.Decoder, opts ...capture.LiveOption) Option {
	return func(e *Engine) {
		e.openCamera = open
		e.decoder = decoder
		e.liveOpts = opts
	}
}

func WithStillImage(s *capture.StillImage) Option {
	return func(e *Engine) {
		e.still = s
	}
}

// WithArchive stores every accepted upload under its session id.
func WithArchive(s model.Storer) Option {
	return func(e *Engine) {
		e.archive = s
	}
}

func WithJournal(r journal.Recorder) Option {
	return func(e *Engine) {
		e.journal = r
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithSettleDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.settleDelay = d
	}
}

// WithRejectTimeout sets how long a low confidence rejection stays visible.
func WithRejectTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.rejectAfter = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		e.sleep = sleep
	}
}
