// Package engine drives a scan station: it owns the capture source and the
// single current scan session, and derives everything the UI shows from
// them.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-gate/pkg/approval"
	"github.com/denysvitali/odi-gate/pkg/capture"
	"github.com/denysvitali/odi-gate/pkg/gateclient"
	"github.com/denysvitali/odi-gate/pkg/journal"
	"github.com/denysvitali/odi-gate/pkg/metrics"
	"github.com/denysvitali/odi-gate/pkg/models"
	"github.com/denysvitali/odi-gate/pkg/resolver"
	"github.com/denysvitali/odi-gate/pkg/retry"
	"github.com/denysvitali/odi-gate/pkg/storage/model"
	"github.com/denysvitali/odi-gate/pkg/validator"
)

var (
	ErrNoSession   = errors.New("no active session")
	ErrSessionBusy = errors.New("another scan is being processed")
	ErrBusy        = errors.New("an approval is already being submitted")
	ErrNoCamera    = errors.New("no camera configured")
	ErrNoUpload    = errors.New("image uploads are not configured")
)

const (
	DefaultSettleDelay   = 800 * time.Millisecond
	DefaultRejectTimeout = 2 * time.Second

	archiveTimeout = time.Minute
	recordTimeout  = 10 * time.Second
)

var log = logrus.StandardLogger().WithField("package", "engine")

type Validator interface {
	Validate(p models.ScanPayload) (int, error)
}

type Resolver interface {
	Resolve(ctx context.Context, payload models.ScanPayload, confidence int) (*resolver.Resolution, error)
}

type Machine interface {
	Approve(ctx context.Context, s *approval.Session) error
	Decline(s *approval.Session) error
}

type Engine struct {
	validator Validator
	resolver  Resolver
	machine   Machine

	openCamera  capture.CameraOpener
	decoder     capture.Decoder
	liveOpts    []capture.LiveOption
	still       *capture.StillImage
	archive     model.Storer
	journal     journal.Recorder
	metrics     *metrics.Metrics
	settleDelay time.Duration
	rejectAfter time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	status      CaptureStatus
	session     *approval.Session
	pending     *approval.Session
	lastScanned string
	rejection   *Rejection
	generation  uint64
	ctx         context.Context
	cancel      context.CancelFunc
	camera      *cameraRun
}

// job is an accepted scan on its way to a published session.
type job struct {
	ctx        context.Context
	generation uint64
	session    *approval.Session
}

type cameraRun struct {
	device  int
	camera  capture.Camera
	scanner *capture.LiveScanner
	cancel  context.CancelFunc
	done    chan struct{}
}

func (r *cameraRun) stop() {
	r.cancel()
	<-r.done
}

func New(v Validator, r Resolver, m Machine, opts ...Option) *Engine {
	e := &Engine{
		validator:   v,
		resolver:    r,
		machine:     m,
		journal:     journal.Nop{},
		settleDelay: DefaultSettleDelay,
		rejectAfter: DefaultRejectTimeout,
		now:         time.Now,
		sleep:       retry.Sleep,
		status:      StatusIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit runs a payload decoded elsewhere through the pipeline. It returns
// once the session is under review, or when ctx is done; in the latter case
// the pipeline keeps running and its outcome is visible through View.
func (e *Engine) Submit(ctx context.Context, p models.ScanPayload) (View, error) {
	if p.Source == "" {
		p.Source = models.SourceRemote
	}
	if p.DecodedAt.IsZero() {
		p.DecodedAt = e.now()
	}
	j, err := e.accept(p)
	if err != nil || j == nil {
		return e.View(), err
	}
	e.detachCamera()
	return e.await(ctx, j)
}

// SubmitImage decodes an uploaded still image and submits its payload. The
// image is archived under the session id when a storage is configured.
func (e *Engine) SubmitImage(ctx context.Context, r io.Reader) (View, error) {
	if e.still == nil {
		return e.View(), ErrNoUpload
	}
	up, err := e.still.Decode(r)
	if err != nil {
		e.metrics.ScanObserved(string(models.SourceUpload), uploadResult(err))
		return e.View(), err
	}
	j, err := e.accept(up.Payload)
	if err != nil || j == nil {
		return e.View(), err
	}
	e.detachCamera()
	e.store(j.session.Id, up)
	return e.await(ctx, j)
}

func (e *Engine) await(ctx context.Context, j *job) (View, error) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := e.settle(j); err != nil {
			return
		}
		e.resolve(j)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return e.View(), ctx.Err()
	}
	return e.View(), nil
}

// accept validates p and, if it can start a session, claims the session
// slot. A nil job with a nil error means p repeats the scan in flight.
func (e *Engine) accept(p models.ScanPayload) (*job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	source := string(p.Source)
	if e.inFlightLocked() {
		if p.Text == e.lastScanned {
			log.Debugf("ignoring repeated scan of the code in flight")
			e.metrics.ScanObserved(source, metrics.ResultDuplicate)
			return nil, nil
		}
		e.metrics.ScanObserved(source, metrics.ResultBusy)
		return nil, ErrSessionBusy
	}

	confidence, err := e.validator.Validate(p)
	if err != nil {
		rejection := &Rejection{Confidence: confidence, At: e.now()}
		if errors.Is(err, validator.ErrInvalidPayload) {
			rejection.Reason = "Invalid QR code format. Please scan a valid visitor or guest QR code."
			rejection.Sticky = true
			e.metrics.ScanObserved(source, metrics.ResultInvalid)
		} else {
			rejection.Reason = fmt.Sprintf("Low scan quality (%d%%). Please hold the QR code steady and try again.", confidence)
			e.metrics.ScanObserved(source, metrics.ResultLowConfidence)
		}
		log.Warnf("scan from %s rejected: %v", source, err)
		e.rejection = rejection
		return nil, err
	}
	e.metrics.ScanObserved(source, metrics.ResultAccepted)

	e.generation++
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.rejection = nil
	e.lastScanned = p.Text
	e.session = nil
	e.pending = approval.NewSession(p, confidence, e.now())
	e.status = StatusSettling
	log.Debugf("session %s: accepted %s scan with confidence %d", e.pending.Id, source, confidence)
	return &job{ctx: e.ctx, generation: e.generation, session: e.pending}, nil
}

// detachCamera releases a camera left scanning when another source
// delivered the accepted scan.
func (e *Engine) detachCamera() {
	e.mu.Lock()
	run := e.camera
	e.camera = nil
	e.mu.Unlock()
	if run != nil {
		log.Debugf("releasing camera %d, scan came from another source", run.device)
		run.stop()
	}
}

func (e *Engine) settle(j *job) error {
	if err := e.sleep(j.ctx, e.settleDelay); err != nil {
		log.Debugf("session %s: cancelled while settling", j.session.Id)
		return err
	}
	return nil
}

func (e *Engine) resolve(j *job) {
	e.mu.Lock()
	if j.generation != e.generation {
		e.mu.Unlock()
		return
	}
	e.status = StatusResolving
	e.mu.Unlock()

	s := j.session.Clone()
	res, err := e.resolver.Resolve(j.ctx, s.Payload, s.Confidence)
	if err != nil && j.ctx.Err() != nil {
		log.Debugf("session %s: cancelled while resolving", s.Id)
		return
	}
	if err != nil {
		log.Warnf("session %s: unable to resolve scan: %v", s.Id, err)
		s.Failed(resolutionMessage(err), e.now())
	} else {
		s.Resolved(res.Person, res.ScanType, res.Message, res.Degraded, e.now())
	}

	e.mu.Lock()
	if j.generation != e.generation {
		e.mu.Unlock()
		log.Debugf("session %s: discarding late resolution", s.Id)
		return
	}
	e.pending = nil
	e.session = s
	e.status = StatusReviewing
	entry := e.finishLocked(s)
	e.mu.Unlock()

	log.Infof("session %s: %s", s.Id, s.ScanType)
	e.record(entry)
}

// Approve submits the pending time-in or time-out. The backend call runs on
// the session context, so closing the session abandons it; ctx only bounds
// how long the caller waits.
func (e *Engine) Approve(ctx context.Context) (View, error) {
	e.mu.Lock()
	switch {
	case e.status == StatusSubmitting:
		e.mu.Unlock()
		return e.View(), ErrBusy
	case e.session == nil || e.status != StatusReviewing:
		e.mu.Unlock()
		return e.View(), ErrNoSession
	case !e.session.ScanType.Pending():
		e.mu.Unlock()
		return e.View(), approval.ErrNotPending
	case e.session.Banned():
		e.mu.Unlock()
		return e.View(), approval.ErrBanned
	}
	e.status = StatusSubmitting
	work := e.session.Clone()
	generation := e.generation
	sctx := e.ctx
	e.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		start := time.Now()
		err := e.machine.Approve(sctx, work)
		e.metrics.ObserveApproval(time.Since(start))
		done <- e.completeApproval(generation, work, err)
	}()

	select {
	case err := <-done:
		return e.View(), err
	case <-ctx.Done():
		return e.View(), ctx.Err()
	}
}

func (e *Engine) completeApproval(generation uint64, work *approval.Session, err error) error {
	e.mu.Lock()
	if generation != e.generation {
		e.mu.Unlock()
		log.Debugf("session %s: discarding approval result of a closed session", work.Id)
		return ErrNoSession
	}
	e.session = work
	e.status = StatusReviewing
	entry := e.finishLocked(work)
	e.mu.Unlock()

	e.record(entry)
	return err
}

// Decline rejects the pending scan locally.
func (e *Engine) Decline() (View, error) {
	e.mu.Lock()
	if e.status == StatusSubmitting {
		e.mu.Unlock()
		return e.View(), ErrBusy
	}
	if e.session == nil || e.status != StatusReviewing {
		e.mu.Unlock()
		return e.View(), ErrNoSession
	}
	work := e.session.Clone()
	if err := e.machine.Decline(work); err != nil {
		e.mu.Unlock()
		return e.View(), err
	}
	e.session = work
	entry := e.finishLocked(work)
	e.mu.Unlock()

	e.record(entry)
	return e.View(), nil
}

// Close discards the current session and cancels any work still running for
// it. Results arriving afterwards are dropped.
func (e *Engine) Close() View {
	e.mu.Lock()
	if e.session != nil || e.inFlightLocked() {
		log.Debugf("closing session")
		e.discardLocked()
		e.status = StatusIdle
		if e.camera != nil {
			e.status = StatusScanning
		}
	}
	e.rejection = nil
	e.mu.Unlock()
	return e.View()
}

func (e *Engine) discardLocked() {
	e.generation++
	if e.cancel != nil {
		e.cancel()
	}
	e.ctx, e.cancel = nil, nil
	e.session = nil
	e.pending = nil
	e.lastScanned = ""
}

func (e *Engine) inFlightLocked() bool {
	switch e.status {
	case StatusSettling, StatusResolving, StatusReviewing, StatusSubmitting:
		return true
	}
	return false
}

// finishLocked returns the journal entry of s once it is terminal.
func (e *Engine) finishLocked(s *approval.Session) *journal.Entry {
	if !s.ScanType.Terminal() {
		return nil
	}
	e.metrics.SessionFinished(string(s.ScanType))
	entry := &journal.Entry{
		SessionId:       s.Id,
		InitialScanType: string(s.InitialScanType),
		Outcome:         string(s.ScanType),
		Message:         s.Message,
		Confidence:      s.Confidence,
		Source:          s.Payload.Source,
		Degraded:        s.Degraded,
		RecordedAt:      e.now(),
	}
	if s.Person != nil {
		entry.PersonId = s.Person.Id
		entry.PersonName = s.Person.FullName
		entry.Category = s.Person.Category
		entry.Banned = s.Person.IsBanned
	}
	return entry
}

func (e *Engine) record(entry *journal.Entry) {
	if entry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := e.journal.Record(ctx, *entry); err != nil {
		log.Warnf("session %s: unable to record outcome: %v", entry.SessionId, err)
	}
}

func (e *Engine) store(sessionId string, up *capture.Upload) {
	if e.archive == nil {
		return
	}
	img := models.CaptureImage{
		Reader:      bytes.NewReader(up.Data),
		SessionId:   sessionId,
		ContentType: up.ContentType,
		CapturedAt:  up.Payload.DecodedAt,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := e.archive.Store(ctx, img); err != nil {
			log.Errorf("session %s: unable to archive upload: %v", sessionId, err)
			return
		}
		log.Debugf("session %s: upload archived", sessionId)
	}()
}

func uploadResult(err error) string {
	switch {
	case errors.Is(err, capture.ErrNotImage):
		return metrics.ResultNotImage
	case errors.Is(err, capture.ErrTooLarge):
		return metrics.ResultTooLarge
	}
	return metrics.ResultNoCode
}

// resolutionMessage is the scan message of a session whose resolution
// failed. Backend messages are shown verbatim.
func resolutionMessage(err error) string {
	var apiErr *gateclient.APIError
	switch {
	case errors.Is(err, resolver.ErrPersonNotFound):
		return "Person not found. Please check the QR code or register the person first."
	case errors.Is(err, resolver.ErrNoIdentifier):
		return "The QR code does not contain a visitor or guest identifier."
	case errors.As(err, &apiErr):
		return apiErr.Message
	}
	return "Unable to process scan: " + err.Error()
}
