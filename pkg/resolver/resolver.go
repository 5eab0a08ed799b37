package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-gate/pkg/gateclient"
	"github.com/denysvitali/odi-gate/pkg/models"
	"github.com/denysvitali/odi-gate/pkg/retry"
)

var (
	ErrPersonNotFound = errors.New("person not found")
	ErrNoIdentifier   = errors.New("payload carries no identifier")
)

const (
	DefaultFetchAttempts = 3
	DefaultFetchBackoff  = 500 * time.Millisecond
)

var log = logrus.StandardLogger().WithField("package", "resolver")

// Backend is the read side of the facility backend.
type Backend interface {
	ClassifyScan(ctx context.Context, payload string, personId string, category models.Category) (*models.Classification, error)
	FetchPerson(ctx context.Context, id string, category models.Category) (*models.PersonRecord, error)
}

type Resolution struct {
	Identity   Identity
	Person     *models.PersonRecord
	ScanType   string
	Message    string
	Confidence int
	// Degraded is set when the authoritative fetch failed and the record was
	// built from the classification snapshot.
	Degraded bool
}

type Resolver struct {
	backend    Backend
	policy     retry.Policy
	now        func() time.Time
	onDegraded func(id string, err error)
}

type Option func(*Resolver)

func WithRetryPolicy(p retry.Policy) Option {
	return func(r *Resolver) {
		r.policy = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// WithDegradedHook is called whenever the authoritative fetch gives up.
func WithDegradedHook(fn func(id string, err error)) Option {
	return func(r *Resolver) {
		r.onDegraded = fn
	}
}

func New(backend Backend, opts ...Option) *Resolver {
	r := &Resolver{
		backend: backend,
		policy:  retry.New(DefaultFetchAttempts, retry.Linear(DefaultFetchBackoff)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.policy.Retryable == nil {
		r.policy.Retryable = func(err error) bool {
			return !errors.Is(err, gateclient.ErrNotFound) &&
				!errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded)
		}
	}
	return r
}

// Resolve turns an accepted payload into a display ready person record
// annotated with the backend's classification.
func (r *Resolver) Resolve(ctx context.Context, payload models.ScanPayload, confidence int) (*Resolution, error) {
	identity := Extract(payload.Text)
	if identity.PersonId == "" {
		return nil, ErrNoIdentifier
	}
	log.Debugf("resolving %s %s", identity.Category, identity.PersonId)

	classification, err := r.backend.ClassifyScan(ctx, payload.Text, identity.PersonId, identity.Category)
	if err != nil {
		if errors.Is(err, gateclient.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrPersonNotFound, err)
		}
		return nil, fmt.Errorf("classify scan: %w", err)
	}

	category := identity.Category
	if classification.Person != nil && classification.Person.Category != "" {
		category = classification.Person.Category
	}

	authoritative, err := r.fetch(ctx, identity.PersonId, category)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	degraded := err != nil

	merged := Merge(identity.Hints, classification.Person, authoritative)
	if merged.Id == "" {
		merged.Id = identity.PersonId
	}
	if merged.Category == "" {
		merged.Category = category
	}

	return &Resolution{
		Identity:   identity,
		Person:     Normalize(merged, r.now()),
		ScanType:   classification.ScanType,
		Message:    classification.Message,
		Confidence: confidence,
		Degraded:   degraded,
	}, nil
}

// Refresh re-reads a person after a backend write. The updated record
// returned by the write, if any, is used as the fallback when the fetch
// fails, on top of the record already shown.
func (r *Resolver) Refresh(ctx context.Context, current *models.PersonRecord, updated *models.PersonRecord) (*models.PersonRecord, error) {
	if current == nil {
		return nil, ErrNoIdentifier
	}
	authoritative, err := r.fetch(ctx, current.Id, current.Category)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	merged := Merge(denormalize(current), updated, authoritative)
	return Normalize(merged, r.now()), nil
}

func (r *Resolver) fetch(ctx context.Context, id string, category models.Category) (*models.PersonRecord, error) {
	var person *models.PersonRecord
	err := r.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		p, err := r.backend.FetchPerson(ctx, id, category)
		if err != nil {
			log.Debugf("fetch %s attempt %d failed: %v", id, attempt, err)
			return err
		}
		person = p
		return nil
	})
	if err != nil {
		log.Warnf("unable to fetch %s %s, falling back to the scan snapshot: %v", category, id, err)
		if r.onDegraded != nil {
			r.onDegraded(id, err)
		}
		return nil, err
	}
	return person, nil
}
