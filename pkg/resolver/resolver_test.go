package resolver_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/odi-gate/pkg/gateclient"
	"github.com/denysvitali/odi-gate/pkg/models"
	"github.com/denysvitali/odi-gate/pkg/resolver"
	"github.com/denysvitali/odi-gate/pkg/retry"
)

type fakeBackend struct {
	classification *models.Classification
	classifyErr    error
	person         *models.PersonRecord
	fetchErrs      []error

	classifyCalls int
	fetchCalls    int
	lastCategory  models.Category
}

func (f *fakeBackend) ClassifyScan(ctx context.Context, payload string, personId string, category models.Category) (*models.Classification, error) {
	f.classifyCalls++
	f.lastCategory = category
	if f.classifyErr != nil {
		return nil, f.classifyErr
	}
	return f.classification, nil
}

func (f *fakeBackend) FetchPerson(ctx context.Context, id string, category models.Category) (*models.PersonRecord, error) {
	f.fetchCalls++
	if len(f.fetchErrs) > 0 {
		err := f.fetchErrs[0]
		f.fetchErrs = f.fetchErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.person, nil
}

func noWait() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		Backoff:     retry.Linear(time.Second),
		Sleep:       func(ctx context.Context, d time.Duration) error { return nil },
	}
}

var errDown = errors.New("connection refused")

func TestResolver_Resolve(t *testing.T) {
	b := &fakeBackend{
		classification: &models.Classification{
			ScanType: "time_in_pending",
			Message:  "Ready for time in",
			Person:   &models.PersonRecord{Id: "VIS0007", FirstName: "Ana"},
		},
		person: &models.PersonRecord{
			Id:        "VIS0007",
			Category:  models.CategoryVisitor,
			FirstName: "Ana",
			LastName:  "Reyes",
			Address:   "12 Rizal St.",
		},
		fetchErrs: []error{errDown},
	}
	r := resolver.New(b, resolver.WithRetryPolicy(noWait()))

	res, err := r.Resolve(context.Background(), models.ScanPayload{Text: `{"id":"VIS0007","relationship":"Sister"}`}, 82)
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, 2, b.fetchCalls)
	assert.Equal(t, "time_in_pending", res.ScanType)
	assert.Equal(t, 82, res.Confidence)
	assert.Equal(t, "Reyes, Ana", res.Person.FullName)
	assert.Equal(t, "12 Rizal St.", res.Person.Address)
	assert.Equal(t, "Sister", res.Person.Relationship)
	assert.Equal(t, models.NotSpecified, res.Person.ContactNumber)
}

func TestResolver_FallsBackToSnapshot(t *testing.T) {
	var degradedId string
	b := &fakeBackend{
		classification: &models.Classification{
			ScanType: "time_out_pending",
			Person:   &models.PersonRecord{Id: "GST0003", IsBanned: true, BanReason: "Contraband"},
		},
		fetchErrs: []error{errDown, errDown, errDown},
	}
	r := resolver.New(b,
		resolver.WithRetryPolicy(noWait()),
		resolver.WithDegradedHook(func(id string, err error) { degradedId = id }),
	)

	res, err := r.Resolve(context.Background(), models.ScanPayload{Text: "GST00000003"}, 75)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, 3, b.fetchCalls)
	assert.Equal(t, "GST00000003", degradedId)
	assert.Equal(t, models.CategoryGuest, b.lastCategory)
	assert.True(t, res.Person.IsBanned)
	assert.Equal(t, "Contraband", res.Person.BanReason)
	assert.Equal(t, "Person GST0003", res.Person.FullName)
	assert.Equal(t, models.CategoryGuest, res.Person.Category)
}

func TestResolver_NoSnapshotStillDisplayable(t *testing.T) {
	b := &fakeBackend{
		classification: &models.Classification{ScanType: "completed"},
		fetchErrs:      []error{errDown, errDown, errDown},
	}
	r := resolver.New(b, resolver.WithRetryPolicy(noWait()))

	res, err := r.Resolve(context.Background(), models.ScanPayload{Text: `{"id":"VIS0007"}`}, 90)
	require.NoError(t, err)
	assert.Equal(t, "VIS0007", res.Person.Id)
	assert.Equal(t, "Person VIS0007", res.Person.FullName)
	assert.Equal(t, models.NotSpecified, res.Person.Address)
}

func TestResolver_PersonNotFound(t *testing.T) {
	b := &fakeBackend{
		classifyErr: &gateclient.APIError{StatusCode: http.StatusNotFound, Message: "No visitor matches VIS9999"},
	}
	r := resolver.New(b, resolver.WithRetryPolicy(noWait()))

	_, err := r.Resolve(context.Background(), models.ScanPayload{Text: `{"id":"VIS9999"}`}, 90)
	assert.ErrorIs(t, err, resolver.ErrPersonNotFound)
	assert.ErrorContains(t, err, "No visitor matches VIS9999")
	assert.Zero(t, b.fetchCalls)
}

func TestResolver_NotFoundOnFetchIsNotRetried(t *testing.T) {
	notFound := &gateclient.APIError{StatusCode: http.StatusNotFound, Message: "gone"}
	b := &fakeBackend{
		classification: &models.Classification{ScanType: "time_in_pending"},
		fetchErrs:      []error{notFound, notFound, notFound},
	}
	r := resolver.New(b, resolver.WithRetryPolicy(noWait()))

	res, err := r.Resolve(context.Background(), models.ScanPayload{Text: `{"id":"VIS0007"}`}, 90)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, 1, b.fetchCalls)
}

func TestResolver_Refresh(t *testing.T) {
	timeIn := time.Now().Add(-time.Minute)
	b := &fakeBackend{fetchErrs: []error{errDown, errDown, errDown}}
	r := resolver.New(b, resolver.WithRetryPolicy(noWait()))

	current := &models.PersonRecord{Id: "VIS0007", Category: models.CategoryVisitor, FullName: "Ana Reyes"}
	updated := &models.PersonRecord{Id: "VIS0007", HasTimedIn: true, TimeIn: &timeIn}

	got, err := r.Refresh(context.Background(), current, updated)
	require.NoError(t, err)
	assert.True(t, got.HasTimedIn)
	assert.Equal(t, "Ana Reyes", got.FullName)
	require.NotNil(t, got.TimeIn)
	assert.True(t, got.TimeIn.Equal(timeIn))
}

func TestResolver_RefreshReplacesPlaceholderName(t *testing.T) {
	b := &fakeBackend{
		classification: &models.Classification{ScanType: "time_in_pending"},
		fetchErrs:      []error{errDown, errDown, errDown},
	}
	r := resolver.New(b, resolver.WithRetryPolicy(noWait()))

	res, err := r.Resolve(context.Background(), models.ScanPayload{Text: `{"id":"VIS0007XYZ"}`}, 90)
	require.NoError(t, err)
	require.True(t, res.Degraded)
	assert.Equal(t, "Person VIS0007XYZ", res.Person.FullName)
	assert.Equal(t, models.NotSpecified, res.Person.Sex)

	b.person = &models.PersonRecord{Id: "VIS0007XYZ", FirstName: "Ana", LastName: "Cruz", Sex: "F"}
	got, err := r.Refresh(context.Background(), res.Person, nil)
	require.NoError(t, err)
	assert.Equal(t, "Cruz, Ana", got.FullName)
	assert.Equal(t, "Cruz, Ana", got.Name)
	assert.Equal(t, "F", got.Sex)
	assert.Equal(t, models.NotSpecified, got.Address)
}

func TestResolver_RefreshRecomposesName(t *testing.T) {
	b := &fakeBackend{person: &models.PersonRecord{Id: "VIS0007", LastName: "Cruz"}}
	r := resolver.New(b, resolver.WithRetryPolicy(noWait()))

	current := resolver.Normalize(&models.PersonRecord{Id: "VIS0007", FirstName: "Ana", LastName: "Reyes"}, time.Now())
	require.Equal(t, "Reyes, Ana", current.FullName)

	got, err := r.Refresh(context.Background(), current, nil)
	require.NoError(t, err)
	assert.Equal(t, "Cruz, Ana", got.FullName)
}

func TestResolver_RefreshFormatsTimestamps(t *testing.T) {
	timeIn := time.Date(2026, 3, 4, 9, 5, 0, 0, time.UTC)
	b := &fakeBackend{fetchErrs: []error{errDown, errDown, errDown}}
	r := resolver.New(b, resolver.WithRetryPolicy(noWait()))

	current := resolver.Normalize(&models.PersonRecord{Id: "VIS0007", FullName: "Ana Reyes"}, time.Now())
	assert.Equal(t, models.NotAvailable, current.TimeInDisplay)

	got, err := r.Refresh(context.Background(), current,
		&models.PersonRecord{Id: "VIS0007", HasTimedIn: true, TimeIn: &timeIn})
	require.NoError(t, err)
	assert.Equal(t, "Mar 4, 2026 9:05 AM", got.TimeInDisplay)
	assert.Equal(t, models.NotAvailable, got.TimeOutDisplay)
	assert.Equal(t, models.NotAvailable, got.LastVisitDateDisplay)
}
