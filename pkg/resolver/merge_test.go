package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/denysvitali/odi-gate/pkg/models"
)

func TestMerge_AuthoritativeWins(t *testing.T) {
	timeIn := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	hints := &models.PersonRecord{Id: "VIS0007", Relationship: "Brother"}
	snapshot := &models.PersonRecord{
		Id:         "VIS0007",
		FirstName:  "Ana",
		Address:    "Old address",
		IsBanned:   true,
		HasTimedIn: true,
		TimeIn:     &timeIn,
	}
	authoritative := &models.PersonRecord{
		Id:      "VIS0007",
		Address: "12 Rizal St.",
	}

	got := Merge(hints, snapshot, authoritative)
	assert.Equal(t, "12 Rizal St.", got.Address)
	assert.Equal(t, "Ana", got.FirstName)
	assert.Equal(t, "Brother", got.Relationship)
	assert.Equal(t, &timeIn, got.TimeIn)
	assert.False(t, got.IsBanned, "booleans come from the highest record")
	assert.False(t, got.HasTimedIn)

	got.TimeIn = nil
	assert.NotNil(t, snapshot.TimeIn, "merge must not alias its inputs")
}

func TestMerge_SkipsMissingSources(t *testing.T) {
	snapshot := &models.PersonRecord{Id: "GST0003", IsBanned: true, Category: models.CategoryGuest}
	got := Merge(nil, snapshot, nil)
	assert.True(t, got.IsBanned)
	assert.Equal(t, models.CategoryGuest, got.Category)
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name   string
		person models.PersonRecord
		want   string
	}{
		{"full name", models.PersonRecord{FullName: "Ana Reyes", Name: "Ana"}, "Ana Reyes"},
		{"name field", models.PersonRecord{Name: "Ana", FirstName: "X"}, "Ana"},
		{
			"composed",
			models.PersonRecord{LastName: "Reyes", FirstName: "Ana", MiddleName: "Luna", Extension: "Jr."},
			"Reyes, Ana Luna Jr.",
		},
		{"first only", models.PersonRecord{FirstName: "Ana"}, "Ana"},
		{"fallback", models.PersonRecord{Id: "VIS0007"}, "Person VIS0007"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayName(&tt.person))
		})
	}
}

func TestNormalize(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	visitor := Normalize(&models.PersonRecord{Id: "VIS0007", DateOfBirth: "1990-03-05"}, now)
	assert.Equal(t, models.CategoryVisitor, visitor.Category)
	assert.Equal(t, "Person VIS0007", visitor.FullName)
	assert.Equal(t, "Person VIS0007", visitor.Name)
	assert.Equal(t, 35, visitor.Age)
	assert.Equal(t, models.NotSpecified, visitor.Address)
	assert.Equal(t, models.NotSpecified, visitor.PrisonerName)
	assert.Equal(t, models.NotSpecified, visitor.Relationship)
	assert.Empty(t, visitor.VisitPurpose)
	assert.Equal(t, models.NotAvailable, visitor.TimeInDisplay)
	assert.Equal(t, models.NotAvailable, visitor.TimeOutDisplay)
	assert.Equal(t, models.NotAvailable, visitor.LastVisitDateDisplay)

	lastVisit := time.Date(2026, 2, 28, 14, 30, 0, 0, time.UTC)
	returning := Normalize(&models.PersonRecord{Id: "VIS0008", LastVisitDate: &lastVisit}, now)
	assert.Equal(t, "Feb 28, 2026 2:30 PM", returning.LastVisitDateDisplay)

	guest := Normalize(&models.PersonRecord{Id: "GST0003", HasTimedOut: true}, now)
	assert.Equal(t, models.CategoryGuest, guest.Category)
	assert.Equal(t, models.NotSpecified, guest.VisitPurpose)
	assert.Empty(t, guest.PrisonerName)
	assert.True(t, guest.HasTimedIn, "timed out implies timed in")
}
