package models

import (
	"strings"
	"time"
)

type Category string

const (
	CategoryVisitor Category = "visitor"
	CategoryGuest   Category = "guest"
)

// ParseCategory returns the category named by s and whether s named one.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "visitor", "visitors":
		return CategoryVisitor, true
	case "guest", "guests":
		return CategoryGuest, true
	}
	return "", false
}

// Collection is the backend resource collection the category lives in.
func (c Category) Collection() string {
	if c == CategoryGuest {
		return "guests"
	}
	return "visitors"
}

type PersonRecord struct {
	Id       string   `json:"id"`
	Category Category `json:"category"`

	FullName   string `json:"fullName,omitempty"`
	Name       string `json:"name,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	FirstName  string `json:"firstName,omitempty"`
	MiddleName string `json:"middleName,omitempty"`
	Extension  string `json:"extension,omitempty"`

	Sex           string `json:"sex,omitempty"`
	DateOfBirth   string `json:"dateOfBirth,omitempty"`
	Age           int    `json:"age,omitempty"`
	Address       string `json:"address,omitempty"`
	ContactNumber string `json:"contactNumber,omitempty"`

	// Visitor specific fields
	PrisonerId   string `json:"prisonerId,omitempty"`
	PrisonerName string `json:"prisonerName,omitempty"`
	Relationship string `json:"relationship,omitempty"`

	// Guest specific fields
	VisitPurpose string `json:"visitPurpose,omitempty"`

	HasTimedIn    bool       `json:"hasTimedIn"`
	HasTimedOut   bool       `json:"hasTimedOut"`
	TimeIn        *time.Time `json:"timeIn,omitempty"`
	TimeOut       *time.Time `json:"timeOut,omitempty"`
	LastVisitDate *time.Time `json:"lastVisitDate,omitempty"`
	IsTimerActive bool       `json:"isTimerActive"`

	// Display forms of the timestamps above, "Not available" when unset.
	TimeInDisplay        string `json:"timeInDisplay,omitempty"`
	TimeOutDisplay       string `json:"timeOutDisplay,omitempty"`
	LastVisitDateDisplay string `json:"lastVisitDateDisplay,omitempty"`

	ViolationType    string `json:"violationType,omitempty"`
	ViolationDetails string `json:"violationDetails,omitempty"`
	IsBanned         bool   `json:"isBanned"`
	BanReason        string `json:"banReason,omitempty"`
	BanDuration      string `json:"banDuration,omitempty"`
	BanNotes         string `json:"banNotes,omitempty"`
}

// Clone returns a deep copy, so sessions never share timestamps with the
// records they were merged from.
func (p *PersonRecord) Clone() *PersonRecord {
	if p == nil {
		return nil
	}
	c := *p
	c.TimeIn = cloneTime(p.TimeIn)
	c.TimeOut = cloneTime(p.TimeOut)
	c.LastVisitDate = cloneTime(p.LastVisitDate)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

const (
	NotSpecified = "Not specified"
	NotAvailable = "Not available"

	DisplayTimeLayout = "Jan 2, 2006 3:04 PM"
)

// FormatTime renders an optional timestamp for display.
func FormatTime(t *time.Time, layout string) string {
	if t == nil || t.IsZero() {
		return NotAvailable
	}
	return t.Format(layout)
}
