package resolver

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/denysvitali/odi-gate/pkg/models"
)

var timePtrType = reflect.TypeOf((*time.Time)(nil))

// Merge overlays the given records from lowest to highest priority. A higher
// record wins on conflict, but its empty strings, zero numbers and nil
// timestamps never erase a value from a lower record. Booleans always come
// from the highest record present.
func Merge(records ...*models.PersonRecord) *models.PersonRecord {
	out := &models.PersonRecord{}
	dst := reflect.ValueOf(out).Elem()
	for _, r := range records {
		if r == nil {
			continue
		}
		src := reflect.ValueOf(r.Clone()).Elem()
		for i := 0; i < src.NumField(); i++ {
			f := src.Field(i)
			switch {
			case f.Kind() == reflect.String:
				if strings.TrimSpace(f.String()) != "" {
					dst.Field(i).Set(f)
				}
			case f.Kind() == reflect.Bool:
				dst.Field(i).Set(f)
			case f.Kind() == reflect.Int:
				if f.Int() != 0 {
					dst.Field(i).Set(f)
				}
			case f.Type() == timePtrType:
				if !f.IsNil() {
					dst.Field(i).Set(f)
				}
			}
		}
	}
	return out
}

// Normalize makes a merged record display ready: it synthesizes a display
// name, fills every display field with an explicit placeholder and repairs
// the time tracking invariant.
func Normalize(p *models.PersonRecord, now time.Time) *models.PersonRecord {
	p = p.Clone()
	if p.Category == "" {
		p.Category = categoryFromPrefix(p.Id, models.CategoryVisitor)
	}

	p.FullName = DisplayName(p)
	if strings.TrimSpace(p.Name) == "" {
		p.Name = p.FullName
	}

	if p.Age == 0 {
		p.Age = ageFrom(p.DateOfBirth, now)
	}

	if p.HasTimedOut && !p.HasTimedIn {
		log.Warnf("person %s has timed out without timing in, treating as timed in", p.Id)
		p.HasTimedIn = true
	}

	p.TimeInDisplay = models.FormatTime(p.TimeIn, models.DisplayTimeLayout)
	p.TimeOutDisplay = models.FormatTime(p.TimeOut, models.DisplayTimeLayout)
	p.LastVisitDateDisplay = models.FormatTime(p.LastVisitDate, models.DisplayTimeLayout)

	fields := []*string{
		&p.Sex, &p.DateOfBirth, &p.Address, &p.ContactNumber,
		&p.ViolationType, &p.ViolationDetails,
		&p.BanReason, &p.BanDuration, &p.BanNotes,
	}
	if p.Category == models.CategoryGuest {
		fields = append(fields, &p.VisitPurpose)
	} else {
		fields = append(fields, &p.PrisonerId, &p.PrisonerName, &p.Relationship)
	}
	for _, f := range fields {
		if strings.TrimSpace(*f) == "" {
			*f = models.NotSpecified
		}
	}
	return p
}

// DisplayName picks the full name, then the name field, then a name
// composed from its parts, and finally a placeholder built from the id.
func DisplayName(p *models.PersonRecord) string {
	if v := strings.TrimSpace(p.FullName); v != "" {
		return v
	}
	if v := strings.TrimSpace(p.Name); v != "" {
		return v
	}
	if v := composeName(p); v != "" {
		return v
	}
	return placeholderName(p.Id)
}

func placeholderName(id string) string {
	return fmt.Sprintf("Person %s", id)
}

// denormalize strips what Normalize derived from a record, so it can be
// merged again as source data without its derived values outranking a
// fresher record.
func denormalize(p *models.PersonRecord) *models.PersonRecord {
	if p == nil {
		return nil
	}
	c := p.Clone()
	derivedName := c.FullName == placeholderName(c.Id) ||
		(c.FullName != "" && c.FullName == composeName(c))
	if c.Name == c.FullName {
		c.Name = ""
	}
	if derivedName {
		c.FullName = ""
	}
	c.TimeInDisplay = ""
	c.TimeOutDisplay = ""
	c.LastVisitDateDisplay = ""

	v := reflect.ValueOf(c).Elem()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() == reflect.String && f.String() == models.NotSpecified {
			f.SetString("")
		}
	}
	return c
}

func composeName(p *models.PersonRecord) string {
	last := strings.TrimSpace(p.LastName)
	given := strings.Join(strings.Fields(strings.Join([]string{p.FirstName, p.MiddleName, p.Extension}, " ")), " ")
	switch {
	case last != "" && given != "":
		return last + ", " + given
	case last != "":
		return last
	default:
		return given
	}
}

func ageFrom(dateOfBirth string, now time.Time) int {
	dob, err := time.Parse("2006-01-02", strings.TrimSpace(dateOfBirth))
	if err != nil || dob.After(now) {
		return 0
	}
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}
