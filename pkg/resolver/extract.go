package resolver

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/denysvitali/odi-gate/pkg/models"
)

const (
	GuestPrefix   = "GST"
	VisitorPrefix = "VIS"
)

// Identity is what a QR payload says about the person presenting it.
type Identity struct {
	PersonId string          `json:"personId"`
	Category models.Category `json:"category"`
	// Hints holds person fields carried by the payload itself. They are the
	// lowest priority source when the record is merged.
	Hints *models.PersonRecord `json:"hints,omitempty"`
}

// payloadFields accepts any JSON type per field, so an odd hint never makes
// the payload unreadable.
type payloadFields struct {
	Id           any `json:"id"`
	VisitorId    any `json:"visitorId"`
	GuestId      any `json:"guestId"`
	Type         any `json:"type"`
	Category     any `json:"category"`
	Name         any `json:"name"`
	FullName     any `json:"fullName"`
	VisitPurpose any `json:"visitPurpose"`
	PrisonerId   any `json:"prisonerId"`
	PrisonerName any `json:"prisonerName"`
	Relationship any `json:"relationship"`
}

// Extract determines the person id and category from a payload. JSON
// payloads are read field by field; anything else is treated as a bare id.
// The category is taken from an explicit type, then the id prefix, then
// category specific fields, and defaults to visitor.
func Extract(payload string) Identity {
	payload = strings.TrimSpace(payload)

	var f payloadFields
	if err := json.Unmarshal([]byte(payload), &f); err != nil || !strings.HasPrefix(payload, "{") {
		return Identity{
			PersonId: payload,
			Category: categoryFromPrefix(payload, models.CategoryVisitor),
		}
	}

	id := firstNonEmpty(stringify(f.Id), stringify(f.VisitorId), stringify(f.GuestId))
	prisonerId := stringify(f.PrisonerId)
	relationship := stringify(f.Relationship)
	visitPurpose := stringify(f.VisitPurpose)

	category, ok := models.ParseCategory(stringify(f.Type))
	if !ok {
		category, ok = models.ParseCategory(stringify(f.Category))
	}
	if !ok {
		category, ok = prefixCategory(id)
	}
	if !ok {
		// prisonerId and relationship only exist on visitors, which is also
		// the default.
		category = models.CategoryVisitor
		if prisonerId == "" && relationship == "" && (stringify(f.GuestId) != "" || visitPurpose != "") {
			category = models.CategoryGuest
		}
	}

	hints := &models.PersonRecord{
		Id:       id,
		Category: category,
		Name:     stringify(f.Name),
		FullName: stringify(f.FullName),
	}
	if category == models.CategoryGuest {
		hints.VisitPurpose = visitPurpose
	} else {
		hints.PrisonerId = prisonerId
		hints.PrisonerName = stringify(f.PrisonerName)
		hints.Relationship = relationship
	}

	return Identity{PersonId: id, Category: category, Hints: hints}
}

func categoryFromPrefix(id string, fallback models.Category) models.Category {
	if c, ok := prefixCategory(id); ok {
		return c
	}
	return fallback
}

func prefixCategory(id string) (models.Category, bool) {
	upper := strings.ToUpper(id)
	switch {
	case strings.HasPrefix(upper, GuestPrefix):
		return models.CategoryGuest, true
	case strings.HasPrefix(upper, VisitorPrefix):
		return models.CategoryVisitor, true
	}
	return "", false
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
