package approval

import (
	"time"

	"github.com/google/uuid"

	"github.com/denysvitali/odi-gate/pkg/models"
)

type State string

const (
	StateTimeInPending   State = "time_in_pending"
	StateTimeOutPending  State = "time_out_pending"
	StateTimeInApproved  State = "time_in_approved"
	StateTimeOutApproved State = "time_out_approved"
	StateCompleted       State = "completed"
	StateDeclined        State = "declined"
	StateError           State = "error"
)

// ParseState maps a backend scan type to a State.
func ParseState(scanType string) (State, bool) {
	switch s := State(scanType); s {
	case StateTimeInPending, StateTimeOutPending, StateTimeInApproved,
		StateTimeOutApproved, StateCompleted, StateDeclined, StateError:
		return s, true
	}
	return "", false
}

func (s State) Pending() bool {
	return s == StateTimeInPending || s == StateTimeOutPending
}

func (s State) Terminal() bool {
	return s != "" && !s.Pending()
}

type Action string

const (
	ActionApprove Action = "approve"
	ActionDecline Action = "decline"
	ActionClose   Action = "close"
)

// Session is one scan event from an accepted decode to its outcome.
type Session struct {
	Id         string               `json:"id"`
	Payload    models.ScanPayload   `json:"payload"`
	Confidence int                  `json:"confidence"`
	Person     *models.PersonRecord `json:"person,omitempty"`
	ScanType   State                `json:"scanType"`
	// InitialScanType is the state assigned by the backend classification.
	InitialScanType State     `json:"initialScanType,omitempty"`
	Message         string    `json:"scanMessage"`
	Degraded        bool      `json:"degraded,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func NewSession(payload models.ScanPayload, confidence int, now time.Time) *Session {
	return &Session{
		Id:         uuid.NewString(),
		Payload:    payload,
		Confidence: confidence,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Resolved sets the state assigned by the backend. An unknown scan type
// turns the session into an error.
func (s *Session) Resolved(person *models.PersonRecord, scanType string, message string, degraded bool, now time.Time) {
	s.Person = person
	s.Degraded = degraded
	s.UpdatedAt = now
	state, ok := ParseState(scanType)
	if !ok {
		s.ScanType = StateError
		s.Message = "Unrecognized scan type " + scanType
		return
	}
	s.ScanType = state
	s.InitialScanType = state
	s.Message = message
	if s.Message == "" {
		s.Message = DefaultMessage(state, person)
	}
}

// Failed moves the session to the error state with a human readable message.
func (s *Session) Failed(message string, now time.Time) {
	s.ScanType = StateError
	s.Message = message
	s.UpdatedAt = now
}

func (s *Session) Banned() bool {
	return s.Person != nil && s.Person.IsBanned
}

// CanApprove is the ban guard: a pending scan of a banned person can only
// be declined.
func (s *Session) CanApprove() bool {
	return s.ScanType.Pending() && !s.Banned()
}

func (s *Session) CanDecline() bool {
	return s.ScanType.Pending()
}

func (s *Session) Actions() []Action {
	var actions []Action
	if s.CanApprove() {
		actions = append(actions, ActionApprove)
	}
	if s.CanDecline() {
		actions = append(actions, ActionDecline)
	}
	return append(actions, ActionClose)
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Person = s.Person.Clone()
	c.Payload.Corners = append([]models.Point(nil), s.Payload.Corners...)
	return &c
}

func DefaultMessage(state State, person *models.PersonRecord) string {
	name := "Person"
	if person != nil && person.FullName != "" {
		name = person.FullName
	}
	switch state {
	case StateTimeInPending:
		if person != nil && person.IsBanned {
			return name + " is banned. Time in cannot be approved."
		}
		return "Approve time in for " + name + "?"
	case StateTimeOutPending:
		if person != nil && person.IsBanned {
			return name + " is banned. Time out cannot be approved."
		}
		return "Approve time out for " + name + "?"
	case StateTimeInApproved:
		return "Time in recorded for " + name + "."
	case StateTimeOutApproved:
		return "Time out recorded for " + name + "."
	case StateCompleted:
		return name + " has already completed a visit today."
	case StateDeclined:
		return "Scan declined. No time was recorded."
	}
	return ""
}
